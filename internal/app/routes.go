package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
)

func (app *Application) Routes() http.Handler {
	r := chi.NewRouter()

	r.NotFound(app.notFoundResponse)
	r.MethodNotAllowed(app.methodNotAllowedResponse)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otelchi.Middleware(serviceName, otelchi.WithChiRoutes(r)))
	r.Use(app.logRequest)
	r.Use(app.recoverPanic)

	r.Get("/v1/healthcheck", app.GetHealth)

	// provider callbacks carry no user session
	r.HandleFunc("/v1/payments/{provider}/callback", app.PaymentCallback)

	r.With(app.authenticateToken, app.requireAuthentication).
		Get("/v1/showtimes/{showtimeId}/ws", app.ServeSeatChannel)

	r.Group(func(r chi.Router) {
		if app.sessionManager != nil {
			r.Use(app.sessionManager.LoadAndSave)
		}
		r.Use(app.authenticate)

		r.Get("/v1/showtimes/{showtimeId}/seats", app.GetSeatMapByShowtime)

		r.Group(func(r chi.Router) {
			r.Use(app.requireAuthentication)

			r.Post("/v1/bookings", app.CreateBooking)
			r.Get("/v1/bookings/{bookingId}", app.GetBooking)
			r.Post("/v1/bookings/{bookingId}/cancel", app.CancelBooking)
			r.Get("/v1/users/me/bookings", app.GetBookingsOfUser)
		})
	})

	return r
}
