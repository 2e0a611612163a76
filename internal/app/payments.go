package app

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

// PaymentCallback receives provider return and notification calls. The
// response is always the acknowledgement the provider expects.
func (app *Application) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	logger := app.contextGetLogger(r).With("provider", chi.URLParam(r, "provider"))

	provider, err := app.providers.Get(domain.PaymentMethod(chi.URLParam(r, "provider")))
	if err != nil {
		logger.Warn("callback for unsupported payment provider")
		app.notFoundResponse(w, r)
		return
	}

	outcome, err := provider.ParseCallback(r)
	switch {
	case errors.Is(err, domain.ErrProviderSignatureInvalid):
		logger.Warn("payment callback signature is invalid, treating it as a failed payment", "error", err)
	case err != nil:
		logger.Warn("payment callback rejected", "error", err)
		provider.Acknowledge(w, nil, err)
		return
	}

	if outcome == nil {
		provider.Acknowledge(w, nil, nil)
		return
	}

	logger = logger.With("booking_id", outcome.BookingID, "success", outcome.Success)

	_, applyErr := app.bookings.ApplyPaymentResult(r.Context(), *outcome)
	switch {
	case errors.Is(applyErr, domain.ErrRecordNotFound):
		logger.Warn("payment callback for unknown booking")
	case applyErr != nil:
		logger.Error("failed to apply payment result", "error", applyErr)
	default:
		logger.Info("payment callback applied")
	}

	if err == nil {
		err = applyErr
	}

	provider.Acknowledge(w, outcome, err)
}
