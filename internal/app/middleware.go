package app

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

func (app *Application) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				w.Header().Set("Connection", "close")

				app.serverErrorResponse(w, r, fmt.Errorf("%s", err))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// logRequest stores a request scoped logger in the context and logs the
// outcome of every request.
func (app *Application) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := app.logger.With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"uri", r.URL.RequestURI(),
		)

		r = app.contextSetLogger(r, logger)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		app.contextGetLogger(r).Info("request completed",
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// authenticate resolves the caller from a bearer token or the session, in
// that order. Anonymous requests pass through without identity; an invalid
// token is rejected.
func (app *Application) authenticate(next http.Handler) http.Handler {
	return app.identify(next, true)
}

// authenticateToken also accepts the token as a query parameter, since
// browsers cannot set headers on websocket upgrades. The session is not
// consulted because its response writer cannot be hijacked.
func (app *Application) authenticateToken(next http.Handler) http.Handler {
	return app.identify(next, false)
}

func (app *Application) identify(next http.Handler, useSession bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := app.resolveIdentity(r, useSession)
		if err != nil {
			app.contextGetLogger(r).Warn("authentication failed", "error", err)
			app.unauthorizedAccessResponse(w, r)
			return
		}

		if identity != nil {
			r = app.contextSetIdentity(r, identity)
			r = app.contextSetLogger(r, app.contextGetLogger(r).With("user_id", identity.UserID))
		}

		next.ServeHTTP(w, r)
	})
}

func (app *Application) resolveIdentity(r *http.Request, useSession bool) (*domain.Identity, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		return app.tokens.FromHeader(header)
	}

	if !useSession {
		if token := r.URL.Query().Get("token"); token != "" {
			return app.tokens.Verify(token)
		}
		return nil, nil
	}

	if app.sessionManager == nil {
		return nil, nil
	}

	userId := app.sessionManager.GetInt(r.Context(), SessionKeyUserId.String())
	if userId == 0 {
		return nil, nil
	}

	displayName := app.sessionManager.GetString(r.Context(), SessionKeyDisplayName.String())
	if displayName == "" {
		displayName = fmt.Sprintf("user-%d", userId)
	}

	return &domain.Identity{UserID: userId, DisplayName: displayName}, nil
}

func (app *Application) requireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app.contextGetIdentity(r) == nil {
			app.unauthorizedAccessResponse(w, r)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// mustIdentity is used behind requireAuthentication.
func (app *Application) mustIdentity(r *http.Request) *domain.Identity {
	identity := app.contextGetIdentity(r)
	if identity == nil {
		panic(errors.New("missing identity from context"))
	}

	return identity
}
