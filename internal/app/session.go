package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/metinatakli/cinex-booking/internal/domain"
)

type sessionKey string

const (
	SessionKeyUserId      = sessionKey("userID")
	SessionKeyDisplayName = sessionKey("displayName")
)

func (s sessionKey) String() string {
	return string(s)
}

type contextKey string

const (
	identityContextKey = contextKey("identity")
	loggerContextKey   = contextKey("logger")
)

func (app *Application) contextSetIdentity(r *http.Request, identity *domain.Identity) *http.Request {
	ctx := context.WithValue(r.Context(), identityContextKey, identity)
	return r.WithContext(ctx)
}

// contextGetIdentity returns nil for anonymous requests.
func (app *Application) contextGetIdentity(r *http.Request) *domain.Identity {
	identity, _ := r.Context().Value(identityContextKey).(*domain.Identity)
	return identity
}

func (app *Application) contextSetLogger(r *http.Request, logger *slog.Logger) *http.Request {
	ctx := context.WithValue(r.Context(), loggerContextKey, logger)
	return r.WithContext(ctx)
}

func (app *Application) contextGetLogger(r *http.Request) *slog.Logger {
	logger, ok := r.Context().Value(loggerContextKey).(*slog.Logger)
	if !ok {
		return app.logger
	}

	return logger
}
