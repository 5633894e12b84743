package middleware

import (
	"context"
	"net/http"

	"github.com/dtroode/account-server/internal/api/http/handler"
	"github.com/dtroode/account-server/internal/logger"
	"github.com/dtroode/account-server/internal/model"
)

// SessionAuthenticator resolves a session token into its claims.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (model.SessionClaims, error)
}

// Authenticate validates the session token and injects its claims into the
// request context.
type Authenticate struct {
	authenticator  SessionAuthenticator
	contextManager model.ContextManager
	cookies        handler.CookiePolicy
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(
	authenticator SessionAuthenticator,
	contextManager model.ContextManager,
	cookies handler.CookiePolicy,
	logger *logger.Logger,
) *Authenticate {
	return &Authenticate{
		authenticator:  authenticator,
		contextManager: contextManager,
		cookies:        cookies,
		logger:         logger,
	}
}

// Handle rejects requests without a valid session with 401.
func (m *Authenticate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.authenticator.Authenticate(r.Context(), m.cookies.Token(r))
		if err != nil {
			m.logger.Debug("HTTP middleware: authentication failed",
				"path", r.URL.Path,
				"error", err.Error())
			handler.WriteError(w, r, m.logger, err)
			return
		}

		ctx := m.contextManager.SetSessionToContext(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
