package context

import (
	"context"

	"github.com/google/uuid"

	"github.com/dtroode/account-server/internal/model"
)

type sessionKey struct{}

var _ model.ContextManager = (*Manager)(nil)

// Manager keeps the authenticated session in the request context.
type Manager struct{}

// NewManager creates a new context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetSessionToContext returns a copy of ctx carrying claims.
func (m *Manager) SetSessionToContext(ctx context.Context, claims model.SessionClaims) context.Context {
	return context.WithValue(ctx, sessionKey{}, claims)
}

// GetSessionFromContext returns the claims stored by SetSessionToContext.
func (m *Manager) GetSessionFromContext(ctx context.Context) (model.SessionClaims, bool) {
	claims, ok := ctx.Value(sessionKey{}).(model.SessionClaims)
	return claims, ok
}

// GetAccountIDFromContext returns the account id of the authenticated session.
func (m *Manager) GetAccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	claims, ok := m.GetSessionFromContext(ctx)
	if !ok || claims.AccountID == uuid.Nil {
		return uuid.Nil, false
	}
	return claims.AccountID, true
}
