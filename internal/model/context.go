package model

import (
	"context"

	"github.com/google/uuid"
)

// ContextManager stores and retrieves the authenticated session in a request context.
type ContextManager interface {
	SetSessionToContext(ctx context.Context, claims SessionClaims) context.Context
	GetSessionFromContext(ctx context.Context) (SessionClaims, bool)
	GetAccountIDFromContext(ctx context.Context) (uuid.UUID, bool)
}
