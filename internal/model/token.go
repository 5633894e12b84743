package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionKind distinguishes the two session token flavours.
type SessionKind string

const (
	// SessionFull is issued after a successful email verification.
	SessionFull SessionKind = "full"
	// SessionLogin is the lighter token issued on password login.
	SessionLogin SessionKind = "login"
)

// SessionClaims are the facts bound into a session token.
type SessionClaims struct {
	AccountID uuid.UUID
	Role      string
	Verified  bool
	Kind      SessionKind
	ExpiresAt time.Time
}

// Session is a signed session token with its expiry.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// TokenManager mints and validates session tokens.
type TokenManager interface {
	GenerateSessionToken(claims SessionClaims) (Session, error)
	ParseSessionToken(token string) (SessionClaims, error)
}
