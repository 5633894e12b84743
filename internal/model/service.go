package model

import (
	"context"

	"github.com/google/uuid"
)

// AccountService is the account lifecycle as seen by transport adapters.
type AccountService interface {
	Register(ctx context.Context, params RegisterParams) (Profile, error)
	VerifyEmail(ctx context.Context, email, code string) (Session, error)
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (Session, error)
	GetProfile(ctx context.Context, id uuid.UUID) (Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (Profile, error)
	ChangePassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error
	DeleteAccount(ctx context.Context, id uuid.UUID, password string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	Authenticate(ctx context.Context, token string) (SessionClaims, error)
}
