package model

import (
	"context"
	"io"
	"time"
)

// PasswordHasher produces and checks one-way password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// CodeIssuer produces short-lived one-time codes.
type CodeIssuer interface {
	Issue(now time.Time) (OneTimeCode, error)
}

// Mailer delivers a single HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Notifier sends the account lifecycle emails.
type Notifier interface {
	SendVerificationCode(ctx context.Context, account Account, code OneTimeCode) error
	ResendVerificationCode(ctx context.Context, account Account, code OneTimeCode) error
	SendResetCode(ctx context.Context, account Account, code OneTimeCode) error
}

// Storage stores binary objects by key.
type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ImageHost turns a raw image (data URI or remote URL) into a hosted URL.
type ImageHost interface {
	Upload(ctx context.Context, rawImageOrURL string) (string, error)
	Delete(ctx context.Context, hostedURL string) error
}
