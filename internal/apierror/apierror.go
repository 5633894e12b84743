// Package apierror defines the structured failures returned to API clients.
//
// Every domain failure carries a Kind, a client-safe message and the HTTP
// status it maps to. Comparison with errors.Is is done by Kind, so callers can
// test against the exported sentinels:
//
//	if errors.Is(err, apierror.ErrInvalidOrExpired) { ... }
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an APIError.
type Kind string

const (
	KindConflict           Kind = "Conflict"
	KindNotFound           Kind = "NotFound"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindInvalidOrExpired   Kind = "InvalidOrExpired"
	KindNotVerified        Kind = "NotVerified"
	KindAlreadyVerified    Kind = "AlreadyVerified"
	KindInvalidToken       Kind = "InvalidToken"
	KindValidationFailed   Kind = "ValidationFailed"
	KindTooManyRequests    Kind = "TooManyRequests"
	KindInternal           Kind = "Internal"
)

var statuses = map[Kind]int{
	KindConflict:           http.StatusConflict,
	KindNotFound:           http.StatusNotFound,
	KindInvalidCredentials: http.StatusUnauthorized,
	KindInvalidOrExpired:   http.StatusBadRequest,
	KindNotVerified:        http.StatusForbidden,
	KindAlreadyVerified:    http.StatusBadRequest,
	KindInvalidToken:       http.StatusUnauthorized,
	KindValidationFailed:   http.StatusBadRequest,
	KindTooManyRequests:    http.StatusTooManyRequests,
	KindInternal:           http.StatusInternalServerError,
}

// Sentinels for errors.Is comparisons.
var (
	ErrConflict           = &APIError{Kind: KindConflict}
	ErrNotFound           = &APIError{Kind: KindNotFound}
	ErrInvalidCredentials = &APIError{Kind: KindInvalidCredentials}
	ErrInvalidOrExpired   = &APIError{Kind: KindInvalidOrExpired}
	ErrNotVerified        = &APIError{Kind: KindNotVerified}
	ErrAlreadyVerified    = &APIError{Kind: KindAlreadyVerified}
	ErrInvalidToken       = &APIError{Kind: KindInvalidToken}
	ErrValidationFailed   = &APIError{Kind: KindValidationFailed}
	ErrTooManyRequests    = &APIError{Kind: KindTooManyRequests}
	ErrInternal           = &APIError{Kind: KindInternal}
)

// APIError is a failure that can be shown to the client.
type APIError struct {
	Kind    Kind
	Message string
	// Err is the underlying cause. It is logged, never serialized.
	Err error
}

// New creates an APIError of the given kind.
func New(kind Kind, format string, args ...any) *APIError {
	return &APIError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an APIError of the same kind.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Kind == e.Kind
}

// HTTPStatus returns the HTTP status code for the error kind.
func (e *APIError) HTTPStatus() int {
	if s, ok := statuses[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// From extracts the APIError from err, wrapping anything else as Internal.
func From(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewErrInternalServerError(err)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	return From(err).Kind
}

func NewErrEmailIsTaken(email string) *APIError {
	return New(KindConflict, "User already exists with email %s", email)
}

func NewErrAccountTaken() *APIError {
	return New(KindConflict, "Email or username is already taken")
}

func NewErrUserNotFound() *APIError {
	return New(KindNotFound, "User not found")
}

func NewErrInvalidCredentials() *APIError {
	return New(KindInvalidCredentials, "Invalid credentials")
}

func NewErrIncorrectPassword() *APIError {
	return New(KindInvalidCredentials, "Password is incorrect")
}

func NewErrInvalidVerificationCode() *APIError {
	return New(KindInvalidOrExpired, "Invalid or expired verification code")
}

func NewErrInvalidResetCode() *APIError {
	return New(KindInvalidOrExpired, "Invalid or expired reset code")
}

func NewErrNotVerified() *APIError {
	return New(KindNotVerified, "Please verify your email to login")
}

func NewErrAlreadyVerified() *APIError {
	return New(KindAlreadyVerified, "Email already verified")
}

func NewErrMissingAuthorizationToken() *APIError {
	return New(KindInvalidToken, "Missing session token")
}

func NewErrInvalidAuthorizationToken() *APIError {
	return New(KindInvalidToken, "Invalid or expired session token")
}

func NewErrValidation(err error) *APIError {
	return &APIError{Kind: KindValidationFailed, Message: err.Error(), Err: err}
}

func NewErrInvalidImage(err error) *APIError {
	return &APIError{Kind: KindValidationFailed, Message: "Profile image must be a PNG, JPEG, GIF or WebP image within the size limit", Err: err}
}

func NewErrImageUnreachable(err error) *APIError {
	return &APIError{Kind: KindValidationFailed, Message: "Profile image could not be fetched", Err: err}
}

func NewErrTooManyRequests() *APIError {
	return New(KindTooManyRequests, "Too many requests. Try again later.")
}

func NewErrInternalServerError(err error) *APIError {
	return &APIError{Kind: KindInternal, Message: "Internal server error", Err: err}
}
