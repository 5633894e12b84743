package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIError_IsComparesKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("verify: %w", NewErrInvalidVerificationCode())

	assert.ErrorIs(t, err, ErrInvalidOrExpired)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestAPIError_HTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  *APIError
		want int
	}{
		{NewErrEmailIsTaken("a@b.c"), http.StatusConflict},
		{NewErrUserNotFound(), http.StatusNotFound},
		{NewErrInvalidCredentials(), http.StatusUnauthorized},
		{NewErrInvalidResetCode(), http.StatusBadRequest},
		{NewErrNotVerified(), http.StatusForbidden},
		{NewErrAlreadyVerified(), http.StatusBadRequest},
		{NewErrInvalidAuthorizationToken(), http.StatusUnauthorized},
		{NewErrValidation(errors.New("bad")), http.StatusBadRequest},
		{NewErrInvalidImage(errors.New("png: invalid format")), http.StatusBadRequest},
		{NewErrImageUnreachable(errors.New("dial tcp 10.0.0.1:80: connect: connection refused")), http.StatusBadRequest},
		{NewErrTooManyRequests(), http.StatusTooManyRequests},
		{NewErrInternalServerError(errors.New("db down")), http.StatusInternalServerError},
		{&APIError{Kind: "Unknown"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestImageErrors_HideCause(t *testing.T) {
	t.Parallel()

	cause := errors.New(`Get "http://127.0.0.1:6379/": dial tcp 127.0.0.1:6379: connect: connection refused`)

	for _, err := range []*APIError{NewErrInvalidImage(cause), NewErrImageUnreachable(cause)} {
		assert.NotContains(t, err.Message, "127.0.0.1")
		assert.NotContains(t, err.Message, "connection refused")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, KindValidationFailed, err.Kind)
	}
}

func TestFrom(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	wrapped := From(fmt.Errorf("failed to get user: %w", cause))
	assert.Equal(t, KindInternal, wrapped.Kind)
	assert.Equal(t, "Internal server error", wrapped.Message)
	assert.ErrorIs(t, wrapped, cause)

	domain := NewErrNotVerified()
	assert.Same(t, domain, From(fmt.Errorf("login: %w", domain)))
	assert.Equal(t, KindNotVerified, KindOf(domain))
}
