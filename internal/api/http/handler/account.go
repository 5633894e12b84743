package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/dtroode/account-server/internal/apierror"
	"github.com/dtroode/account-server/internal/logger"
	"github.com/dtroode/account-server/internal/model"
)

// DefaultMaxBodyBytes leaves room for a base64 encoded 5 MiB profile image.
const DefaultMaxBodyBytes = 7 << 20

type registerRequest struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Username   string `json:"username"`
	ProfileImg string `json:"profileImg"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type updateProfileRequest struct {
	FullName   *string `json:"fullName"`
	Email      *string `json:"email"`
	Username   *string `json:"username"`
	ProfileImg *string `json:"profileImg"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

// Account serves the /api/auth endpoints.
type Account struct {
	service        model.AccountService
	contextManager model.ContextManager
	cookies        CookiePolicy
	logger         *logger.Logger
	maxBodyBytes   int64
	now            func() time.Time
}

// NewAccount creates a new Account handler. maxBodyBytes <= 0 selects
// DefaultMaxBodyBytes.
func NewAccount(
	service model.AccountService,
	contextManager model.ContextManager,
	cookies CookiePolicy,
	maxBodyBytes int64,
	logger *logger.Logger,
) *Account {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Account{
		service:        service,
		contextManager: contextManager,
		cookies:        cookies,
		logger:         logger,
		maxBodyBytes:   maxBodyBytes,
		now:            time.Now,
	}
}

// Register handles POST /register.
func (h *Account) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	profile, err := h.service.Register(r.Context(), model.RegisterParams{
		FullName:     req.FullName,
		Email:        req.Email,
		Password:     req.Password,
		Username:     req.Username,
		ProfileImage: req.ProfileImg,
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, Response{
		Success: true,
		Message: "Verification code sent to your email.",
		Email:   profile.Email,
	})
}

// Login handles POST /login.
func (h *Account) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	h.cookies.Set(w, session, h.now())
	writeJSON(w, r, http.StatusOK, Response{Success: true, Message: "Logged in successfully"})
}

// VerifyEmail handles POST /verify-email.
func (h *Account) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	session, err := h.service.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	h.cookies.Set(w, session, h.now())
	writeJSON(w, r, http.StatusOK, Response{Success: true, Message: "Email verified successfully!"})
}

// ResendVerification handles POST /resend-verification.
func (h *Account) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, Response{Success: true, Message: "Verification code resent."})
}

// Me handles GET /me.
func (h *Account) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, Response{Success: true, User: &profile})
}

// UpdateMe handles PATCH /update-me.
func (h *Account) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), id, model.ProfilePatch{
		FullName:     req.FullName,
		Email:        req.Email,
		Username:     req.Username,
		ProfileImage: req.ProfileImg,
	})
	if err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: "Profile updated successfully",
		User:    &profile,
	})
}

// ChangePassword handles POST /reset-password.
func (h *Account) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, Response{Success: true, Message: "Password changed successfully"})
}

// DeleteMe handles DELETE /delete-me.
func (h *Account) DeleteMe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	var req deleteAccountRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.DeleteAccount(r.Context(), id, req.Password); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	h.cookies.Clear(w)
	writeJSON(w, r, http.StatusOK, Response{Success: true, Message: "Account deleted"})
}

// ForgotPassword handles POST /forget-password.
func (h *Account) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, Response{Success: true, Message: "Reset code sent to your email"})
}

// ResetForgottenPassword handles POST /reset-forget-password.
func (h *Account) ResetForgottenPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		WriteError(w, r, h.logger, err)
		return
	}

	writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: "Password reset successfully. You can now log in.",
	})
}

// Logout handles POST /logout. Sessions are stateless, so only the cookie goes.
func (h *Account) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	writeJSON(w, r, http.StatusOK, Response{Success: true, Message: "Logged out successfully"})
}

func (h *Account) accountID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := h.contextManager.GetAccountIDFromContext(r.Context())
	if !ok {
		WriteError(w, r, h.logger, apierror.NewErrMissingAuthorizationToken())
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON body into v and writes a 400 when it can't.
func (h *Account) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	if err := render.DecodeJSON(r.Body, v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, r, h.logger, apierror.New(apierror.KindValidationFailed, "Request body is too large"))
			return false
		}
		WriteError(w, r, h.logger, apierror.New(apierror.KindValidationFailed, "Invalid request body"))
		return false
	}
	return true
}
