package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/account-server/internal/apierror"
	"github.com/dtroode/account-server/internal/logger"
	"github.com/dtroode/account-server/internal/model"
)

// timingPassword is hashed once and compared against when a login names an
// unknown email, so both failure paths cost one hash comparison.
const timingPassword = "account-server-timing-equalizer"

// notifyTimeout bounds a notification once the request context is gone.
const notifyTimeout = 15 * time.Second

// Account implements the account lifecycle: registration, verification,
// login, profile management and password recovery.
type Account struct {
	store    model.AccountStore
	hasher   model.PasswordHasher
	codes    model.CodeIssuer
	tokens   model.TokenManager
	notifier model.Notifier
	images   model.ImageHost
	logger   *logger.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAccount creates the service. images may be nil, in which case profile
// images are rejected.
func NewAccount(
	store model.AccountStore,
	hasher model.PasswordHasher,
	codes model.CodeIssuer,
	tokens model.TokenManager,
	notifier model.Notifier,
	images model.ImageHost,
	logger *logger.Logger,
) *Account {
	return &Account{
		store:    store,
		hasher:   hasher,
		codes:    codes,
		tokens:   tokens,
		notifier: notifier,
		images:   images,
		logger:   logger,
		now:      time.Now,
	}
}

// Register creates an unverified account and emails it a verification code.
// No session is issued until the email is verified.
func (a *Account) Register(ctx context.Context, params model.RegisterParams) (model.Profile, error) {
	params = params.Normalize()
	a.logger.Debug("Account service: starting registration",
		"email", params.Email,
		"username", params.Username)

	if err := params.Validate(); err != nil {
		return model.Profile{}, apierror.NewErrValidation(err)
	}

	_, err := a.store.GetByEmail(ctx, params.Email)
	if err == nil {
		a.logger.Info("Account service: email already registered",
			"email", params.Email)
		return model.Profile{}, apierror.NewErrEmailIsTaken(params.Email)
	}
	if !errors.Is(err, model.ErrNotFound) {
		a.logger.Error("Account service: failed to get account by email",
			"email", params.Email,
			"error", err.Error())
		return model.Profile{}, apierror.NewErrInternalServerError(fmt.Errorf("failed to get account by email: %w", err))
	}

	var profileImage string
	if params.ProfileImage != "" {
		profileImage, err = a.uploadImage(ctx, params.ProfileImage)
		if err != nil {
			return model.Profile{}, err
		}
	}

	hash, err := a.hasher.Hash(params.Password)
	if err != nil {
		a.discardImage(profileImage)
		return model.Profile{}, a.internal("failed to hash password", err)
	}

	code, err := a.codes.Issue(a.now())
	if err != nil {
		a.discardImage(profileImage)
		return model.Profile{}, a.internal("failed to issue verification code", err)
	}

	account, err := a.store.Create(ctx, model.Account{
		ID:           uuid.New(),
		Username:     params.Username,
		FullName:     params.FullName,
		Email:        params.Email,
		PasswordHash: hash,
		ProfileImage: profileImage,
		Role:         model.DefaultRole,
		Verification: &code,
	})
	if err != nil {
		a.discardImage(profileImage)
		if errors.Is(err, model.ErrDuplicateKey) {
			a.logger.Info("Account service: email or username already taken",
				"email", params.Email,
				"username", params.Username)
			return model.Profile{}, apierror.NewErrAccountTaken()
		}
		return model.Profile{}, a.internal("failed to create account", err)
	}

	a.notify(ctx, "verification", account, func(ctx context.Context) error {
		return a.notifier.SendVerificationCode(ctx, account, code)
	})

	a.logger.Info("Account service: account registered",
		"account_id", account.ID,
		"email", account.Email)

	return account.Profile(), nil
}

// VerifyEmail redeems a verification code and issues a full session.
func (a *Account) VerifyEmail(ctx context.Context, email, code string) (model.Session, error) {
	email = model.NormalizeEmail(email)
	a.logger.Debug("Account service: verifying email",
		"email", email)

	account, err := a.store.ConsumeVerificationCode(ctx, email, code, a.now())
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			a.logger.Info("Account service: verification code rejected",
				"email", email)
			return model.Session{}, apierror.NewErrInvalidVerificationCode()
		}
		return model.Session{}, a.internal("failed to consume verification code", err)
	}

	session, err := a.issueSession(account, model.SessionFull)
	if err != nil {
		return model.Session{}, err
	}

	a.logger.Info("Account service: email verified",
		"account_id", account.ID)

	return session, nil
}

// ResendVerification replaces the pending verification code and emails it.
func (a *Account) ResendVerification(ctx context.Context, email string) error {
	email = model.NormalizeEmail(email)

	account, err := a.getByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.IsVerified {
		return apierror.NewErrAlreadyVerified()
	}

	code, err := a.codes.Issue(a.now())
	if err != nil {
		return a.internal("failed to issue verification code", err)
	}

	account, err = a.update(ctx, account.ID, model.AccountUpdate{Verification: &code})
	if err != nil {
		return err
	}

	a.notify(ctx, "resend verification", account, func(ctx context.Context) error {
		return a.notifier.ResendVerificationCode(ctx, account, code)
	})

	a.logger.Info("Account service: verification code reissued",
		"account_id", account.ID)

	return nil
}

// Login checks credentials and issues a login session. An unknown email and
// a wrong password are reported identically.
func (a *Account) Login(ctx context.Context, email, password string) (model.Session, error) {
	email = model.NormalizeEmail(email)
	a.logger.Debug("Account service: login attempt",
		"email", email)

	account, err := a.store.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return model.Session{}, a.internal("failed to get account by email", err)
		}
		a.equalizeTiming(password)
		a.logger.Info("Account service: login for unknown email",
			"email", email)
		return model.Session{}, apierror.NewErrInvalidCredentials()
	}

	if err := a.checkPassword(account, password, apierror.NewErrInvalidCredentials()); err != nil {
		return model.Session{}, err
	}

	if !account.IsVerified {
		return model.Session{}, apierror.NewErrNotVerified()
	}

	session, err := a.issueSession(account, model.SessionLogin)
	if err != nil {
		return model.Session{}, err
	}

	a.logger.Info("Account service: logged in",
		"account_id", account.ID)

	return session, nil
}

// GetProfile returns the public profile of the account.
func (a *Account) GetProfile(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	account, err := a.getByID(ctx, id)
	if err != nil {
		return model.Profile{}, err
	}
	return account.Profile(), nil
}

// UpdateProfile applies the supplied fields of patch. A new profile image is
// uploaded first and the replaced one removed after the update succeeds.
func (a *Account) UpdateProfile(ctx context.Context, id uuid.UUID, patch model.ProfilePatch) (model.Profile, error) {
	patch = patch.Normalize()
	if err := patch.Validate(); err != nil {
		return model.Profile{}, apierror.NewErrValidation(err)
	}

	current, err := a.getByID(ctx, id)
	if err != nil {
		return model.Profile{}, err
	}

	update := model.AccountUpdate{
		FullName: patch.FullName,
		Email:    patch.Email,
		Username: patch.Username,
	}

	var uploaded string
	if patch.ProfileImage != nil && *patch.ProfileImage != "" {
		uploaded, err = a.uploadImage(ctx, *patch.ProfileImage)
		if err != nil {
			return model.Profile{}, err
		}
		update.ProfileImage = &uploaded
	}

	if update.IsEmpty() {
		return current.Profile(), nil
	}

	account, err := a.store.Update(ctx, id, update)
	if err != nil {
		a.discardImage(uploaded)
		switch {
		case errors.Is(err, model.ErrNotFound):
			return model.Profile{}, apierror.NewErrUserNotFound()
		case errors.Is(err, model.ErrDuplicateKey):
			return model.Profile{}, apierror.NewErrAccountTaken()
		default:
			return model.Profile{}, a.internal("failed to update account", err)
		}
	}

	if uploaded != "" && current.ProfileImage != "" && current.ProfileImage != uploaded {
		a.discardImage(current.ProfileImage)
	}

	a.logger.Info("Account service: profile updated",
		"account_id", id)

	return account.Profile(), nil
}

// ChangePassword replaces the password after confirming the current one.
func (a *Account) ChangePassword(ctx context.Context, id uuid.UUID, currentPassword, newPassword string) error {
	if err := model.ValidatePassword(newPassword); err != nil {
		return apierror.NewErrValidation(err)
	}

	account, err := a.getByID(ctx, id)
	if err != nil {
		return err
	}

	if err := a.checkPassword(account, currentPassword, apierror.New(apierror.KindInvalidCredentials, "Current password is incorrect")); err != nil {
		return err
	}

	hash, err := a.hasher.Hash(newPassword)
	if err != nil {
		return a.internal("failed to hash password", err)
	}

	if _, err := a.update(ctx, id, model.AccountUpdate{PasswordHash: &hash}); err != nil {
		return err
	}

	a.logger.Info("Account service: password changed",
		"account_id", id)

	return nil
}

// DeleteAccount removes the account after confirming its password.
func (a *Account) DeleteAccount(ctx context.Context, id uuid.UUID, password string) error {
	account, err := a.getByID(ctx, id)
	if err != nil {
		return err
	}

	if err := a.checkPassword(account, password, apierror.NewErrIncorrectPassword()); err != nil {
		return err
	}

	if err := a.store.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return apierror.NewErrUserNotFound()
		}
		return a.internal("failed to delete account", err)
	}

	a.discardImage(account.ProfileImage)

	a.logger.Info("Account service: account deleted",
		"account_id", id)

	return nil
}

// ForgotPassword issues a reset code and emails it.
func (a *Account) ForgotPassword(ctx context.Context, email string) error {
	email = model.NormalizeEmail(email)

	account, err := a.getByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := a.codes.Issue(a.now())
	if err != nil {
		return a.internal("failed to issue reset code", err)
	}

	account, err = a.update(ctx, account.ID, model.AccountUpdate{Reset: &code})
	if err != nil {
		return err
	}

	a.notify(ctx, "reset", account, func(ctx context.Context) error {
		return a.notifier.SendResetCode(ctx, account, code)
	})

	a.logger.Info("Account service: reset code issued",
		"account_id", account.ID)

	return nil
}

// ResetPassword redeems a reset code and sets the new password.
func (a *Account) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = model.NormalizeEmail(email)
	if err := model.ValidatePassword(newPassword); err != nil {
		return apierror.NewErrValidation(err)
	}

	hash, err := a.hasher.Hash(newPassword)
	if err != nil {
		return a.internal("failed to hash password", err)
	}

	account, err := a.store.ConsumeResetCode(ctx, email, code, a.now(), hash)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			a.logger.Info("Account service: reset code rejected",
				"email", email)
			return apierror.NewErrInvalidResetCode()
		}
		return a.internal("failed to consume reset code", err)
	}

	a.logger.Info("Account service: password reset",
		"account_id", account.ID)

	return nil
}

// Authenticate resolves a session token into its claims.
func (a *Account) Authenticate(_ context.Context, token string) (model.SessionClaims, error) {
	if token == "" {
		return model.SessionClaims{}, apierror.NewErrMissingAuthorizationToken()
	}

	claims, err := a.tokens.ParseSessionToken(token)
	if err != nil {
		a.logger.Debug("Account service: session token rejected",
			"error", err.Error())
		apiErr := apierror.NewErrInvalidAuthorizationToken()
		apiErr.Err = err
		return model.SessionClaims{}, apiErr
	}

	return claims, nil
}

func (a *Account) getByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	account, err := a.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Account{}, apierror.NewErrUserNotFound()
		}
		return model.Account{}, a.internal("failed to get account by id", err)
	}
	return account, nil
}

func (a *Account) getByEmail(ctx context.Context, email string) (model.Account, error) {
	account, err := a.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Account{}, apierror.NewErrUserNotFound()
		}
		return model.Account{}, a.internal("failed to get account by email", err)
	}
	return account, nil
}

func (a *Account) update(ctx context.Context, id uuid.UUID, update model.AccountUpdate) (model.Account, error) {
	account, err := a.store.Update(ctx, id, update)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			return model.Account{}, apierror.NewErrUserNotFound()
		case errors.Is(err, model.ErrDuplicateKey):
			return model.Account{}, apierror.NewErrAccountTaken()
		default:
			return model.Account{}, a.internal("failed to update account", err)
		}
	}
	return account, nil
}

// checkPassword returns mismatchErr when password does not match the stored hash.
func (a *Account) checkPassword(account model.Account, password string, mismatchErr *apierror.APIError) error {
	err := a.hasher.Compare(account.PasswordHash, password)
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrPasswordMismatch) {
		a.logger.Info("Account service: password mismatch",
			"account_id", account.ID)
		return mismatchErr
	}
	return a.internal("failed to compare password", err)
}

func (a *Account) equalizeTiming(password string) {
	a.dummyOnce.Do(func() {
		hash, err := a.hasher.Hash(timingPassword)
		if err != nil {
			a.logger.Error("Account service: failed to prepare timing hash",
				"error", err.Error())
			return
		}
		a.dummyHash = hash
	})
	if a.dummyHash != "" {
		_ = a.hasher.Compare(a.dummyHash, password)
	}
}

func (a *Account) issueSession(account model.Account, kind model.SessionKind) (model.Session, error) {
	session, err := a.tokens.GenerateSessionToken(model.SessionClaims{
		AccountID: account.ID,
		Role:      account.Role,
		Verified:  account.IsVerified,
		Kind:      kind,
	})
	if err != nil {
		return model.Session{}, a.internal("failed to generate session token", err)
	}
	return session, nil
}

func (a *Account) uploadImage(ctx context.Context, raw string) (string, error) {
	if a.images == nil {
		return "", apierror.New(apierror.KindValidationFailed, "Profile images are not supported")
	}

	hosted, err := a.images.Upload(ctx, raw)
	switch {
	case errors.Is(err, model.ErrImageUnreachable):
		a.logger.Info("Account service: profile image unreachable",
			"error", err.Error())
		return "", apierror.NewErrImageUnreachable(err)
	case errors.Is(err, model.ErrInvalidImage):
		a.logger.Info("Account service: profile image rejected",
			"error", err.Error())
		return "", apierror.NewErrInvalidImage(err)
	case err != nil:
		return "", a.internal("failed to upload profile image", err)
	}
	return hosted, nil
}

// discardImage removes a hosted image without failing the caller.
func (a *Account) discardImage(hostedURL string) {
	if hostedURL == "" || a.images == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := a.images.Delete(ctx, hostedURL); err != nil {
		a.logger.Warn("Account service: failed to remove profile image",
			"url", hostedURL,
			"error", err.Error())
	}
}

// notify sends a lifecycle email after the state change is persisted.
// Failures are logged and never returned.
func (a *Account) notify(ctx context.Context, kind string, account model.Account, send func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := send(ctx); err != nil {
		a.logger.Error("Account service: failed to send notification",
			"kind", kind,
			"account_id", account.ID,
			"error", err.Error())
	}
}

func (a *Account) internal(msg string, err error) *apierror.APIError {
	a.logger.Error("Account service: "+msg,
		"error", err.Error())
	return apierror.NewErrInternalServerError(fmt.Errorf("%s: %w", msg, err))
}

var _ model.AccountService = (*Account)(nil)
