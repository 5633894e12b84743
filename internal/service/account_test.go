package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/account-server/internal/apierror"
	"github.com/dtroode/account-server/internal/mocks"
	"github.com/dtroode/account-server/internal/model"
	"github.com/dtroode/account-server/internal/testutil"
)

type accountDeps struct {
	store    *mocks.AccountStore
	hasher   *mocks.PasswordHasher
	codes    *mocks.CodeIssuer
	tokens   *mocks.TokenManager
	notifier *mocks.Notifier
	images   *mocks.ImageHost
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newAccountService(t *testing.T) (*Account, accountDeps) {
	t.Helper()
	deps := accountDeps{
		store:    mocks.NewAccountStore(t),
		hasher:   mocks.NewPasswordHasher(t),
		codes:    mocks.NewCodeIssuer(t),
		tokens:   mocks.NewTokenManager(t),
		notifier: mocks.NewNotifier(t),
		images:   mocks.NewImageHost(t),
	}
	svc := NewAccount(deps.store, deps.hasher, deps.codes, deps.tokens, deps.notifier, deps.images, testutil.MakeNoopLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc, deps
}

func validRegisterParams() model.RegisterParams {
	return model.RegisterParams{
		FullName: "Jane Doe",
		Email:    "jane@example.com",
		Password: "secret1",
		Username: "jane",
	}
}

func TestAccount_Register(t *testing.T) {
	t.Parallel()

	code := model.OneTimeCode{Code: "123456", ExpiresAt: fixedNow.Add(10 * time.Minute)}
	dbErr := errors.New("connection reset")

	tests := []struct {
		name     string
		params   func() model.RegisterParams
		setup    func(d accountDeps)
		wantKind apierror.Kind
	}{
		{
			name:   "success",
			params: validRegisterParams,
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(model.Account{}, model.ErrNotFound)
				d.hasher.On("Hash", "secret1").Return("hashed", nil)
				d.codes.On("Issue", fixedNow).Return(code, nil)
				d.store.On("Create", mock.Anything, mock.MatchedBy(func(a model.Account) bool {
					return a.PasswordHash == "hashed" && !a.IsVerified && a.Role == model.DefaultRole &&
						a.Verification != nil && a.Verification.Code == "123456" && a.ID != uuid.Nil
				})).Return(func(_ context.Context, a model.Account) (model.Account, error) {
					return a, nil
				})
				d.notifier.On("SendVerificationCode", mock.Anything, mock.Anything, code).Return(nil)
			},
		},
		{
			name:   "notification failure does not fail registration",
			params: validRegisterParams,
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(model.Account{}, model.ErrNotFound)
				d.hasher.On("Hash", "secret1").Return("hashed", nil)
				d.codes.On("Issue", fixedNow).Return(code, nil)
				d.store.On("Create", mock.Anything, mock.Anything).Return(model.Account{ID: uuid.New(), Email: "jane@example.com"}, nil)
				d.notifier.On("SendVerificationCode", mock.Anything, mock.Anything, code).Return(errors.New("smtp down"))
			},
		},
		{
			name: "validation failure",
			params: func() model.RegisterParams {
				p := validRegisterParams()
				p.Password = "123"
				return p
			},
			setup:    func(accountDeps) {},
			wantKind: apierror.KindValidationFailed,
		},
		{
			name:   "email taken",
			params: validRegisterParams,
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(model.Account{ID: uuid.New()}, nil)
			},
			wantKind: apierror.KindConflict,
		},
		{
			name:   "username taken on create",
			params: validRegisterParams,
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(model.Account{}, model.ErrNotFound)
				d.hasher.On("Hash", "secret1").Return("hashed", nil)
				d.codes.On("Issue", fixedNow).Return(code, nil)
				d.store.On("Create", mock.Anything, mock.Anything).Return(model.Account{}, model.ErrDuplicateKey)
			},
			wantKind: apierror.KindConflict,
		},
		{
			name:   "lookup failure",
			params: validRegisterParams,
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(model.Account{}, dbErr)
			},
			wantKind: apierror.KindInternal,
		},
		{
			name: "invalid image is rejected before anything is stored",
			params: func() model.RegisterParams {
				p := validRegisterParams()
				p.ProfileImage = "data:text/plain;base64,aGVsbG8="
				return p
			},
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(model.Account{}, model.ErrNotFound)
				d.images.On("Upload", mock.Anything, "data:text/plain;base64,aGVsbG8=").Return("", model.ErrInvalidImage)
			},
			wantKind: apierror.KindValidationFailed,
		},
		{
			name: "uploaded image is removed when create fails",
			params: func() model.RegisterParams {
				p := validRegisterParams()
				p.ProfileImage = "https://example.com/me.png"
				return p
			},
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(model.Account{}, model.ErrNotFound)
				d.images.On("Upload", mock.Anything, "https://example.com/me.png").Return("https://cdn/users/profile_images/a.png", nil)
				d.hasher.On("Hash", "secret1").Return("hashed", nil)
				d.codes.On("Issue", fixedNow).Return(code, nil)
				d.store.On("Create", mock.Anything, mock.Anything).Return(model.Account{}, dbErr)
				d.images.On("Delete", mock.Anything, "https://cdn/users/profile_images/a.png").Return(nil)
			},
			wantKind: apierror.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, deps := newAccountService(t)
			tt.setup(deps)

			profile, err := svc.Register(context.Background(), tt.params())
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, apierror.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "jane@example.com", profile.Email)
			assert.False(t, profile.IsVerified)
		})
	}
}

func TestAccount_VerifyEmail(t *testing.T) {
	t.Parallel()

	account := model.Account{ID: uuid.New(), Role: "user", IsVerified: true}

	t.Run("success issues full session", func(t *testing.T) {
		t.Parallel()
		svc, deps := newAccountService(t)
		deps.store.On("ConsumeVerificationCode", mock.Anything, "jane@example.com", "123456", fixedNow).Return(account, nil)
		deps.tokens.On("GenerateSessionToken", model.SessionClaims{
			AccountID: account.ID,
			Role:      "user",
			Verified:  true,
			Kind:      model.SessionFull,
		}).Return(model.Session{Token: "tok"}, nil)

		session, err := svc.VerifyEmail(context.Background(), " Jane@Example.com", "123456")
		require.NoError(t, err)
		assert.Equal(t, "tok", session.Token)
	})

	t.Run("no match", func(t *testing.T) {
		t.Parallel()
		svc, deps := newAccountService(t)
		deps.store.On("ConsumeVerificationCode", mock.Anything, "jane@example.com", "000000", fixedNow).Return(model.Account{}, model.ErrNotFound)

		_, err := svc.VerifyEmail(context.Background(), "jane@example.com", "000000")
		assert.Equal(t, apierror.KindInvalidOrExpired, apierror.KindOf(err))
	})

	t.Run("token failure", func(t *testing.T) {
		t.Parallel()
		svc, deps := newAccountService(t)
		deps.store.On("ConsumeVerificationCode", mock.Anything, "jane@example.com", "123456", fixedNow).Return(account, nil)
		deps.tokens.On("GenerateSessionToken", mock.Anything).Return(model.Session{}, errors.New("boom"))

		_, err := svc.VerifyEmail(context.Background(), "jane@example.com", "123456")
		assert.Equal(t, apierror.KindInternal, apierror.KindOf(err))
	})
}

func TestAccount_Login(t *testing.T) {
	t.Parallel()

	verified := model.Account{ID: uuid.New(), Email: "jane@example.com", PasswordHash: "hash", Role: "user", IsVerified: true}
	unverified := verified
	unverified.IsVerified = false

	tests := []struct {
		name     string
		setup    func(d accountDeps)
		wantKind apierror.Kind
	}{
		{
			name: "success",
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(verified, nil)
				d.hasher.On("Compare", "hash", "secret1").Return(nil)
				d.tokens.On("GenerateSessionToken", mock.MatchedBy(func(c model.SessionClaims) bool {
					return c.Kind == model.SessionLogin && c.AccountID == verified.ID
				})).Return(model.Session{Token: "tok"}, nil)
			},
		},
		{
			name: "unknown email still compares a hash",
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(model.Account{}, model.ErrNotFound)
				d.hasher.On("Hash", timingPassword).Return("dummy", nil).Once()
				d.hasher.On("Compare", "dummy", "secret1").Return(model.ErrPasswordMismatch)
			},
			wantKind: apierror.KindInvalidCredentials,
		},
		{
			name: "wrong password",
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(verified, nil)
				d.hasher.On("Compare", "hash", "secret1").Return(model.ErrPasswordMismatch)
			},
			wantKind: apierror.KindInvalidCredentials,
		},
		{
			name: "not verified",
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(unverified, nil)
				d.hasher.On("Compare", "hash", "secret1").Return(nil)
			},
			wantKind: apierror.KindNotVerified,
		},
		{
			name: "hasher failure",
			setup: func(d accountDeps) {
				d.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(verified, nil)
				d.hasher.On("Compare", "hash", "secret1").Return(errors.New("corrupt hash"))
			},
			wantKind: apierror.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, deps := newAccountService(t)
			tt.setup(deps)

			session, err := svc.Login(context.Background(), "jane@example.com", "secret1")
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, apierror.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "tok", session.Token)
		})
	}
}

func TestAccount_UpdateProfile(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	current := model.Account{ID: id, FullName: "Jane", ProfileImage: "https://cdn/users/profile_images/old.png"}

	t.Run("new image replaces the old one", func(t *testing.T) {
		t.Parallel()
		svc, deps := newAccountService(t)
		raw := "data:image/png;base64,AAAA"
		hosted := "https://cdn/users/profile_images/new.png"

		deps.store.On("GetByID", mock.Anything, id).Return(current, nil)
		deps.images.On("Upload", mock.Anything, raw).Return(hosted, nil)
		deps.store.On("Update", mock.Anything, id, mock.MatchedBy(func(u model.AccountUpdate) bool {
			return u.ProfileImage != nil && *u.ProfileImage == hosted && u.FullName == nil
		})).Return(model.Account{ID: id, ProfileImage: hosted}, nil)
		deps.images.On("Delete", mock.Anything, current.ProfileImage).Return(nil)

		profile, err := svc.UpdateProfile(context.Background(), id, model.ProfilePatch{ProfileImage: &raw})
		require.NoError(t, err)
		assert.Equal(t, hosted, profile.ProfileImage)
	})

	t.Run("empty patch returns current profile", func(t *testing.T) {
		t.Parallel()
		svc, deps := newAccountService(t)
		empty := ""
		deps.store.On("GetByID", mock.Anything, id).Return(current, nil)

		profile, err := svc.UpdateProfile(context.Background(), id, model.ProfilePatch{ProfileImage: &empty})
		require.NoError(t, err)
		assert.Equal(t, "Jane", profile.FullName)
		deps.store.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid email", func(t *testing.T) {
		t.Parallel()
		svc, _ := newAccountService(t)
		bad := "not-an-email"

		_, err := svc.UpdateProfile(context.Background(), id, model.ProfilePatch{Email: &bad})
		assert.Equal(t, apierror.KindValidationFailed, apierror.KindOf(err))
	})

	t.Run("missing account", func(t *testing.T) {
		t.Parallel()
		svc, deps := newAccountService(t)
		name := "New"
		deps.store.On("GetByID", mock.Anything, id).Return(model.Account{}, model.ErrNotFound)

		_, err := svc.UpdateProfile(context.Background(), id, model.ProfilePatch{FullName: &name})
		assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
	})
}

func TestAccount_DeleteAccount_RemovesImage(t *testing.T) {
	t.Parallel()
	svc, deps := newAccountService(t)
	id := uuid.New()
	account := model.Account{ID: id, PasswordHash: "hash", ProfileImage: "https://cdn/users/profile_images/me.png"}

	deps.store.On("GetByID", mock.Anything, id).Return(account, nil)
	deps.hasher.On("Compare", "hash", "secret1").Return(nil)
	deps.store.On("Delete", mock.Anything, id).Return(nil)
	deps.images.On("Delete", mock.Anything, account.ProfileImage).Return(errors.New("storage unavailable"))

	require.NoError(t, svc.DeleteAccount(context.Background(), id, "secret1"))
}

func TestAccount_ForgotPassword_NotificationFailureIsIgnored(t *testing.T) {
	t.Parallel()
	svc, deps := newAccountService(t)
	account := model.Account{ID: uuid.New(), Email: "jane@example.com", IsVerified: true}
	code := model.OneTimeCode{Code: "654321", ExpiresAt: fixedNow.Add(10 * time.Minute)}

	deps.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(account, nil)
	deps.codes.On("Issue", fixedNow).Return(code, nil)
	deps.store.On("Update", mock.Anything, account.ID, model.AccountUpdate{Reset: &code}).Return(account, nil)
	deps.notifier.On("SendResetCode", mock.Anything, account, code).Return(errors.New("smtp down"))

	require.NoError(t, svc.ForgotPassword(context.Background(), "Jane@example.com"))
}

func TestAccount_ResetPassword_StoreFailure(t *testing.T) {
	t.Parallel()
	svc, deps := newAccountService(t)

	deps.hasher.On("Hash", "brand-new").Return("new-hash", nil)
	deps.store.On("ConsumeResetCode", mock.Anything, "jane@example.com", "123456", fixedNow, "new-hash").Return(model.Account{}, errors.New("timeout"))

	err := svc.ResetPassword(context.Background(), "jane@example.com", "123456", "brand-new")
	assert.Equal(t, apierror.KindInternal, apierror.KindOf(err))
}

func TestAccount_Authenticate(t *testing.T) {
	t.Parallel()

	t.Run("missing token", func(t *testing.T) {
		t.Parallel()
		svc, _ := newAccountService(t)
		_, err := svc.Authenticate(context.Background(), "")
		assert.Equal(t, apierror.KindInvalidToken, apierror.KindOf(err))
	})

	t.Run("invalid token", func(t *testing.T) {
		t.Parallel()
		svc, deps := newAccountService(t)
		deps.tokens.On("ParseSessionToken", "bad").Return(model.SessionClaims{}, errors.New("signature is invalid"))

		_, err := svc.Authenticate(context.Background(), "bad")
		assert.Equal(t, apierror.KindInvalidToken, apierror.KindOf(err))
	})

	t.Run("valid token", func(t *testing.T) {
		t.Parallel()
		svc, deps := newAccountService(t)
		claims := model.SessionClaims{AccountID: uuid.New(), Kind: model.SessionLogin}
		deps.tokens.On("ParseSessionToken", "good").Return(claims, nil)

		got, err := svc.Authenticate(context.Background(), "good")
		require.NoError(t, err)
		assert.Equal(t, claims, got)
	})
}

func TestAccount_Register_ImageErrorsHideCause(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "unreachable source",
			err:     fmt.Errorf("%w: %w", model.ErrImageUnreachable, errors.New(`dial tcp 127.0.0.1:45039: connect: connection refused`)),
			wantMsg: "Profile image could not be fetched",
		},
		{
			name:    "rejected image",
			err:     fmt.Errorf("%w: 40000x40000 exceeds 40000000 pixels", model.ErrInvalidImage),
			wantMsg: "Profile image must be a PNG, JPEG, GIF or WebP image within the size limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc, deps := newAccountService(t)
			params := validRegisterParams()
			params.ProfileImage = "http://127.0.0.1:45039/internal"

			deps.store.On("GetByEmail", mock.Anything, "jane@example.com").Return(model.Account{}, model.ErrNotFound)
			deps.images.On("Upload", mock.Anything, params.ProfileImage).Return("", tt.err)

			_, err := svc.Register(context.Background(), params)
			require.Error(t, err)

			apiErr := apierror.From(err)
			assert.Equal(t, apierror.KindValidationFailed, apiErr.Kind)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.NotContains(t, apiErr.Message, "127.0.0.1")
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
