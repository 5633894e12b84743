package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/account-server/internal/apierror"
	"github.com/dtroode/account-server/internal/model"
	"github.com/dtroode/account-server/internal/otp"
	"github.com/dtroode/account-server/internal/password"
	"github.com/dtroode/account-server/internal/repository/memory"
	"github.com/dtroode/account-server/internal/testutil"
	"github.com/dtroode/account-server/internal/token"
	"golang.org/x/crypto/bcrypt"
)

// recordingNotifier keeps the last code mailed to every address.
type recordingNotifier struct {
	mu    sync.Mutex
	codes map[string]string
	sent  []string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{codes: make(map[string]string)}
}

func (n *recordingNotifier) record(kind string, account model.Account, code model.OneTimeCode) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes[kind+":"+account.Email] = code.Code
	n.sent = append(n.sent, kind)
	return nil
}

func (n *recordingNotifier) SendVerificationCode(_ context.Context, account model.Account, code model.OneTimeCode) error {
	return n.record("verify", account, code)
}

func (n *recordingNotifier) ResendVerificationCode(_ context.Context, account model.Account, code model.OneTimeCode) error {
	return n.record("verify", account, code)
}

func (n *recordingNotifier) SendResetCode(_ context.Context, account model.Account, code model.OneTimeCode) error {
	return n.record("reset", account, code)
}

func (n *recordingNotifier) code(kind, email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[kind+":"+email]
}

type lifecycle struct {
	svc      *Account
	store    *memory.AccountRepository
	notifier *recordingNotifier
	tokens   *token.JWT
}

func newLifecycle(t *testing.T) *lifecycle {
	t.Helper()

	store := memory.NewAccountRepository()
	notifier := newRecordingNotifier()
	tokens := token.NewJWT("lifecycle-secret")
	svc := NewAccount(store, password.NewBcrypt(bcrypt.MinCost), otp.NewIssuer(), tokens, notifier, nil, testutil.MakeNoopLogger())

	return &lifecycle{svc: svc, store: store, notifier: notifier, tokens: tokens}
}

func (l *lifecycle) register(t *testing.T, email, username string) model.Profile {
	t.Helper()
	profile, err := l.svc.Register(context.Background(), model.RegisterParams{
		FullName: "Jane Doe",
		Email:    email,
		Password: "secret1",
		Username: username,
	})
	require.NoError(t, err)
	return profile
}

func TestAccountLifecycle_RegisterVerifyLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLifecycle(t)

	profile := l.register(t, "  Jane@Example.com ", "jane")
	assert.Equal(t, "jane@example.com", profile.Email)
	assert.Equal(t, model.DefaultRole, profile.Role)
	assert.False(t, profile.IsVerified)

	_, err := l.svc.Login(ctx, "jane@example.com", "secret1")
	assert.Equal(t, apierror.KindNotVerified, apierror.KindOf(err))

	code := l.notifier.code("verify", "jane@example.com")
	require.Len(t, code, 6)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = l.svc.VerifyEmail(ctx, "jane@example.com", wrong)
	assert.Equal(t, apierror.KindInvalidOrExpired, apierror.KindOf(err))

	session, err := l.svc.VerifyEmail(ctx, "JANE@example.com", code)
	require.NoError(t, err)
	claims, err := l.tokens.ParseSessionToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, claims.AccountID)
	assert.Equal(t, model.SessionFull, claims.Kind)
	assert.True(t, claims.Verified)

	_, err = l.svc.VerifyEmail(ctx, "jane@example.com", code)
	assert.Equal(t, apierror.KindInvalidOrExpired, apierror.KindOf(err), "code is single use")

	session, err = l.svc.Login(ctx, "jane@example.com", "secret1")
	require.NoError(t, err)
	claims, err = l.svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, model.SessionLogin, claims.Kind)
	assert.Equal(t, model.DefaultRole, claims.Role)

	err = l.svc.ResendVerification(ctx, "jane@example.com")
	assert.Equal(t, apierror.KindAlreadyVerified, apierror.KindOf(err))
}

func TestAccountLifecycle_RegisterConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLifecycle(t)
	l.register(t, "jane@example.com", "jane")

	tests := []struct {
		name     string
		email    string
		username string
	}{
		{name: "same email", email: "jane@example.com", username: "other"},
		{name: "same email different case", email: "JANE@EXAMPLE.COM", username: "other"},
		{name: "same username", email: "other@example.com", username: "jane"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.svc.Register(ctx, model.RegisterParams{
				FullName: "Someone",
				Email:    tt.email,
				Password: "secret1",
				Username: tt.username,
			})
			assert.Equal(t, apierror.KindConflict, apierror.KindOf(err))
		})
	}
	assert.Equal(t, 1, l.store.Len())
}

func TestAccountLifecycle_ExpiredVerificationCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLifecycle(t)
	l.register(t, "late@example.com", "late")
	code := l.notifier.code("verify", "late@example.com")

	l.svc.now = func() time.Time { return time.Now().Add(otp.CodeTTL + time.Second) }

	_, err := l.svc.VerifyEmail(ctx, "late@example.com", code)
	assert.Equal(t, apierror.KindInvalidOrExpired, apierror.KindOf(err))

	require.NoError(t, l.svc.ResendVerification(ctx, "late@example.com"))
	fresh := l.notifier.code("verify", "late@example.com")

	_, err = l.svc.VerifyEmail(ctx, "late@example.com", fresh)
	require.NoError(t, err)
}

func TestAccountLifecycle_ResendReplacesCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLifecycle(t)
	l.register(t, "resend@example.com", "resend")
	first := l.notifier.code("verify", "resend@example.com")

	var second string
	for i := 0; i < 5; i++ {
		require.NoError(t, l.svc.ResendVerification(ctx, "resend@example.com"))
		second = l.notifier.code("verify", "resend@example.com")
		if second != first {
			break
		}
	}
	require.NotEqual(t, first, second)

	_, err := l.svc.VerifyEmail(ctx, "resend@example.com", first)
	assert.Equal(t, apierror.KindInvalidOrExpired, apierror.KindOf(err))

	_, err = l.svc.VerifyEmail(ctx, "resend@example.com", second)
	require.NoError(t, err)

	err = l.svc.ResendVerification(ctx, "nobody@example.com")
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
}

func TestAccountLifecycle_ConcurrentVerification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLifecycle(t)
	l.register(t, "race@example.com", "race")
	code := l.notifier.code("verify", "race@example.com")

	const workers = 8
	var (
		wg       sync.WaitGroup
		success  atomic.Int32
		rejected atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := l.svc.VerifyEmail(ctx, "race@example.com", code)
			if err == nil {
				success.Add(1)
				return
			}
			if apierror.KindOf(err) == apierror.KindInvalidOrExpired {
				rejected.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, success.Load())
	assert.EqualValues(t, workers-1, rejected.Load())
}

func TestAccountLifecycle_LoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLifecycle(t)
	l.register(t, "known@example.com", "known")

	_, unknownErr := l.svc.Login(ctx, "unknown@example.com", "secret1")
	_, wrongErr := l.svc.Login(ctx, "known@example.com", "wrong-password")

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, apierror.KindInvalidCredentials, apierror.KindOf(unknownErr))
	assert.Equal(t, apierror.From(unknownErr).Message, apierror.From(wrongErr).Message)
	assert.NotEmpty(t, l.svc.dummyHash)
}

func TestAccountLifecycle_PasswordReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLifecycle(t)
	l.register(t, "reset@example.com", "reset")
	_, err := l.svc.VerifyEmail(ctx, "reset@example.com", l.notifier.code("verify", "reset@example.com"))
	require.NoError(t, err)

	err = l.svc.ForgotPassword(ctx, "missing@example.com")
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))

	require.NoError(t, l.svc.ForgotPassword(ctx, "reset@example.com"))
	code := l.notifier.code("reset", "reset@example.com")
	require.Len(t, code, 6)

	err = l.svc.ResetPassword(ctx, "reset@example.com", code, "123")
	assert.Equal(t, apierror.KindValidationFailed, apierror.KindOf(err))

	require.NoError(t, l.svc.ResetPassword(ctx, "reset@example.com", code, "brand-new"))

	err = l.svc.ResetPassword(ctx, "reset@example.com", code, "another-one")
	assert.Equal(t, apierror.KindInvalidOrExpired, apierror.KindOf(err), "reset code is single use")

	_, err = l.svc.Login(ctx, "reset@example.com", "secret1")
	assert.Equal(t, apierror.KindInvalidCredentials, apierror.KindOf(err))

	_, err = l.svc.Login(ctx, "reset@example.com", "brand-new")
	require.NoError(t, err)
}

func TestAccountLifecycle_ProfileManagement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLifecycle(t)
	jane := l.register(t, "jane@example.com", "jane")
	l.register(t, "john@example.com", "john")

	name := "Jane Smith"
	updated, err := l.svc.UpdateProfile(ctx, jane.ID, model.ProfilePatch{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", updated.FullName)
	assert.Equal(t, "jane", updated.Username)

	taken := "john@example.com"
	_, err = l.svc.UpdateProfile(ctx, jane.ID, model.ProfilePatch{Email: &taken})
	assert.Equal(t, apierror.KindConflict, apierror.KindOf(err))

	same := "jane@example.com"
	_, err = l.svc.UpdateProfile(ctx, jane.ID, model.ProfilePatch{Email: &same})
	require.NoError(t, err)

	got, err := l.svc.GetProfile(ctx, jane.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", got.FullName)

	err = l.svc.ChangePassword(ctx, jane.ID, "not-it", "changed1")
	assert.Equal(t, apierror.KindInvalidCredentials, apierror.KindOf(err))

	require.NoError(t, l.svc.ChangePassword(ctx, jane.ID, "secret1", "changed1"))

	err = l.svc.DeleteAccount(ctx, jane.ID, "secret1")
	assert.Equal(t, apierror.KindInvalidCredentials, apierror.KindOf(err))

	require.NoError(t, l.svc.DeleteAccount(ctx, jane.ID, "changed1"))

	_, err = l.svc.GetProfile(ctx, jane.ID)
	assert.Equal(t, apierror.KindNotFound, apierror.KindOf(err))
	assert.Equal(t, 1, l.store.Len())
}

func TestAccountLifecycle_ChangePasswordThenLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLifecycle(t)
	profile := l.register(t, "change@example.com", "change")
	_, err := l.svc.VerifyEmail(ctx, "change@example.com", l.notifier.code("verify", "change@example.com"))
	require.NoError(t, err)

	require.NoError(t, l.svc.ChangePassword(ctx, profile.ID, "secret1", "changed1"))

	session, err := l.svc.Login(ctx, "change@example.com", "changed1")
	require.NoError(t, err)
	claims, err := l.svc.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, claims.AccountID)

	_, err = l.svc.Login(ctx, "change@example.com", "secret1")
	assert.Equal(t, apierror.KindInvalidCredentials, apierror.KindOf(err))
}
