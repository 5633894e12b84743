// Package storetest holds the behavioural contract every model.AccountStore
// implementation must satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/account-server/internal/model"
)

// Run executes the contract suite. Tests share the store, so every test
// creates accounts with unique emails and usernames.
func Run(t *testing.T, store model.AccountStore) {
	t.Helper()

	t.Run("create and get", func(t *testing.T) { testCreateAndGet(t, store) })
	t.Run("create duplicate", func(t *testing.T) { testCreateDuplicate(t, store) })
	t.Run("not found", func(t *testing.T) { testNotFound(t, store) })
	t.Run("update", func(t *testing.T) { testUpdate(t, store) })
	t.Run("update duplicate", func(t *testing.T) { testUpdateDuplicate(t, store) })
	t.Run("delete", func(t *testing.T) { testDelete(t, store) })
	t.Run("consume verification code", func(t *testing.T) { testConsumeVerificationCode(t, store) })
	t.Run("consume reset code", func(t *testing.T) { testConsumeResetCode(t, store) })
	t.Run("concurrent consume", func(t *testing.T) { testConcurrentConsume(t, store) })
	t.Run("ping", func(t *testing.T) { require.NoError(t, store.Ping(context.Background())) })
}

// NewAccount returns an unverified account with a pending verification code
// and unique identifiers.
func NewAccount(now time.Time) model.Account {
	suffix := uuid.NewString()[:8]
	return model.Account{
		ID:           uuid.New(),
		Username:     "user-" + suffix,
		FullName:     "Test User",
		Email:        "user-" + suffix + "@example.com",
		PasswordHash: "$2a$10$hash",
		Role:         model.DefaultRole,
		Verification: &model.OneTimeCode{
			Code:      "123456",
			ExpiresAt: now.Add(10 * time.Minute).Truncate(time.Millisecond),
		},
	}
}

func testCreateAndGet(t *testing.T, store model.AccountStore) {
	ctx := context.Background()
	now := time.Now().UTC()
	want := NewAccount(now)
	want.ProfileImage = "https://cdn.example.com/a.png"

	created, err := store.Create(ctx, want)
	require.NoError(t, err)
	assert.Equal(t, want.ID, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	byID, err := store.GetByID(ctx, want.ID)
	require.NoError(t, err)
	assertSameAccount(t, want, byID)

	byEmail, err := store.GetByEmail(ctx, want.Email)
	require.NoError(t, err)
	assertSameAccount(t, want, byEmail)
	assert.Nil(t, byEmail.Reset)
}

func testCreateDuplicate(t *testing.T, store model.AccountStore) {
	ctx := context.Background()
	now := time.Now().UTC()
	first := NewAccount(now)
	_, err := store.Create(ctx, first)
	require.NoError(t, err)

	sameEmail := NewAccount(now)
	sameEmail.Email = first.Email
	_, err = store.Create(ctx, sameEmail)
	require.ErrorIs(t, err, model.ErrDuplicateKey)

	sameUsername := NewAccount(now)
	sameUsername.Username = first.Username
	_, err = store.Create(ctx, sameUsername)
	require.ErrorIs(t, err, model.ErrDuplicateKey)

	_, err = store.GetByEmail(ctx, sameUsername.Email)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func testNotFound(t *testing.T, store model.AccountStore) {
	ctx := context.Background()

	_, err := store.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = store.GetByEmail(ctx, "missing-"+uuid.NewString()+"@example.com")
	require.ErrorIs(t, err, model.ErrNotFound)

	name := "x"
	_, err = store.Update(ctx, uuid.New(), model.AccountUpdate{FullName: &name})
	require.ErrorIs(t, err, model.ErrNotFound)

	require.ErrorIs(t, store.Delete(ctx, uuid.New()), model.ErrNotFound)
}

func testUpdate(t *testing.T, store model.AccountStore) {
	ctx := context.Background()
	now := time.Now().UTC()
	account := NewAccount(now)
	_, err := store.Create(ctx, account)
	require.NoError(t, err)

	name := "Renamed User"
	hash := "$2a$10$other"
	reset := model.OneTimeCode{Code: "654321", ExpiresAt: now.Add(10 * time.Minute).Truncate(time.Millisecond)}

	updated, err := store.Update(ctx, account.ID, model.AccountUpdate{
		FullName:     &name,
		PasswordHash: &hash,
		Reset:        &reset,
	})
	require.NoError(t, err)
	assert.Equal(t, name, updated.FullName)
	assert.Equal(t, hash, updated.PasswordHash)
	assert.Equal(t, account.Email, updated.Email)
	require.NotNil(t, updated.Reset)
	assert.Equal(t, reset.Code, updated.Reset.Code)
	assert.WithinDuration(t, reset.ExpiresAt, updated.Reset.ExpiresAt, time.Millisecond)

	got, err := store.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, name, got.FullName)
	require.NotNil(t, got.Verification, "untouched fields survive")
	assert.Equal(t, account.Verification.Code, got.Verification.Code)
}

func testUpdateDuplicate(t *testing.T, store model.AccountStore) {
	ctx := context.Background()
	now := time.Now().UTC()
	a := NewAccount(now)
	b := NewAccount(now)
	_, err := store.Create(ctx, a)
	require.NoError(t, err)
	_, err = store.Create(ctx, b)
	require.NoError(t, err)

	_, err = store.Update(ctx, b.ID, model.AccountUpdate{Email: &a.Email})
	require.ErrorIs(t, err, model.ErrDuplicateKey)

	_, err = store.Update(ctx, b.ID, model.AccountUpdate{Username: &a.Username})
	require.ErrorIs(t, err, model.ErrDuplicateKey)

	// re-saving an account's own email is not a conflict
	_, err = store.Update(ctx, b.ID, model.AccountUpdate{Email: &b.Email})
	require.NoError(t, err)
}

func testDelete(t *testing.T, store model.AccountStore) {
	ctx := context.Background()
	account := NewAccount(time.Now().UTC())
	_, err := store.Create(ctx, account)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, account.ID))

	_, err = store.GetByID(ctx, account.ID)
	require.ErrorIs(t, err, model.ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, account.ID), model.ErrNotFound)
}

func testConsumeVerificationCode(t *testing.T, store model.AccountStore) {
	ctx := context.Background()
	now := time.Now().UTC()

	account := NewAccount(now)
	_, err := store.Create(ctx, account)
	require.NoError(t, err)

	_, err = store.ConsumeVerificationCode(ctx, account.Email, "000000", now)
	require.ErrorIs(t, err, model.ErrNotFound, "wrong code")

	_, err = store.ConsumeVerificationCode(ctx, account.Email, "123456", now.Add(11*time.Minute))
	require.ErrorIs(t, err, model.ErrNotFound, "expired code")

	verified, err := store.ConsumeVerificationCode(ctx, account.Email, "123456", now)
	require.NoError(t, err)
	assert.True(t, verified.IsVerified)
	assert.Nil(t, verified.Verification)

	_, err = store.ConsumeVerificationCode(ctx, account.Email, "123456", now)
	require.ErrorIs(t, err, model.ErrNotFound, "code is single use")

	got, err := store.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.Nil(t, got.Verification)
}

func testConsumeResetCode(t *testing.T, store model.AccountStore) {
	ctx := context.Background()
	now := time.Now().UTC()

	account := NewAccount(now)
	_, err := store.Create(ctx, account)
	require.NoError(t, err)

	_, err = store.ConsumeResetCode(ctx, account.Email, "654321", now, "$2a$10$new")
	require.ErrorIs(t, err, model.ErrNotFound, "no reset pending")

	reset := model.OneTimeCode{Code: "654321", ExpiresAt: now.Add(10 * time.Minute).Truncate(time.Millisecond)}
	_, err = store.Update(ctx, account.ID, model.AccountUpdate{Reset: &reset})
	require.NoError(t, err)

	_, err = store.ConsumeResetCode(ctx, account.Email, "654321", now.Add(10*time.Minute), "$2a$10$new")
	require.ErrorIs(t, err, model.ErrNotFound, "expiry is exclusive")

	updated, err := store.ConsumeResetCode(ctx, account.Email, "654321", now, "$2a$10$new")
	require.NoError(t, err)
	assert.Equal(t, "$2a$10$new", updated.PasswordHash)
	assert.Nil(t, updated.Reset)
	assert.NotNil(t, updated.Verification, "verification pair is independent")

	_, err = store.ConsumeResetCode(ctx, account.Email, "654321", now, "$2a$10$again")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func testConcurrentConsume(t *testing.T, store model.AccountStore) {
	ctx := context.Background()
	now := time.Now().UTC()

	account := NewAccount(now)
	_, err := store.Create(ctx, account)
	require.NoError(t, err)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  int
	)
	start := make(chan struct{})
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := store.ConsumeVerificationCode(ctx, account.Email, "123456", now)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if assert.ErrorIs(t, err, model.ErrNotFound) {
				failures++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, failures)
}

func assertSameAccount(t *testing.T, want, got model.Account) {
	t.Helper()

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Username, got.Username)
	assert.Equal(t, want.FullName, got.FullName)
	assert.Equal(t, want.Email, got.Email)
	assert.Equal(t, want.PasswordHash, got.PasswordHash)
	assert.Equal(t, want.ProfileImage, got.ProfileImage)
	assert.Equal(t, want.Role, got.Role)
	assert.Equal(t, want.IsVerified, got.IsVerified)
	if want.Verification == nil {
		assert.Nil(t, got.Verification)
	} else if assert.NotNil(t, got.Verification) {
		assert.Equal(t, want.Verification.Code, got.Verification.Code)
		assert.WithinDuration(t, want.Verification.ExpiresAt, got.Verification.ExpiresAt, time.Millisecond)
	}
}
