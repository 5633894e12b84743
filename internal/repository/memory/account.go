// Package memory provides an in-process AccountStore for local development
// and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/account-server/internal/model"
)

var _ model.AccountStore = (*AccountRepository)(nil)

// AccountRepository keeps accounts in a map guarded by a mutex.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]model.Account
	now      func() time.Time
}

// NewAccountRepository creates an empty repository.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[uuid.UUID]model.Account),
		now:      time.Now,
	}
}

// Create stores a new account. Email and username must be unused.
func (r *AccountRepository) Create(_ context.Context, account model.Account) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if _, ok := r.accounts[account.ID]; ok {
		return model.Account{}, model.ErrDuplicateKey
	}
	if r.takenLocked(uuid.Nil, account.Email, account.Username) {
		return model.Account{}, model.ErrDuplicateKey
	}

	now := r.now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now
	r.accounts[account.ID] = clone(account)

	return clone(account), nil
}

// GetByID returns the account with the given id.
func (r *AccountRepository) GetByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return clone(account), nil
}

// GetByEmail returns the account registered with email.
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.findByEmailLocked(email)
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return clone(account), nil
}

// Update overwrites the supplied fields of the account.
func (r *AccountRepository) Update(_ context.Context, id uuid.UUID, update model.AccountUpdate) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}

	var email, username string
	if update.Email != nil {
		email = *update.Email
	}
	if update.Username != nil {
		username = *update.Username
	}
	if r.takenLocked(id, email, username) {
		return model.Account{}, model.ErrDuplicateKey
	}

	update.Apply(&account)
	account.UpdatedAt = r.now().UTC()
	r.accounts[id] = account

	return clone(account), nil
}

// Delete removes the account.
func (r *AccountRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return model.ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}

// ConsumeVerificationCode marks the account verified if email and code match
// an unexpired verification pair.
func (r *AccountRepository) ConsumeVerificationCode(_ context.Context, email, code string, now time.Time) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.findByEmailLocked(email)
	if !ok || !account.Verification.Matches(code, now) {
		return model.Account{}, model.ErrNotFound
	}

	account.IsVerified = true
	account.Verification = nil
	account.UpdatedAt = r.now().UTC()
	r.accounts[account.ID] = account

	return clone(account), nil
}

// ConsumeResetCode replaces the password hash if email and code match an
// unexpired reset pair.
func (r *AccountRepository) ConsumeResetCode(_ context.Context, email, code string, now time.Time, passwordHash string) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.findByEmailLocked(email)
	if !ok || !account.Reset.Matches(code, now) {
		return model.Account{}, model.ErrNotFound
	}

	account.PasswordHash = passwordHash
	account.Reset = nil
	account.UpdatedAt = r.now().UTC()
	r.accounts[account.ID] = account

	return clone(account), nil
}

// Ping always succeeds.
func (r *AccountRepository) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored accounts.
func (r *AccountRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts)
}

func (r *AccountRepository) findByEmailLocked(email string) (model.Account, bool) {
	for _, a := range r.accounts {
		if a.Email == email {
			return a, true
		}
	}
	return model.Account{}, false
}

// takenLocked reports whether a non-empty email or username belongs to an
// account other than self.
func (r *AccountRepository) takenLocked(self uuid.UUID, email, username string) bool {
	for id, a := range r.accounts {
		if id == self {
			continue
		}
		if email != "" && a.Email == email {
			return true
		}
		if username != "" && a.Username == username {
			return true
		}
	}
	return false
}

func clone(a model.Account) model.Account {
	if a.Verification != nil {
		v := *a.Verification
		a.Verification = &v
	}
	if a.Reset != nil {
		r := *a.Reset
		a.Reset = &r
	}
	return a
}
