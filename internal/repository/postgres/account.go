// Package postgres implements the AccountStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/account-server/internal/model"
)

const uniqueViolation = "23505"

const accountColumns = `id, username, full_name, email, password_hash, profile_image, role, is_verified,
	verification_code, verification_code_expires, reset_code, reset_code_expires, created_at, updated_at`

var _ model.AccountStore = (*AccountRepository)(nil)

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

type AccountRepository struct {
	db  querier
	now func() time.Time
}

func NewAccountRepository(db *Connection) *AccountRepository {
	return &AccountRepository{
		db:  db,
		now: time.Now,
	}
}

func (r *AccountRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func (r *AccountRepository) Create(ctx context.Context, account model.Account) (model.Account, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := r.timestamp()
	vCode, vExpires := splitCode(account.Verification)
	rCode, rExpires := splitCode(account.Reset)

	query := `INSERT INTO users (id, username, full_name, email, password_hash, profile_image, role, is_verified,
			  verification_code, verification_code_expires, reset_code, reset_code_expires, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
			  RETURNING ` + accountColumns

	saved, err := scanAccount(r.db.QueryRow(ctx, query,
		account.ID, account.Username, account.FullName, account.Email, account.PasswordHash,
		account.ProfileImage, account.Role, account.IsVerified,
		vCode, vExpires, rCode, rExpires, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Account{}, model.ErrDuplicateKey
		}
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	return saved, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE id = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by id: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM users WHERE email = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by email: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) Update(ctx context.Context, id uuid.UUID, update model.AccountUpdate) (model.Account, error) {
	assignments, args := updateAssignments(update)
	args = append(args, r.timestamp())
	assignments = append(assignments, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(assignments, ", "), len(args), accountColumns)

	account, err := scanAccount(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		if isUniqueViolation(err) {
			return model.Account{}, model.ErrDuplicateKey
		}
		return model.Account{}, fmt.Errorf("failed to update account: %w", err)
	}

	return account, nil
}

func updateAssignments(u model.AccountUpdate) ([]string, []any) {
	var (
		assignments []string
		args        []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if u.FullName != nil {
		set("full_name", *u.FullName)
	}
	if u.Email != nil {
		set("email", *u.Email)
	}
	if u.Username != nil {
		set("username", *u.Username)
	}
	if u.ProfileImage != nil {
		set("profile_image", *u.ProfileImage)
	}
	if u.PasswordHash != nil {
		set("password_hash", *u.PasswordHash)
	}
	if u.Verification != nil {
		set("verification_code", u.Verification.Code)
		set("verification_code_expires", u.Verification.ExpiresAt.UTC())
	}
	if u.Reset != nil {
		set("reset_code", u.Reset.Code)
		set("reset_code_expires", u.Reset.ExpiresAt.UTC())
	}

	return assignments, args
}

func (r *AccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM users WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ConsumeVerificationCode runs a single conditional UPDATE. A concurrent
// consumer blocks on the row lock, re-checks the WHERE clause against the
// cleared pair and matches nothing.
func (r *AccountRepository) ConsumeVerificationCode(ctx context.Context, email, code string, now time.Time) (model.Account, error) {
	query := `UPDATE users
			  SET is_verified = TRUE, verification_code = NULL, verification_code_expires = NULL, updated_at = $4
			  WHERE email = $1 AND verification_code = $2 AND verification_code_expires > $3
			  RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, email, code, now.UTC(), r.timestamp()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to consume verification code: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) ConsumeResetCode(ctx context.Context, email, code string, now time.Time, passwordHash string) (model.Account, error) {
	query := `UPDATE users
			  SET password_hash = $4, reset_code = NULL, reset_code_expires = NULL, updated_at = $5
			  WHERE email = $1 AND reset_code = $2 AND reset_code_expires > $3
			  RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, email, code, now.UTC(), passwordHash, r.timestamp()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to consume reset code: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanAccount(row pgx.Row) (model.Account, error) {
	var (
		account            model.Account
		vCode, rCode       *string
		vExpires, rExpires *time.Time
	)
	err := row.Scan(
		&account.ID, &account.Username, &account.FullName, &account.Email, &account.PasswordHash,
		&account.ProfileImage, &account.Role, &account.IsVerified,
		&vCode, &vExpires, &rCode, &rExpires, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return model.Account{}, err
	}
	account.Verification = joinCode(vCode, vExpires)
	account.Reset = joinCode(rCode, rExpires)
	return account, nil
}

func splitCode(c *model.OneTimeCode) (*string, *time.Time) {
	if c == nil {
		return nil, nil
	}
	code, expires := c.Code, c.ExpiresAt.UTC()
	return &code, &expires
}

func joinCode(code *string, expires *time.Time) *model.OneTimeCode {
	if code == nil || expires == nil {
		return nil
	}
	return &model.OneTimeCode{Code: *code, ExpiresAt: *expires}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
