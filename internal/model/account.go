package model

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultRole is assigned to every newly registered account.
const DefaultRole = "user"

const (
	minPasswordLength = 6
	// bcrypt ignores everything past 72 bytes, so longer passwords are refused.
	maxPasswordLength = 72
)

// AccountStore defines persistence operations for accounts.
type AccountStore interface {
	Create(ctx context.Context, account Account) (Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	Update(ctx context.Context, id uuid.UUID, update AccountUpdate) (Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ConsumeVerificationCode atomically matches email, code and an unexpired
	// verification pair, marks the account verified and clears the pair.
	ConsumeVerificationCode(ctx context.Context, email, code string, now time.Time) (Account, error)
	// ConsumeResetCode atomically matches email, code and an unexpired reset
	// pair, replaces the password hash and clears the pair.
	ConsumeResetCode(ctx context.Context, email, code string, now time.Time, passwordHash string) (Account, error)
	Ping(ctx context.Context) error
}

// OneTimeCode is a short-lived numeric code together with its expiry.
type OneTimeCode struct {
	Code      string
	ExpiresAt time.Time
}

// Usable tells whether the code can still be redeemed at now.
func (c *OneTimeCode) Usable(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}

// Matches tells whether code equals c and is still usable at now.
func (c *OneTimeCode) Matches(code string, now time.Time) bool {
	return c.Usable(now) && c.Code == code
}

// Account represents a stored account with its credential material.
type Account struct {
	ID           uuid.UUID
	Username     string
	FullName     string
	Email        string
	PasswordHash string
	ProfileImage string
	Role         string
	IsVerified   bool
	Verification *OneTimeCode
	Reset        *OneTimeCode
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile returns the public projection of the account.
func (a Account) Profile() Profile {
	return Profile{
		ID:           a.ID,
		Username:     a.Username,
		FullName:     a.FullName,
		Email:        a.Email,
		ProfileImage: a.ProfileImage,
		Role:         a.Role,
		IsVerified:   a.IsVerified,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

// Profile is an account without password hash and pending codes.
type Profile struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	ProfileImage string    `json:"profileImg"`
	Role         string    `json:"role"`
	IsVerified   bool      `json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AccountUpdate lists the fields to overwrite; nil fields are left untouched.
// Code pairs can only be set here, clearing them is done by the Consume* operations.
type AccountUpdate struct {
	FullName     *string
	Email        *string
	Username     *string
	ProfileImage *string
	PasswordHash *string
	Verification *OneTimeCode
	Reset        *OneTimeCode
}

// IsEmpty tells whether the update changes nothing.
func (u AccountUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Email == nil && u.Username == nil && u.ProfileImage == nil &&
		u.PasswordHash == nil && u.Verification == nil && u.Reset == nil
}

// Apply copies the supplied fields onto account.
func (u AccountUpdate) Apply(account *Account) {
	if u.FullName != nil {
		account.FullName = *u.FullName
	}
	if u.Email != nil {
		account.Email = *u.Email
	}
	if u.Username != nil {
		account.Username = *u.Username
	}
	if u.ProfileImage != nil {
		account.ProfileImage = *u.ProfileImage
	}
	if u.PasswordHash != nil {
		account.PasswordHash = *u.PasswordHash
	}
	if u.Verification != nil {
		v := *u.Verification
		account.Verification = &v
	}
	if u.Reset != nil {
		r := *u.Reset
		account.Reset = &r
	}
}

// RegisterParams contains parameters to register an account.
type RegisterParams struct {
	FullName     string
	Email        string
	Password     string
	Username     string
	ProfileImage string
}

// Normalize trims surrounding whitespace and lowercases the email.
func (p RegisterParams) Normalize() RegisterParams {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = NormalizeEmail(p.Email)
	p.Username = strings.TrimSpace(p.Username)
	p.ProfileImage = strings.TrimSpace(p.ProfileImage)
	return p
}

// Validate checks required fields and formats.
func (p RegisterParams) Validate() error {
	if p.FullName == "" {
		return fmt.Errorf("full name is required")
	}
	if p.Username == "" {
		return fmt.Errorf("username is required")
	}
	if err := ValidateEmail(p.Email); err != nil {
		return err
	}
	return ValidatePassword(p.Password)
}

// ProfilePatch carries the optional fields of a profile update.
type ProfilePatch struct {
	FullName     *string
	Email        *string
	Username     *string
	ProfileImage *string
}

// Normalize trims supplied fields and lowercases the email.
func (p ProfilePatch) Normalize() ProfilePatch {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	p.FullName = trim(p.FullName)
	p.Username = trim(p.Username)
	p.ProfileImage = trim(p.ProfileImage)
	if p.Email != nil {
		e := NormalizeEmail(*p.Email)
		p.Email = &e
	}
	return p
}

// Validate checks every supplied field on its own.
func (p ProfilePatch) Validate() error {
	if p.FullName != nil && *p.FullName == "" {
		return fmt.Errorf("full name must not be empty")
	}
	if p.Username != nil && *p.Username == "" {
		return fmt.Errorf("username must not be empty")
	}
	if p.Email != nil {
		if err := ValidateEmail(*p.Email); err != nil {
			return err
		}
	}
	return nil
}

// NormalizeEmail returns the canonical form used for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("email %q is not a valid address", email)
	}
	return nil
}

// ValidatePassword checks password length bounds.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("password must be at most %d bytes long", maxPasswordLength)
	}
	return nil
}
