// Package otp issues the six-digit codes used for email verification and
// password reset.
package otp

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/dtroode/account-server/internal/model"
)

const (
	// CodeTTL is how long an issued code stays usable.
	CodeTTL = 10 * time.Minute

	minCode = 100000
	maxCode = 999999
)

var _ model.CodeIssuer = (*Issuer)(nil)

// Issuer draws codes uniformly from [100000, 999999].
type Issuer struct {
	rand io.Reader
	ttl  time.Duration
}

// NewIssuer creates an Issuer backed by crypto/rand.
func NewIssuer() *Issuer {
	return &Issuer{rand: rand.Reader, ttl: CodeTTL}
}

// Issue returns a fresh code expiring CodeTTL after now.
func (i *Issuer) Issue(now time.Time) (model.OneTimeCode, error) {
	n, err := rand.Int(i.rand, big.NewInt(maxCode-minCode+1))
	if err != nil {
		return model.OneTimeCode{}, fmt.Errorf("failed to draw code: %w", err)
	}

	return model.OneTimeCode{
		Code:      fmt.Sprintf("%06d", n.Int64()+minCode),
		ExpiresAt: now.Add(i.ttl),
	}, nil
}
