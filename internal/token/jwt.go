package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/account-server/internal/model"
)

const (
	fullTTL  = 7 * 24 * time.Hour
	loginTTL = 24 * time.Hour
)

// ErrInvalidToken is returned for any token that fails parsing or validation.
var ErrInvalidToken = errors.New("invalid session token")

// Claims represents JWT claims of a session token.
type Claims struct {
	jwt.RegisteredClaims
	AccountID uuid.UUID         `json:"id"`
	Role      string            `json:"role"`
	Verified  bool              `json:"isVerified"`
	Kind      model.SessionKind `json:"kind"`
}

// JWT implements TokenManager backed by symmetric HMAC.
type JWT struct {
	secretKey []byte
	now       func() time.Time
}

var _ model.TokenManager = (*JWT)(nil)

// NewJWT creates a new JWT token manager with the provided secret key.
func NewJWT(secretKey string) *JWT {
	return &JWT{secretKey: []byte(secretKey), now: time.Now}
}

// TTL returns how long a token of the given kind stays valid.
func TTL(kind model.SessionKind) (time.Duration, error) {
	switch kind {
	case model.SessionFull:
		return fullTTL, nil
	case model.SessionLogin:
		return loginTTL, nil
	default:
		return 0, fmt.Errorf("unknown session kind %q", kind)
	}
}

// GenerateSessionToken signs claims; expiry is derived from the session kind.
func (j *JWT) GenerateSessionToken(claims model.SessionClaims) (model.Session, error) {
	ttl, err := TTL(claims.Kind)
	if err != nil {
		return model.Session{}, err
	}
	if claims.AccountID == uuid.Nil {
		return model.Session{}, fmt.Errorf("account id is required")
	}

	now := j.now()
	expiresAt := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.AccountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		AccountID: claims.AccountID,
		Role:      claims.Role,
		Verified:  claims.Verified,
		Kind:      claims.Kind,
	})

	tokenString, err := token.SignedString(j.secretKey)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to sign session token: %w", err)
	}

	return model.Session{Token: tokenString, ExpiresAt: expiresAt.Truncate(time.Second)}, nil
}

// ParseSessionToken validates the signature, expiry and required claims.
// Every failure wraps ErrInvalidToken.
func (j *JWT) ParseSessionToken(tokenString string) (model.SessionClaims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return j.secretKey, nil
	},
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.SessionClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return model.SessionClaims{}, ErrInvalidToken
	}
	if claims.AccountID == uuid.Nil {
		return model.SessionClaims{}, fmt.Errorf("%w: missing account id", ErrInvalidToken)
	}
	if _, err := TTL(claims.Kind); err != nil {
		return model.SessionClaims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return model.SessionClaims{
		AccountID: claims.AccountID,
		Role:      claims.Role,
		Verified:  claims.Verified,
		Kind:      claims.Kind,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
