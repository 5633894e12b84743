package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/dtroode/account-server/internal/model"
)

// SessionCookieName is the cookie the session token travels in.
const SessionCookieName = "jwt"

// CookiePolicy decides how the session cookie is written and cleared.
type CookiePolicy struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// NewCookiePolicy returns the policy for the environment. Production serves a
// cross-origin SPA, so the cookie must be Secure with SameSite=None there.
func NewCookiePolicy(production bool, domain string) CookiePolicy {
	p := CookiePolicy{
		Name:     SessionCookieName,
		Domain:   domain,
		SameSite: http.SameSiteLaxMode,
	}
	if production {
		p.Secure = true
		p.SameSite = http.SameSiteNoneMode
	}
	return p
}

// Set writes session as the session cookie, valid until it expires.
func (p CookiePolicy) Set(w http.ResponseWriter, session model.Session, now time.Time) {
	maxAge := int(session.ExpiresAt.Sub(now).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     p.Name,
		Value:    session.Token,
		Path:     "/",
		Domain:   p.Domain,
		Expires:  session.ExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
}

// Clear expires the session cookie.
func (p CookiePolicy) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.Name,
		Value:    "",
		Path:     "/",
		Domain:   p.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	})
}

// Token returns the session token from the cookie, falling back to a bearer
// Authorization header for non-browser clients.
func (p CookiePolicy) Token(r *http.Request) string {
	if c, err := r.Cookie(p.Name); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}
