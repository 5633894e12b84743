package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dtroode/account-server/internal/api/http/handler"
	"github.com/dtroode/account-server/internal/apierror"
	"github.com/dtroode/account-server/internal/logger"
	"github.com/dtroode/account-server/internal/model"
)

// Counter counts hits of a key inside a fixed window.
type Counter interface {
	Hit(ctx context.Context, namespace, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimit allows at most limit requests per window for each client.
// A client is the authenticated account when there is one, else the peer
// address of the connection. Forwarded headers are only honoured when the
// router mounts chi's RealIP in front of this middleware.
type RateLimit struct {
	counter        Counter
	contextManager model.ContextManager
	namespace      string
	limit          int64
	window         time.Duration
	logger         *logger.Logger
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(
	counter Counter,
	contextManager model.ContextManager,
	namespace string,
	limit int64,
	window time.Duration,
	logger *logger.Logger,
) *RateLimit {
	return &RateLimit{
		counter:        counter,
		contextManager: contextManager,
		namespace:      namespace,
		limit:          limit,
		window:         window,
		logger:         logger,
	}
}

// Handle counts the request and answers 429 once the limit is exceeded.
// Counter failures let the request through.
func (m *RateLimit) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.clientKey(r)

		count, ttl, err := m.counter.Hit(r.Context(), m.namespace, key, m.window)
		if err != nil {
			m.logger.Error("HTTP middleware: rate limit counter unavailable",
				"namespace", m.namespace,
				"error", err.Error())
			next.ServeHTTP(w, r)
			return
		}

		if ttl <= 0 {
			ttl = m.window
		}
		remaining := m.limit - count
		if remaining < 0 {
			remaining = 0
		}

		h := w.Header()
		h.Set("RateLimit-Limit", strconv.FormatInt(m.limit, 10))
		h.Set("RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		h.Set("RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > m.limit {
			m.logger.Warn("HTTP middleware: rate limit exceeded",
				"namespace", m.namespace,
				"client", key,
				"count", count)
			h.Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			handler.WriteError(w, r, m.logger, apierror.NewErrTooManyRequests())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimit) clientKey(r *http.Request) string {
	if id, ok := m.contextManager.GetAccountIDFromContext(r.Context()); ok {
		return "account:" + id.String()
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
