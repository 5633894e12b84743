package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpcontext "github.com/dtroode/account-server/internal/api/http/context"
	"github.com/dtroode/account-server/internal/api/http/handler"
	"github.com/dtroode/account-server/internal/api/http/middleware"
	"github.com/dtroode/account-server/internal/logger"
	"github.com/dtroode/account-server/internal/model"
)

// Options tune the HTTP surface.
type Options struct {
	Production     bool
	CookieDomain   string
	AllowedOrigins []string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	RateLimit      int64
	RateWindow     time.Duration
	// TrustProxy takes the client address from X-Forwarded-For and friends.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
}

// Router wires the account endpoints, their guards and the ambient middleware.
type Router struct {
	service  model.AccountService
	counter  middleware.Counter
	registry *prometheus.Registry
	logger   *logger.Logger
	opts     Options
}

// New creates a new HTTP Router instance. registry receives the HTTP metrics
// and is exposed on /metrics.
func New(
	service model.AccountService,
	counter middleware.Counter,
	registry *prometheus.Registry,
	opts Options,
	logger *logger.Logger,
) *Router {
	return &Router{
		service:  service,
		counter:  counter,
		registry: registry,
		logger:   logger,
		opts:     opts,
	}
}

// Register builds the handler tree.
func (rt *Router) Register() http.Handler {
	contextManager := httpcontext.NewManager()
	cookies := handler.NewCookiePolicy(rt.opts.Production, rt.opts.CookieDomain)

	accounts := handler.NewAccount(rt.service, contextManager, cookies, rt.opts.MaxBodyBytes, rt.logger)
	authenticate := middleware.NewAuthenticate(rt.service, contextManager, cookies, rt.logger)
	logging := middleware.NewLogging(rt.logger)
	metrics := middleware.NewMetrics(rt.registry)
	resendLimit := middleware.NewRateLimit(rt.counter, contextManager, "resend-verification", rt.opts.RateLimit, rt.opts.RateWindow, rt.logger)
	forgotLimit := middleware.NewRateLimit(rt.counter, contextManager, "forget-password", rt.opts.RateLimit, rt.opts.RateWindow, rt.logger)

	r := chi.NewRouter()

	if rt.opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.RequestID)
	r.Use(logging.Handle)
	r.Use(chimw.Recoverer)
	r.Use(metrics.Handle)
	r.Use(middleware.SecurityHeaders(rt.opts.Production))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if rt.opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(rt.opts.RequestTimeout))
	}

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", accounts.Register)
		r.Post("/login", accounts.Login)
		r.Post("/verify-email", accounts.VerifyEmail)
		r.With(resendLimit.Handle).Post("/resend-verification", accounts.ResendVerification)

		r.Group(func(r chi.Router) {
			r.Use(authenticate.Handle)

			r.Get("/me", accounts.Me)
			r.Patch("/update-me", accounts.UpdateMe)
			r.Delete("/delete-me", accounts.DeleteMe)
			r.With(forgotLimit.Handle).Post("/forget-password", accounts.ForgotPassword)
			r.Post("/reset-forget-password", accounts.ResetForgottenPassword)
			r.Post("/logout", accounts.Logout)
			r.Post("/reset-password", accounts.ChangePassword)
		})
	})

	return r
}
