package health

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dtroode/account-server/internal/logger"
)

// ServiceName is the service reported alongside the overall "" status.
const ServiceName = "account.Account"

const (
	defaultInterval = 15 * time.Second
	defaultTimeout  = 3 * time.Second
)

// Pinger is a dependency whose reachability decides the serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency names a Pinger for logging.
type Dependency struct {
	Name   string
	Pinger Pinger
}

// Checker keeps the gRPC health status in line with its dependencies.
type Checker struct {
	server   *health.Server
	deps     []Dependency
	interval time.Duration
	timeout  time.Duration
	logger   *logger.Logger
}

// NewChecker creates a Checker. Zero interval or timeout select the defaults.
func NewChecker(server *health.Server, interval, timeout time.Duration, logger *logger.Logger, deps ...Dependency) *Checker {
	if interval <= 0 {
		interval = defaultInterval
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Checker{
		server:   server,
		deps:     deps,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Check pings every dependency once and publishes the resulting status.
func (c *Checker) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING

	for _, dep := range c.deps {
		pingCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := dep.Pinger.Ping(pingCtx)
		cancel()

		if err != nil {
			c.logger.Warn("gRPC health: dependency unavailable",
				"dependency", dep.Name,
				"error", err.Error())
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
	return status
}

// Run checks immediately and then every interval until ctx is done, after
// which every service is reported NOT_SERVING.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			c.server.Shutdown()
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}
