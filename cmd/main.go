package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"

	grpchealth "github.com/dtroode/account-server/internal/api/grpc/health"
	grpcrouter "github.com/dtroode/account-server/internal/api/grpc/router"
	grpcserver "github.com/dtroode/account-server/internal/api/grpc/server"
	httprouter "github.com/dtroode/account-server/internal/api/http/router"
	"github.com/dtroode/account-server/internal/cache"
	"github.com/dtroode/account-server/internal/config"
	"github.com/dtroode/account-server/internal/imagehost"
	"github.com/dtroode/account-server/internal/logger"
	"github.com/dtroode/account-server/internal/mailer"
	"github.com/dtroode/account-server/internal/model"
	"github.com/dtroode/account-server/internal/otp"
	"github.com/dtroode/account-server/internal/password"
	"github.com/dtroode/account-server/internal/repository/memory"
	"github.com/dtroode/account-server/internal/repository/mongo"
	"github.com/dtroode/account-server/internal/repository/postgres"
	"github.com/dtroode/account-server/internal/server"
	"github.com/dtroode/account-server/internal/service"
	storage "github.com/dtroode/account-server/internal/storage/minio"
	"github.com/dtroode/account-server/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel, cfg.LogJSON)

	logAppVersion()

	store, storeDep, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize storage", "driver", cfg.StoreDriver, "error", err)
	}
	defer closeStore()
	logger.Info("account store ready", "driver", cfg.StoreDriver)

	counter, err := cache.NewCache(cache.Options{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Cluster:  cfg.Redis.Cluster,
	})
	if err != nil {
		logger.Fatal("failed to initialize rate limit cache", "error", err)
	}
	defer counter.Close()

	images, err := openImageHost(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize image storage", "error", err)
	}
	if images == nil {
		logger.Warn("image storage disabled, profile images will be rejected")
	}

	accountService := service.NewAccount(
		store,
		password.NewBcrypt(cfg.Password.Cost),
		otp.NewIssuer(),
		token.NewJWT(cfg.JWT.Secret),
		mailer.NewNotifier(newMailer(cfg, logger), cfg.AppName),
		images,
		logger,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler := httprouter.New(accountService, counter, registry, httprouter.Options{
		Production:     cfg.IsProduction(),
		CookieDomain:   cfg.HTTP.CookieDomain,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		RateLimit:      cfg.RateLimit.Max,
		RateWindow:     cfg.RateLimit.Window,
		TrustProxy:     cfg.HTTP.TrustProxy,
	}, logger).Register()

	httpServer := server.NewHTTPServer(handler, fmt.Sprintf(":%s", cfg.HTTP.Port), server.HTTPTimeouts{
		ReadHeader: cfg.HTTP.ReadHeaderTimeout,
		Read:       cfg.HTTP.ReadTimeout,
		Write:      cfg.HTTP.WriteTimeout,
		Idle:       cfg.HTTP.IdleTimeout,
	})

	healthServer := health.NewServer()
	checker := grpchealth.NewChecker(healthServer, cfg.GRPC.HealthInterval, 0, logger,
		storeDep,
		grpchealth.Dependency{Name: "redis", Pinger: counter},
	)
	grpcServer := grpcserver.NewGRPCServer(grpcrouter.New(healthServer, logger).Register(), fmt.Sprintf(":%s", cfg.GRPC.Port))

	checkCtx, stopChecks := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		checker.Run(checkCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	servers := []struct {
		name string
		srv  model.Server
		sl   model.SecurityLayer
	}{
		{"http", httpServer, securityLayer(cfg.HTTP.EnableHTTPS, cfg.HTTP.CertFileName, cfg.HTTP.PrivateKeyFileName)},
		{"grpc", grpcServer, securityLayer(cfg.GRPC.EnableHTTPS, cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName)},
	}
	for _, s := range servers {
		g.Go(func() error {
			logger.Info("starting server", "kind", s.name, "address", s.srv.Address())
			if err := s.srv.Start(s.sl); err != nil {
				return fmt.Errorf("%s server: %w", s.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		stopChecks()
		for _, s := range servers {
			if err := s.srv.Stop(shutdownCtx); err != nil {
				logger.Error("error during server shutdown", "kind", s.name, "address", s.srv.Address(), "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
	}
	stopChecks()
	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}

func securityLayer(enabled bool, cert, key string) model.SecurityLayer {
	if !enabled {
		return server.NewPlainListener()
	}
	return server.NewSecurityLayer(cert, key)
}

func openStore(ctx context.Context, cfg *config.Config) (model.AccountStore, grpchealth.Dependency, func(), error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		conn, err := postgres.NewConnection(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
		if err != nil {
			return nil, grpchealth.Dependency{}, nil, err
		}
		return postgres.NewAccountRepository(conn),
			grpchealth.Dependency{Name: "postgres", Pinger: conn},
			func() { _ = conn.Close() },
			nil
	case config.StoreMemory:
		repo := memory.NewAccountRepository()
		return repo, grpchealth.Dependency{Name: "memory", Pinger: repo}, func() {}, nil
	default:
		conn, err := mongo.NewConnection(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, grpchealth.Dependency{}, nil, err
		}
		return mongo.NewAccountRepository(conn),
			grpchealth.Dependency{Name: "mongo", Pinger: conn},
			func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = conn.Close(closeCtx)
			},
			nil
	}
}

// openImageHost returns nil when object storage is disabled.
func openImageHost(ctx context.Context, cfg *config.Config) (model.ImageHost, error) {
	if !cfg.Storage.Enabled || cfg.Storage.Endpoint == "" {
		return nil, nil
	}

	client, err := storage.Dial(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.UseSSL)
	if err != nil {
		return nil, err
	}
	bucket, err := storage.NewClient(ctx, client, storage.Options{
		Bucket:       cfg.Storage.Bucket,
		PublicPrefix: imagehost.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}

	return imagehost.NewUploader(bucket, imagehost.Config{
		PublicURL:    cfg.Storage.ResolvedPublicURL(),
		MaxBytes:     cfg.Storage.MaxBytes,
		MaxDimension: cfg.Storage.MaxDimension,
		MaxPixels:    cfg.Storage.MaxPixels,
	}), nil
}

func newMailer(cfg *config.Config, logger *logger.Logger) model.Mailer {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST is not set, emails will be written to the log")
		return mailer.NewLogSender(logger)
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
		Timeout:  cfg.SMTP.Timeout,
	})
}
