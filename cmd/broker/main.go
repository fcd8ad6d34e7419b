package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/adminapi/service"
	"github.com/toolaccess/broker/internal/audit"
	"github.com/toolaccess/broker/internal/broker"
	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/credential"
	"github.com/toolaccess/broker/internal/httpapi"
	"github.com/toolaccess/broker/internal/infra"
	"github.com/toolaccess/broker/internal/metrics"
	"github.com/toolaccess/broker/internal/policyengine"
	"github.com/toolaccess/broker/internal/ratelimiter"
	"github.com/toolaccess/broker/internal/repository/postgres"
	"github.com/toolaccess/broker/internal/secretstore"
)

// main wires the agent-facing access-broker process, generalizing the
// teacher's cmd/uag/main.go: same resource-then-layers-then-server
// ordering and the same signal-driven graceful shutdown, but fronting
// the broker's RequestAccess orchestration instead of the UAG core.
func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Database.URL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	pgStore, err := postgres.NewPGStore(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("failed to open database pool", zap.Error(err))
	}
	defer pgStore.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := pgStore.Ping(pingCtx); err != nil {
		pingCancel()
		logger.Fatal("database unreachable", zap.Error(err))
	}
	pingCancel()

	sysClock := clock.System{}
	idgen := clock.UUIDGen{}

	var secrets secretstore.SecretStore
	switch cfg.Auth.SigningKeySource {
	case "postgres":
		pgKeyring := secretstore.NewPGKeyring(pgStore, sysClock)
		if err := pgKeyring.Bootstrap(ctx); err != nil {
			logger.Fatal("failed to bootstrap signing key", zap.Error(err))
		}
		secrets = pgKeyring
	default:
		envKeyring, err := secretstore.NewEnvKeyring(cfg.Auth.JWTSecretKey)
		if err != nil {
			logger.Fatal("failed to build env keyring", zap.Error(err))
		}
		secrets = envKeyring
	}

	var rdb *redis.Client
	var rateLimiter ratelimiter.RateLimiter
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rateLimiter = ratelimiter.NewRedisLimiter(rdb, logger)
	} else {
		logger.Warn("REDIS_URL not set, running with in-memory rate limiting only")
		rateLimiter = ratelimiter.NewMemoryLimiter()
	}

	policyEngine := policyengine.New(pgStore, rateLimiter, cfg.Credential.GlobalMaxLifetimeSeconds, logger)

	storeSink := audit.NewStoreSink(pgStore)
	forwarder := audit.NewForwarder(storeSink, logger)
	forwarder.Start()
	defer forwarder.Stop()

	auditLogger := audit.NewTxLogger(pgStore, sysClock, idgen, forwarder)

	credentialVendor := credential.NewVendor(pgStore, secrets, sysClock, idgen, auditLogger, logger)

	sweeper := credential.NewSweeper(
		credentialVendor,
		time.Duration(cfg.Credential.CleanupIntervalSeconds)*time.Second,
		time.Duration(cfg.Credential.CleanupRetentionSeconds)*time.Second,
		logger,
	)
	sweeper.Start()
	defer sweeper.Stop()

	requestExpirySweeper := service.NewExpirySweeper(
		pgStore,
		sysClock,
		time.Duration(cfg.Approval.ExpirySweepIntervalSeconds)*time.Second,
		logger,
	)
	requestExpirySweeper.Start()
	defer requestExpirySweeper.Stop()

	reg := prometheus.NewRegistry()
	appMetrics := metrics.New(reg)

	accessBroker := broker.New(
		pgStore,
		rateLimiter,
		policyEngine,
		credentialVendor,
		auditLogger,
		sysClock,
		idgen,
		appMetrics,
		rdb,
		broker.Config{
			DefaultRateLimit:  cfg.RateLimit.Limit,
			DefaultRateWindow: cfg.RateLimit.WindowSeconds,
			DefaultLifetime:   cfg.Credential.AccessTokenExpireSeconds,
		},
		logger,
	)

	accessHandler := httpapi.NewAccessHandler(accessBroker, credentialVendor, pgStore, logger)
	server := httpapi.NewServer(accessHandler, logger)

	addr := cfg.Server.Host
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	httpSrv := &http.Server{
		Addr:         addr + ":" + strconv.Itoa(port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("access broker listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("access broker stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("access broker exited")
}

func newLogger(cfg infra.LoggerConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}

