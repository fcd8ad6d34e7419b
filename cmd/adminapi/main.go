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

	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/adminapi"
	"github.com/toolaccess/broker/internal/adminapi/handler"
	"github.com/toolaccess/broker/internal/adminapi/service"
	"github.com/toolaccess/broker/internal/audit"
	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/credential"
	"github.com/toolaccess/broker/internal/infra"
	"github.com/toolaccess/broker/internal/repository/postgres"
	"github.com/toolaccess/broker/internal/secretstore"
)

// main wires the operator-facing Admin API process. It is a sibling of
// cmd/broker, not a subcommand of it, mirroring the teacher's split
// between cmd/uag and cmd/console: two independently deployed binaries
// sharing the same Store and SecretStore.
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

	authService := service.NewAuthService(pgStore, secrets, sysClock, idgen)
	toolService := service.NewToolService(pgStore, sysClock, idgen)
	agentService := service.NewAgentService(pgStore, sysClock, idgen)
	policyService := service.NewPolicyService(pgStore, sysClock, idgen)

	// The Admin API writes far fewer audit rows than the broker (only
	// CREDENTIAL_ISSUED on approval), so it logs synchronously with no
	// best-effort forwarder mirroring.
	auditLogger := audit.NewTxLogger(pgStore, sysClock, idgen, nil)
	credentialVendor := credential.NewVendor(pgStore, secrets, sysClock, idgen, auditLogger, logger)
	approvalService := service.NewApprovalService(pgStore, credentialVendor, sysClock, cfg.Credential.AccessTokenExpireSeconds)

	sessions := credential.NewVendorSessionIssuer(secrets, sysClock, idgen)

	handlers := adminapi.Handlers{
		Auth:     handler.NewAuthHandler(authService),
		Tool:     handler.NewToolHandler(toolService),
		Agent:    handler.NewAgentHandler(agentService),
		Policy:   handler.NewPolicyHandler(policyService),
		Approval: handler.NewApprovalHandler(approvalService),
		Logs:     handler.NewAccessLogHandler(pgStore),
	}

	server := adminapi.NewServer(handlers, sessions, logger)

	addr := cfg.Server.Host
	if addr == "" {
		addr = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == 0 {
		port = 8081
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
		logger.Info("admin api listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("admin api stopping")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("admin api exited")
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
