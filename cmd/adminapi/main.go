// cmd/adminapi/main.go
// ChatGuard Admin API Service - Entry Point

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatguard/chatguard/internal/adminapi/routes"
	"github.com/chatguard/chatguard/internal/adminapi/server"
	"github.com/chatguard/chatguard/internal/common/config"
	"github.com/chatguard/chatguard/internal/common/logging"
	natsclient "github.com/chatguard/chatguard/internal/common/nats"
	"github.com/chatguard/chatguard/internal/common/pg"
	"github.com/chatguard/chatguard/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		panic(err)
	}

	logger.Logger.Info("Starting ChatGuard Admin API Service")

	// Initialize PostgreSQL client
	pgClient, err := pg.NewClient(pg.Config{
		Host:            cfg.PostgreSQL.Host,
		Port:            cfg.PostgreSQL.Port,
		Database:        cfg.PostgreSQL.Database,
		Username:        cfg.PostgreSQL.Username,
		Password:        cfg.PostgreSQL.Password,
		SSLMode:         cfg.PostgreSQL.SSLMode,
		MaxOpenConns:    cfg.PostgreSQL.MaxOpenConns,
		MaxIdleConns:    cfg.PostgreSQL.MaxIdleConns,
		ConnMaxLifetime: cfg.PostgreSQL.ConnMaxLifetime,
	})
	if err != nil {
		logger.Logger.WithError(err).Fatal("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()

	// Initialize NATS client for rule invalidation
	natsClient, err := natsclient.NewClient(natsclient.Config{
		URLs:        cfg.NATS.URLs,
		ClientID:    cfg.NATS.ClientID + "-adminapi",
		Credentials: cfg.NATS.Credentials,
		JWT:         cfg.NATS.JWT,
		NKeySeed:    cfg.NATS.NKeySeed,
		Timeout:     cfg.NATS.Timeout,
	})
	if err != nil {
		logger.Logger.WithError(err).Fatal("Failed to initialize NATS client")
	}
	defer natsClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ruleStore := storage.NewRuleStore(logger, pgClient)
	if err := ruleStore.EnsureSchema(ctx); err != nil {
		logger.Logger.WithError(err).Fatal("Failed to ensure rule schema")
	}

	srv := server.NewServer(&server.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		LogLevel:     cfg.AdminAPI.LogLevel,
		TokenHash:    cfg.AdminAPI.TokenHash,
	}, logger, server.Handlers{
		Health: routes.NewHealthHandler(logger, pgClient, natsClient),
		Rules:  routes.NewRulesHandler(logger, ruleStore, natsClient),
	})

	go func() {
		if err := srv.Start(); err != nil {
			logger.Logger.WithError(err).Error("Admin API server error")
			cancel()
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	logger.Logger.Info("Shutting down Admin API Service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Logger.WithError(err).Error("Admin API shutdown failed")
	}
}
