// cmd/moderator/main.go
// ChatGuard Moderator Service - Entry Point

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatguard/chatguard/internal/common/ch"
	"github.com/chatguard/chatguard/internal/common/config"
	"github.com/chatguard/chatguard/internal/common/logging"
	natsclient "github.com/chatguard/chatguard/internal/common/nats"
	"github.com/chatguard/chatguard/internal/common/pg"
	"github.com/chatguard/chatguard/internal/moderator"
	"github.com/chatguard/chatguard/internal/moderator/executor"
	"github.com/chatguard/chatguard/internal/moderator/firewall"
	"github.com/chatguard/chatguard/internal/moderator/handlers"
	"github.com/chatguard/chatguard/internal/storage"
	"github.com/chatguard/chatguard/internal/telegram"
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

	logger.Logger.Info("Starting ChatGuard Moderator Service")

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

	// Initialize ClickHouse client
	chClient, err := ch.NewClient(ch.Config{
		Hosts:    cfg.ClickHouse.Hosts,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
		Port:     cfg.ClickHouse.Port,
		Secure:   cfg.ClickHouse.Secure,
		Compress: cfg.ClickHouse.Compress,
		Timeout:  cfg.ClickHouse.Timeout,
	})
	if err != nil {
		logger.Logger.WithError(err).Fatal("Failed to initialize ClickHouse client")
	}
	defer chClient.Close()

	// Initialize NATS client
	natsClient, err := natsclient.NewClient(natsclient.Config{
		URLs:        cfg.NATS.URLs,
		ClientID:    cfg.NATS.ClientID,
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

	// Prepare storage
	ruleStore := storage.NewRuleStore(logger, pgClient)
	if err := ruleStore.EnsureSchema(ctx); err != nil {
		logger.Logger.WithError(err).Fatal("Failed to ensure rule schema")
	}
	auditStore := storage.NewAuditStore(logger, chClient)
	if err := auditStore.EnsureSchema(ctx); err != nil {
		logger.Logger.WithError(err).Fatal("Failed to ensure audit schema")
	}

	// Seed default rules from the rule pack if the table is empty
	if cfg.Pipeline.RulePackPath != "" {
		if err := storage.SeedDefaultRules(ctx, logger, ruleStore, cfg.Pipeline.RulePackPath); err != nil {
			logger.Logger.WithError(err).Error("Failed to seed default rules")
		}
	}

	// Violation counters: memory by default, redis for shared state
	var counters firewall.CounterStore
	if cfg.Pipeline.CounterStore == "redis" {
		redisCounters, err := firewall.NewRedisCounterStore(firewall.RedisCounterConfig{
			Addr:      cfg.GetRedisAddr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Timeout:   cfg.Redis.Timeout,
		})
		if err != nil {
			logger.Logger.WithError(err).Fatal("Failed to initialize Redis counter store")
		}
		defer redisCounters.Close()
		counters = redisCounters
	} else {
		counters = firewall.NewMemoryCounterStore()
	}

	// Firewall engine
	engine := firewall.NewEngine(firewall.Config{
		WarningThreshold: cfg.Pipeline.WarningThreshold,
		MuteDuration:     cfg.Pipeline.MuteDuration,
	}, logger, ruleStore, counters)

	// Telegram client and action executor
	tgClient := telegram.NewClient(telegram.Config{
		BotToken:  cfg.Telegram.BotToken,
		BaseURL:   cfg.Telegram.BaseURL,
		ParseMode: cfg.Telegram.ParseMode,
		Timeout:   cfg.Telegram.Timeout,
	})
	exec := executor.NewExecutor(logger, tgClient, auditStore, ruleStore, natsClient)

	// Handler chain: membership → service → media → text
	chain := handlers.NewChain(logger, exec,
		handlers.NewMembershipHandler(logger, auditStore),
		handlers.NewServiceHandler(logger),
		handlers.NewMediaHandler(logger, engine, cfg.Pipeline.MediaCeilingMB),
		handlers.NewTextHandler(logger, engine),
	)

	// Dispatcher and service
	dispatcher := moderator.NewDispatcher(cfg.Pipeline, logger, chain)
	service := moderator.NewService(logger, natsClient, dispatcher, engine)

	if err := service.Start(ctx); err != nil {
		logger.Logger.WithError(err).Fatal("Failed to start moderator service")
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Logger.Info("Shutting down Moderator Service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := service.Stop(shutdownCtx); err != nil {
		logger.Logger.WithError(err).Error("Moderator service shutdown failed")
	}
	cancel()
}
