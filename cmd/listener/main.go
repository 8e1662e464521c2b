// Package main provides the tip listener entry point for the creator rewards
// service.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creator-rewards/internal/api"
	"github.com/creator-rewards/internal/assets"
	"github.com/creator-rewards/internal/config"
	"github.com/creator-rewards/internal/ledger"
	"github.com/creator-rewards/internal/logging"
	"github.com/creator-rewards/internal/metrics"
	"github.com/creator-rewards/internal/retry"
	"github.com/creator-rewards/internal/storage"
	"github.com/creator-rewards/internal/types"
	"github.com/creator-rewards/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.InitGlobalLogger(logging.LevelInfo, logging.FormatText)
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Creator rewards listener starting")

	// Connect to Postgres and bring the schema up to date
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	if err := storage.RunMigrations(cfg.Database.Postgres.PostgresURL(), "migrations"); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	// ClickHouse archive is optional: the pipeline runs without analytics
	var archive *storage.TipArchive
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Warn("ClickHouse unavailable, tip archive disabled")
	} else {
		defer clickhouse.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := storage.EnsureArchiveSchema(ctx, clickhouse); err != nil {
			logger.WithError(err).Warn("ClickHouse schema setup failed, tip archive disabled")
		} else {
			archive = storage.NewTipArchive(clickhouse, logger)
			archive.Start()
			defer archive.Stop()
		}
		cancel()
	}

	// Redis cache is optional: registry reads fall through to Postgres
	var redisCache *storage.RedisCache
	redisCache, err = storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, registry cache disabled")
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	// Repositories
	tipRepo := storage.NewTipRepository(postgres)
	actionRepo := storage.NewActionRepository(postgres)
	rewardRepo := storage.NewRewardRepository(postgres)
	registryRepo := storage.NewRegistryRepository(postgres)
	checkpointRepo := storage.NewCheckpointRepository(postgres)
	registryCache := storage.NewRegistryCache(registryRepo, redisCache, cfg.Database.Redis.CacheTTL)

	listenerMetrics := metrics.NewListenerMetrics(nil)

	// Ledger indexer client
	indexer, err := ledger.NewQueryClient(&ledger.QueryClientConfig{
		BaseURL:        cfg.Indexer.BaseURL,
		RequestTimeout: cfg.Indexer.RequestTimeout,
		RequestsPerSec: cfg.Indexer.RequestsPerSec,
		MaxTxnsPerPoll: cfg.Indexer.MaxTxnsPerPoll,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create indexer client")
	}

	// Asset service and delivery strategy
	assetService, err := assets.NewHTTPAssetService(&cfg.Asset)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create asset service")
	}

	demoAccounts, err := assets.LoadDemoAccounts(cfg.Asset.DemoAccountsFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load demo accounts")
	}
	if cfg.Asset.DeliveryMode == "custodial" && demoAccounts.Len() == 0 {
		logger.Warn("Custodial delivery with no demo accounts, transfers will fall back to claim")
	}
	delivery := assets.NewDeliveryStrategy(cfg.Asset.DeliveryMode, assetService, demoAccounts)

	// Reward executors and worker pool
	executors := map[types.RewardKind]worker.Executor{
		types.RewardLoyaltyIncrement: worker.NewLoyaltyExecutor(rewardRepo, cfg.Worker.LoyaltyMinMicro, cfg.Worker.BadgeInterval, logger),
		types.RewardMembershipIssue:  worker.NewMembershipExecutor(registryRepo, rewardRepo, assetService, logger),
		types.RewardCollectibleMint:  worker.NewMintExecutor(registryRepo, rewardRepo, assetService, delivery, logger),
	}

	policy := &retry.Policy{
		Backoff:     cfg.Retry.Backoff,
		MaxAttempts: cfg.Retry.MaxAttempts,
	}

	pool, err := worker.NewPool(&worker.PoolConfig{
		Actions:   actionRepo,
		Executors: executors,
		Policy:    policy,
		Metrics:   listenerMetrics,
		Logger:    logger,
		PoolSize:  cfg.Worker.PoolSize,
		QueueSize: cfg.Worker.QueueSize,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create worker pool")
	}

	dispatcher := worker.NewDispatcher(&worker.DispatcherConfig{
		Actions:      actionRepo,
		Tips:         tipRepo,
		Pool:         pool,
		Interval:     cfg.Worker.DispatchInterval,
		ReclaimAfter: cfg.Worker.ReclaimAfter,
		Logger:       logger,
	})

	var archiver worker.Archiver
	if archive != nil {
		archiver = archive
	}

	supervisor, err := worker.NewSupervisor(&worker.SupervisorConfig{
		Fetcher:          indexer,
		Contracts:        registryRepo,
		Configs:          registryCache,
		Tips:             tipRepo,
		Actions:          actionRepo,
		Checkpoints:      checkpointRepo,
		Archive:          archiver,
		Pool:             pool,
		Metrics:          listenerMetrics,
		Logger:           logger,
		PollInterval:     cfg.Listener.PollInterval,
		ErrorBackoffMax:  cfg.Listener.ErrorBackoffMax,
		ErrorBackoffTrip: cfg.Listener.ErrorBackoffTrip,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create supervisor")
	}

	// Status and claim API
	claimService := assets.NewClaimService(rewardRepo, assetService, logger)
	server := api.NewServer(
		&api.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		listenerMetrics,
		claimService,
		assetService.Breaker(),
		postgres,
		nil,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	dispatcher.Start(ctx)
	if err := supervisor.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start supervisor")
	}

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("API server failed")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Listener started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("API server forced to shut down")
	}
	if err := supervisor.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Supervisor stop failed")
	}
	dispatcher.Stop()
	pool.Stop()

	logger.Info("Listener exited")
}
