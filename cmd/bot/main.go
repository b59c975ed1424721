package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/clickhouse"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/database"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/price"
	redisAdapter "github.com/mkuznetsov/aifund-bot/internal/adapters/redis"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/telegram"
	"github.com/mkuznetsov/aifund-bot/internal/allocation"
	"github.com/mkuznetsov/aifund-bot/internal/health"
	"github.com/mkuznetsov/aifund-bot/internal/lifecycle"
	"github.com/mkuznetsov/aifund-bot/internal/rebalance"
	"github.com/mkuznetsov/aifund-bot/internal/risk"
	"github.com/mkuznetsov/aifund-bot/internal/scoring"
	"github.com/mkuznetsov/aifund-bot/internal/sentiment"
	"github.com/mkuznetsov/aifund-bot/internal/store"
	"github.com/mkuznetsov/aifund-bot/internal/workers"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/worker"
	_ "github.com/lib/pq"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	// Run application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("AI Fund engine starting...",
		zap.Duration("cycle_interval", cfg.Engine.CycleInterval),
	)

	// Initialize database
	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// Repositories
	tokenRepo := store.NewTokenRepository(db.DB())
	portfolioRepo := store.NewPortfolioRepository(db.DB())
	sentimentRepo := store.NewSentimentRepository(db.DB())
	signalRepo := store.NewSignalRepository(db.DB())
	tradeRepo := store.NewTradeRepository(db.DB())

	// Notification sink (disabled without a bot token)
	notifier, err := telegram.NewNotifier(&cfg.Telegram)
	if err != nil {
		logger.Error("failed to create telegram notifier, continuing without", zap.Error(err))
		notifier, _ = telegram.NewNotifier(&config.TelegramConfig{})
	}

	// Price/quote gateway
	gateway := price.NewJupiterGateway(&cfg.Gateway)
	registerDecimals(ctx, gateway, tokenRepo)

	// Optional cluster lock
	var redisClient *redisAdapter.Client
	var cycleLock *redisAdapter.CycleLock
	if cfg.Redis.Enabled {
		redisClient, err = redisAdapter.New(&cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		cycleLock = redisAdapter.NewCycleLock(redisClient.LockManager(), cfg.Engine.CycleInterval/2)
	}

	// Optional cycle telemetry
	var cycleWriter *clickhouse.CycleWriter
	if cfg.ClickHouse.Enabled {
		chRepo, err := clickhouse.New(cfg.ClickHouse.DSN)
		if err != nil {
			logger.Error("clickhouse unavailable, telemetry disabled", zap.Error(err))
		} else {
			defer chRepo.Close()
			cycleWriter = clickhouse.NewCycleWriter(chRepo, 20, 1*time.Minute)
			defer cycleWriter.Close()
		}
	}

	// Engine components
	classifier := sentiment.NewClassifier(tokenRepo, sentimentRepo, notifier)
	scorer := scoring.NewScorer()
	planner := allocation.NewPlanner(&cfg.Allocation)
	sizer := risk.NewTradeSizer(&cfg.Trading, &cfg.Allocation)
	rebalancer := rebalance.NewEngine(portfolioRepo, tradeRepo, gateway, notifier,
		&cfg.Trading, cfg.Gateway.WalletAddress, cfg.Gateway.SlippageBps)
	manager := lifecycle.NewManager(signalRepo, tradeRepo, portfolioRepo, tokenRepo,
		gateway, sizer, notifier, &cfg.Trading, cfg.Gateway.WalletAddress)

	cycleWorker := workers.NewTradingCycleWorker(classifier, scorer, planner,
		rebalancer, manager, tokenRepo, portfolioRepo, tradeRepo, gateway,
		cycleLock, cycleWriter, &cfg.Engine)
	snapshotWorker := workers.NewSnapshotWorker(tokenRepo, gateway, cfg.Engine.MaxConcurrent)

	// Background workers
	group := worker.NewGroup(ctx)
	group.Add(snapshotWorker, cfg.Engine.SnapshotInterval, true)
	group.Add(cycleWorker, cfg.Engine.CycleInterval, false)
	group.Start()

	// Health endpoints + manual trigger
	healthServer := health.NewServer(cfg.Engine.HTTPPort, db, redisClient, cycleWorker)
	go func() {
		if err := healthServer.Start(); err != nil {
			logger.Error("health server error", zap.Error(err))
		}
	}()
	healthServer.SetReady(true)

	logger.Info("🚀 AI Fund engine ready")

	// Keep service running
	<-ctx.Done()
	logger.Info("shutting down gracefully...")

	healthServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop health server", zap.Error(err))
	}

	group.Stop(30 * time.Second)

	return nil
}

// initDatabase initializes database connection with sqlx
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	migrationsPath := "./migrations"
	if err := database.RunMigrations(db.Conn(), migrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("database connection established (sqlx)",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name),
	)

	return db, nil
}

// registerDecimals teaches the gateway each tracked token's decimals so
// quote amounts convert correctly
func registerDecimals(ctx context.Context, gateway *price.JupiterGateway, tokens *store.TokenRepository) {
	active, err := tokens.ListActive(ctx)
	if err != nil {
		logger.Warn("could not preload token decimals", zap.Error(err))
		return
	}
	for _, token := range active {
		if token.Decimals > 0 {
			gateway.SetDecimals(token.Mint, token.Decimals)
		}
	}
}
