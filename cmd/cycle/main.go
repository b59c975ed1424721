package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/database"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/price"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/telegram"
	"github.com/mkuznetsov/aifund-bot/internal/allocation"
	"github.com/mkuznetsov/aifund-bot/internal/lifecycle"
	"github.com/mkuznetsov/aifund-bot/internal/rebalance"
	"github.com/mkuznetsov/aifund-bot/internal/risk"
	"github.com/mkuznetsov/aifund-bot/internal/scoring"
	"github.com/mkuznetsov/aifund-bot/internal/sentiment"
	"github.com/mkuznetsov/aifund-bot/internal/store"
	"github.com/mkuznetsov/aifund-bot/internal/workers"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	_ "github.com/lib/pq"
)

// One-shot pass runner for cron-style scheduling. The long-running service
// in cmd/bot covers the same ground; this binary exists for deployments that
// prefer an external scheduler owning the cadence.
func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "pass timeout")
	flag.Parse()

	if err := run(*timeout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db.Conn(), "./migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	tokenRepo := store.NewTokenRepository(db.DB())
	portfolioRepo := store.NewPortfolioRepository(db.DB())
	sentimentRepo := store.NewSentimentRepository(db.DB())
	signalRepo := store.NewSignalRepository(db.DB())
	tradeRepo := store.NewTradeRepository(db.DB())

	notifier, err := telegram.NewNotifier(&cfg.Telegram)
	if err != nil {
		logger.Error("failed to create telegram notifier, continuing without", zap.Error(err))
		notifier, _ = telegram.NewNotifier(&config.TelegramConfig{})
	}

	gateway := price.NewJupiterGateway(&cfg.Gateway)

	classifier := sentiment.NewClassifier(tokenRepo, sentimentRepo, notifier)
	scorer := scoring.NewScorer()
	planner := allocation.NewPlanner(&cfg.Allocation)
	sizer := risk.NewTradeSizer(&cfg.Trading, &cfg.Allocation)
	rebalancer := rebalance.NewEngine(portfolioRepo, tradeRepo, gateway, notifier,
		&cfg.Trading, cfg.Gateway.WalletAddress, cfg.Gateway.SlippageBps)
	manager := lifecycle.NewManager(signalRepo, tradeRepo, portfolioRepo, tokenRepo,
		gateway, sizer, notifier, &cfg.Trading, cfg.Gateway.WalletAddress)

	// No cluster lock and no telemetry sink here: the external scheduler
	// owns exclusivity for one-shot runs
	cycleWorker := workers.NewTradingCycleWorker(classifier, scorer, planner,
		rebalancer, manager, tokenRepo, portfolioRepo, tradeRepo, gateway,
		nil, nil, &cfg.Engine)

	return cycleWorker.RunPass(ctx, "cli")
}
