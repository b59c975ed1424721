package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/clickhouse"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/price"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/redis"
	"github.com/mkuznetsov/aifund-bot/internal/allocation"
	"github.com/mkuznetsov/aifund-bot/internal/lifecycle"
	"github.com/mkuznetsov/aifund-bot/internal/rebalance"
	"github.com/mkuznetsov/aifund-bot/internal/scoring"
	"github.com/mkuznetsov/aifund-bot/internal/sentiment"
	"github.com/mkuznetsov/aifund-bot/internal/store"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// TradingCycleWorker runs the engine pass: sentiment, scoring, weekly
// reallocation, then one signal and one trade advancement. Each pass is
// short-lived and guarded by a cluster-wide lock so scheduler double-fires
// and multi-instance deployments cannot overlap.
type TradingCycleWorker struct {
	classifier  *sentiment.Classifier
	scorer      *scoring.Scorer
	planner     *allocation.Planner
	rebalancer  *rebalance.Engine
	manager     *lifecycle.Manager
	tokens      *store.TokenRepository
	portfolio   *store.PortfolioRepository
	trades      *store.TradeRepository
	gateway     price.Gateway
	cycleLock   *redis.CycleLock
	cycleWriter *clickhouse.CycleWriter
	engineCfg   *config.EngineConfig
}

// NewTradingCycleWorker creates new trading cycle worker
func NewTradingCycleWorker(
	classifier *sentiment.Classifier,
	scorer *scoring.Scorer,
	planner *allocation.Planner,
	rebalancer *rebalance.Engine,
	manager *lifecycle.Manager,
	tokens *store.TokenRepository,
	portfolio *store.PortfolioRepository,
	trades *store.TradeRepository,
	gateway price.Gateway,
	cycleLock *redis.CycleLock,
	cycleWriter *clickhouse.CycleWriter,
	engineCfg *config.EngineConfig,
) *TradingCycleWorker {
	return &TradingCycleWorker{
		classifier:  classifier,
		scorer:      scorer,
		planner:     planner,
		rebalancer:  rebalancer,
		manager:     manager,
		tokens:      tokens,
		portfolio:   portfolio,
		trades:      trades,
		gateway:     gateway,
		cycleLock:   cycleLock,
		cycleWriter: cycleWriter,
		engineCfg:   engineCfg,
	}
}

// Name returns worker name
func (w *TradingCycleWorker) Name() string {
	return "trading_cycle"
}

// Run executes one scheduled pass
func (w *TradingCycleWorker) Run(ctx context.Context) error {
	return w.RunPass(ctx, "schedule")
}

// RunPass executes one engine pass with the given trigger label. Used by
// both the periodic schedule and the manual HTTP/CLI trigger.
func (w *TradingCycleWorker) RunPass(ctx context.Context, trigger string) error {
	if w.cycleLock != nil {
		acquired, err := w.cycleLock.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if !acquired {
			logger.Info("cycle already running elsewhere, skipping pass")
			return nil
		}
		defer w.cycleLock.Release(ctx)
	}

	record := models.CycleRecord{
		StartedAt: time.Now(),
		Trigger:   trigger,
	}
	defer func() {
		record.FinishedAt = time.Now()
		w.cycleWriter.Add(record)
	}()

	err := w.pass(ctx, &record)
	if err != nil {
		record.Err = err.Error()
		logger.Error("trading cycle pass failed",
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		return err
	}

	logger.Info("trading cycle pass complete",
		zap.String("trigger", trigger),
		zap.String("sentiment", record.Sentiment),
		zap.Int("tokens_scored", record.TokensScored),
		zap.Int("orders_executed", record.OrdersExecuted),
		zap.Duration("took", time.Since(record.StartedAt)),
	)

	return nil
}

func (w *TradingCycleWorker) pass(ctx context.Context, record *models.CycleRecord) error {
	// Step 1: make sure the current week has a sentiment classification.
	// A missing sentiment is an invariant violation, never guessed around.
	current, err := w.classifier.EnsureWeekly(ctx, time.Now())
	if err != nil {
		return err
	}
	record.Sentiment = string(current.Classification)

	// Step 2: score active tokens and derive per-token targets
	tokens, err := w.tokens.ListActive(ctx)
	if err != nil {
		return err
	}

	scores, err := w.scorer.Score(tokens)
	if err != nil {
		return err
	}
	record.TokensScored = len(scores)

	// Step 3: weekly reallocation
	if w.rebalanceDue(ctx) {
		if err := w.runRebalance(ctx, current.Classification, tokens, scores, record); err != nil {
			// Reallocation trouble must not block lifecycle advancement
			logger.Error("reallocation failed", zap.Error(err))
		}
	}

	// Steps 4 and 5: advance at most one pending signal and one active trade
	advanced, err := w.manager.AdvancePending(ctx, current.Classification)
	if err != nil {
		logger.Error("failed to advance pending signal", zap.Error(err))
	} else if advanced {
		record.SignalsAdvanced = 1
	}

	advanced, err = w.manager.AdvanceActive(ctx)
	if err != nil {
		logger.Error("failed to advance active trade", zap.Error(err))
	} else if advanced {
		record.TradesAdvanced = 1
	}

	return nil
}

// rebalanceDue reports whether enough time passed since the last executed
// rebalance trade. A portfolio that never rebalanced is due immediately.
func (w *TradingCycleWorker) rebalanceDue(ctx context.Context) bool {
	lastAt, err := w.trades.LastRebalanceAt(ctx)
	if store.IsNotFound(err) {
		return true
	}
	if err != nil {
		logger.Error("failed to check last rebalance time", zap.Error(err))
		return false
	}
	return time.Since(lastAt) >= w.engineCfg.RebalanceInterval
}

func (w *TradingCycleWorker) runRebalance(
	ctx context.Context,
	class models.SentimentClass,
	tokens []models.Token,
	scores []models.TokenScore,
	record *models.CycleRecord,
) error {
	holdings, err := w.portfolio.ListHoldings(ctx)
	if err != nil {
		return err
	}

	_, total := allocation.CurrentPercentages(holdings)
	allocation.FillCurrentAllocations(scores, holdings, total)

	mints := make(map[string]string, len(tokens))
	for _, token := range tokens {
		mints[token.Symbol] = token.Mint
	}

	prices := w.fetchPrices(ctx, mints)

	plan, err := w.rebalancer.Plan(rebalance.PlanInput{
		Holdings:     holdings,
		Targets:      w.planner.CategoryTargets(class),
		TokenTargets: allocation.TokenTargetValues(scores, total),
		Prices:       prices,
		Mints:        mints,
	})
	if err != nil {
		return err
	}
	record.OrdersPlanned = len(plan.Orders)

	executed, err := w.rebalancer.Execute(ctx, plan.Orders)
	record.OrdersExecuted = executed
	return err
}

// fetchPrices loads live prices for all tracked mints with bounded
// parallelism. Tokens whose price cannot be fetched are simply absent from
// the result; the planner skips them.
func (w *TradingCycleWorker) fetchPrices(ctx context.Context, mints map[string]string) map[string]float64 {
	var mu sync.Mutex
	prices := make(map[string]float64, len(mints))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.engineCfg.MaxConcurrent)

	for symbol, mint := range mints {
		symbol, mint := symbol, mint
		group.Go(func() error {
			livePrice, err := w.gateway.GetPrice(groupCtx, mint)
			if err != nil {
				logger.Warn("price fetch failed",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
				return nil
			}
			mu.Lock()
			prices[symbol] = livePrice
			mu.Unlock()
			return nil
		})
	}

	_ = group.Wait()

	return prices
}
