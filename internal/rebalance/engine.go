package rebalance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/price"
	"github.com/mkuznetsov/aifund-bot/internal/allocation"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
	"github.com/mkuznetsov/aifund-bot/pkg/retry"
)

// stableMint is the USDC mint, the quote leg for impact checks
const stableMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// Notifier sends best-effort human-readable events
type Notifier interface {
	Notify(ctx context.Context, text string)
}

type tradeStore interface {
	Record(ctx context.Context, trade *models.Trade) error
}

type portfolioStore interface {
	ApplyTrade(ctx context.Context, symbol, mint string, action models.TradeAction, amount, price decimal.Decimal) error
}

// Engine diffs current holdings against target allocations and executes the
// resulting trade plan
type Engine struct {
	portfolio   portfolioStore
	trades      tradeStore
	gateway     price.Gateway
	notifier    Notifier
	trading     *config.TradingConfig
	wallet      string
	slippageBps int
	retryPol    retry.Policy
}

// NewEngine creates new reallocation engine
func NewEngine(
	portfolio portfolioStore,
	trades tradeStore,
	gateway price.Gateway,
	notifier Notifier,
	trading *config.TradingConfig,
	wallet string,
	slippageBps int,
) *Engine {
	return &Engine{
		portfolio:   portfolio,
		trades:      trades,
		gateway:     gateway,
		notifier:    notifier,
		trading:     trading,
		wallet:      wallet,
		slippageBps: slippageBps,
		retryPol:    retry.DefaultPolicy,
	}
}

// PlanInput carries everything a planning pass needs. Prices map live prices
// by symbol; tokens missing from it are skipped, not failed.
type PlanInput struct {
	Holdings     []models.PortfolioHolding
	Targets      models.CategoryTargets
	TokenTargets map[string]float64
	Prices       map[string]float64
	Mints        map[string]string
}

// CategoryAction is the category-level decision for one drifting category.
// SOL drift materializes as a direct order (Direct=true); AI-token drift is
// closed by the token-level orders and stables move as the funding leg of
// every order, so those actions exist for the audit trail only.
type CategoryAction struct {
	Category   models.AssetCategory
	Action     models.TradeAction
	CurrentPct float64
	TargetPct  float64
	ValueUSD   float64
	Direct     bool
}

// TradePlan is the output of one planning pass: one action per drifting
// category plus the executable orders closing the drift.
type TradePlan struct {
	CategoryActions []CategoryAction
	Orders          []models.RebalanceOrder
}

// Plan computes the category actions and the ordered trade list closing
// allocation drift.
//
// Category drift must strictly exceed the configured threshold in percentage
// points; token drift must strictly exceed its percent-of-total threshold.
// Every drifting category yields a CategoryAction; only the SOL action also
// yields a direct order. The order list has every SELL before every BUY:
// sells fund buys, and the ordering is a correctness invariant.
func (e *Engine) Plan(input PlanInput) (*TradePlan, error) {
	percentages, total := allocation.CurrentPercentages(input.Holdings)
	if total <= 0 {
		return nil, fmt.Errorf("portfolio is empty, nothing to rebalance")
	}

	held := make(map[string]float64, len(input.Holdings))
	heldAmount := make(map[string]float64, len(input.Holdings))
	for _, h := range input.Holdings {
		held[h.Symbol] = models.ToFloat64(h.USDValue)
		heldAmount[h.Symbol] = models.ToFloat64(h.Amount)
	}

	plan := &TradePlan{}

	// Category level
	for _, category := range []models.AssetCategory{
		models.CategoryAITokens,
		models.CategorySol,
		models.CategoryStables,
	} {
		current := percentages[category]
		target := input.Targets.For(category)
		drift := current - target

		if math.Abs(drift) <= e.trading.CategoryDriftPoints {
			continue
		}

		logger.Info("category allocation drift detected",
			zap.String("category", string(category)),
			zap.Float64("current_pct", current),
			zap.Float64("target_pct", target),
			zap.Float64("drift_points", drift),
		)

		action := CategoryAction{
			Category:   category,
			Action:     models.ActionSell,
			CurrentPct: current,
			TargetPct:  target,
			ValueUSD:   math.Abs(drift) / 100 * total,
		}
		if drift < 0 {
			action.Action = models.ActionBuy
		}

		if category == models.CategorySol {
			if solPrice, ok := input.Prices["SOL"]; ok && solPrice > 0 {
				action.Direct = true
				plan.Orders = append(plan.Orders, models.RebalanceOrder{
					Action:   action.Action,
					Symbol:   "SOL",
					Mint:     input.Mints["SOL"],
					Amount:   action.ValueUSD / solPrice,
					ValueUSD: action.ValueUSD,
					Price:    solPrice,
					Reason: fmt.Sprintf("rebalance: sol category at %.1f%%, target %.1f%%",
						current, target),
				})
			} else {
				logger.Warn("skipping SOL category order, no live price")
			}
		}

		plan.CategoryActions = append(plan.CategoryActions, action)
	}

	// Token level
	symbols := make([]string, 0, len(input.TokenTargets))
	for symbol := range input.TokenTargets {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		targetValue := input.TokenTargets[symbol]
		currentValue := held[symbol]
		diff := targetValue - currentValue

		if math.Abs(diff)/total*100 <= e.trading.TokenDriftPct {
			continue
		}

		livePrice, ok := input.Prices[symbol]
		if !ok || livePrice <= 0 {
			logger.Warn("skipping token order, no live price",
				zap.String("symbol", symbol),
			)
			continue
		}

		action := models.ActionBuy
		if diff < 0 {
			action = models.ActionSell
			// Never sell more than is held
			if sellable := heldAmount[symbol] * livePrice; math.Abs(diff) > sellable {
				diff = -sellable
			}
		}

		plan.Orders = append(plan.Orders, models.RebalanceOrder{
			Action:   action,
			Symbol:   symbol,
			Mint:     input.Mints[symbol],
			Amount:   math.Abs(diff) / livePrice,
			ValueUSD: math.Abs(diff),
			Price:    livePrice,
			Reason: fmt.Sprintf("rebalance: %s at $%.2f, target $%.2f",
				symbol, currentValue, targetValue),
		})
	}

	// SELLs precede BUYs; stable sort keeps the per-level ordering
	sort.SliceStable(plan.Orders, func(i, j int) bool {
		return plan.Orders[i].Action == models.ActionSell && plan.Orders[j].Action == models.ActionBuy
	})

	logger.Info("rebalance plan computed",
		zap.Int("category_actions", len(plan.CategoryActions)),
		zap.Int("orders", len(plan.Orders)),
		zap.Float64("total_value", total),
	)

	return plan, nil
}

// Execute runs the plan strictly sequentially. Buy orders may depend on USD
// proceeds from sells, so no parallelism here. One Trade row is recorded per
// order attempt, success or failure.
func (e *Engine) Execute(ctx context.Context, orders []models.RebalanceOrder) (int, error) {
	if len(orders) == 0 {
		return 0, nil
	}

	if e.notifier != nil {
		e.notifier.Notify(ctx, fmt.Sprintf(
			"⚖️ Rebalancing: executing %d orders (%s)",
			len(orders), summarize(orders),
		))
	}

	executed := 0
	for _, order := range orders {
		if err := e.executeOrder(ctx, order); err != nil {
			logger.Error("rebalance order failed",
				zap.String("symbol", order.Symbol),
				zap.String("action", string(order.Action)),
				zap.Error(err),
			)
			continue
		}
		executed++
	}

	logger.Info("rebalance execution finished",
		zap.Int("executed", executed),
		zap.Int("failed", len(orders)-executed),
	)

	return executed, nil
}

func (e *Engine) executeOrder(ctx context.Context, order models.RebalanceOrder) error {
	trade := &models.Trade{
		Symbol:         order.Symbol,
		Mint:           order.Mint,
		Action:         order.Action,
		Amount:         decimal.NewFromFloat(order.Amount),
		Price:          decimal.NewFromFloat(order.Price),
		ExecutionPrice: decimal.NewFromFloat(order.Price),
		Reason:         order.Reason,
	}

	if err := e.checkImpact(ctx, order); err != nil {
		trade.Success = false
		trade.FailureReason = err.Error()
		if recordErr := e.trades.Record(ctx, trade); recordErr != nil {
			logger.Error("failed to record rejected rebalance order",
				zap.Error(recordErr),
			)
		}
		return fmt.Errorf("order rejected for %s: %w", order.Symbol, err)
	}

	var signature string
	err := retry.Do(ctx, "rebalance transfer", e.retryPol, func(ctx context.Context) error {
		var submitErr error
		signature, submitErr = e.gateway.SubmitTransfer(ctx, e.wallet, order.Mint, order.Amount)
		return submitErr
	})

	if err != nil {
		trade.Success = false
		trade.FailureReason = err.Error()
		if recordErr := e.trades.Record(ctx, trade); recordErr != nil {
			logger.Error("failed to record failed rebalance trade",
				zap.Error(recordErr),
			)
		}
		return fmt.Errorf("transfer failed for %s: %w", order.Symbol, err)
	}

	trade.Success = true
	trade.TransactionSignature = signature

	if err := e.persistFill(ctx, order, trade); err != nil {
		// The transfer already settled; an unrecorded fill means holdings
		// are stale and the next planning pass would emit the same order
		// again. A human reconciles before that happens.
		logger.Error("rebalance trade executed but not fully recorded",
			zap.String("symbol", order.Symbol),
			zap.String("signature", signature),
			zap.Error(err),
		)
		if e.notifier != nil {
			e.notifier.Notify(ctx, fmt.Sprintf(
				"🚨 Rebalance %s %s executed (tx %s) but bookkeeping failed: %v — reconcile manually",
				order.Action, order.Symbol, signature, err,
			))
		}
		return fmt.Errorf("fill for %s not recorded: %w", order.Symbol, err)
	}

	return nil
}

// persistFill records the fill and applies it to holdings, retrying each
// step independently so a transient store failure cannot lose an executed
// trade.
func (e *Engine) persistFill(ctx context.Context, order models.RebalanceOrder, trade *models.Trade) error {
	if err := retry.Do(ctx, "record rebalance fill", e.retryPol, func(ctx context.Context) error {
		return e.trades.Record(ctx, trade)
	}); err != nil {
		return fmt.Errorf("record fill: %w", err)
	}

	if err := retry.Do(ctx, "apply rebalance fill", e.retryPol, func(ctx context.Context) error {
		return e.portfolio.ApplyTrade(ctx, order.Symbol, order.Mint, order.Action,
			trade.Amount, trade.Price)
	}); err != nil {
		return fmt.Errorf("apply fill: %w", err)
	}

	return nil
}

// checkImpact prices the order through the quote API and rejects it when the
// route's price impact exceeds the configured slippage tolerance. A missing
// route is a rejection; any other quote failure degrades to a warning so a
// flaky quote API cannot stall rebalancing.
func (e *Engine) checkImpact(ctx context.Context, order models.RebalanceOrder) error {
	inputMint, outputMint, amount := stableMint, order.Mint, order.ValueUSD
	if order.Action == models.ActionSell {
		inputMint, outputMint, amount = order.Mint, stableMint, order.Amount
	}

	quote, err := e.gateway.GetQuote(ctx, inputMint, outputMint, amount, e.slippageBps)
	if errors.Is(err, price.ErrNoRoute) {
		return fmt.Errorf("no route for %s: %w", order.Symbol, err)
	}
	if err != nil {
		logger.Warn("quote unavailable, executing without impact check",
			zap.String("symbol", order.Symbol),
			zap.Error(err),
		)
		return nil
	}

	tolerated := float64(e.slippageBps) / 10_000
	if quote.PriceImpactPct > tolerated {
		return fmt.Errorf("price impact %.4f%% exceeds slippage tolerance %.4f%%",
			quote.PriceImpactPct*100, tolerated*100)
	}

	return nil
}

func summarize(orders []models.RebalanceOrder) string {
	sells, buys := 0, 0
	for _, order := range orders {
		if order.Action == models.ActionSell {
			sells++
		} else {
			buys++
		}
	}
	return fmt.Sprintf("%d sells, %d buys", sells, buys)
}
