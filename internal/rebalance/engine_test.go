package rebalance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
	"github.com/mkuznetsov/aifund-bot/internal/adapters/price"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
	"github.com/mkuznetsov/aifund-bot/pkg/retry"
)

func init() {
	_ = logger.Init("error", "")
}

func newPlanOnlyEngine() *Engine {
	return NewEngine(nil, nil, nil, nil, &config.TradingConfig{
		CategoryDriftPoints: 5.0,
		TokenDriftPct:       3.0,
	}, "wallet", 50)
}

func holding(symbol string, amount, usdValue float64) models.PortfolioHolding {
	return models.PortfolioHolding{
		Symbol:   symbol,
		Mint:     symbol + "-mint",
		Amount:   decimal.NewFromFloat(amount),
		USDValue: decimal.NewFromFloat(usdValue),
	}
}

func bullishTargets() models.CategoryTargets {
	return models.CategoryTargets{AITokens: 70, Sol: 20, Stables: 10}
}

func TestPlan_EmptyPortfolio(t *testing.T) {
	_, err := newPlanOnlyEngine().Plan(PlanInput{Targets: bullishTargets()})
	if err == nil {
		t.Fatal("expected error for empty portfolio")
	}
}

func TestPlan_NoActionAtExactThreshold(t *testing.T) {
	// SOL sits at 25% against a 20% target: exactly 5 points over. The
	// threshold is strict, so neither an action nor an order may be emitted.
	holdings := []models.PortfolioHolding{
		holding("ALPHA", 7000, 7000),
		holding("SOL", 16.6667, 2500),
		holding("USDC", 500, 500),
	}

	plan, err := newPlanOnlyEngine().Plan(PlanInput{
		Holdings: holdings,
		Targets:  bullishTargets(),
		Prices:   map[string]float64{"SOL": 150},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.CategoryActions) != 0 {
		t.Errorf("no category action expected at exactly 5pp drift, got %+v", plan.CategoryActions)
	}
	for _, order := range plan.Orders {
		if order.Symbol == "SOL" {
			t.Errorf("no SOL order expected at exactly 5pp drift, got %+v", order)
		}
	}
}

func TestPlan_SolCategoryOrder(t *testing.T) {
	// SOL at 30% against a 20% target: 10 points over, sell the excess
	holdings := []models.PortfolioHolding{
		holding("ALPHA", 6000, 6000),
		holding("SOL", 20, 3000),
		holding("USDC", 1000, 1000),
	}

	plan, err := newPlanOnlyEngine().Plan(PlanInput{
		Holdings: holdings,
		Targets:  bullishTargets(),
		Prices:   map[string]float64{"SOL": 150},
		Mints:    map[string]string{"SOL": "So11111111111111111111111111111111111111112"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var solOrder *models.RebalanceOrder
	for i := range plan.Orders {
		if plan.Orders[i].Symbol == "SOL" {
			solOrder = &plan.Orders[i]
		}
	}

	if solOrder == nil {
		t.Fatal("expected a SOL order for 10pp drift")
	}
	if solOrder.Action != models.ActionSell {
		t.Errorf("over-target category must SELL, got %s", solOrder.Action)
	}
	if math.Abs(solOrder.ValueUSD-1000) > 0.01 {
		t.Errorf("expected $1000 order value, got $%.2f", solOrder.ValueUSD)
	}
	if math.Abs(solOrder.Amount-1000.0/150) > 1e-9 {
		t.Errorf("expected amount %.4f SOL, got %.4f", 1000.0/150, solOrder.Amount)
	}
}

func TestPlan_CategoryActionPerDriftingCategory(t *testing.T) {
	// AI tokens far under target, stables far over, SOL far under: every
	// drifting category must surface in the plan, direct order or not.
	holdings := []models.PortfolioHolding{
		holding("ALPHA", 100, 100),
		holding("USDC", 9900, 9900),
	}

	plan, err := newPlanOnlyEngine().Plan(PlanInput{
		Holdings: holdings,
		Targets:  bullishTargets(),
		Prices:   map[string]float64{"SOL": 150},
		Mints:    map[string]string{"SOL": "So11111111111111111111111111111111111111112"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.CategoryActions) != 3 {
		t.Fatalf("expected 3 category actions, got %d: %+v", len(plan.CategoryActions), plan.CategoryActions)
	}

	byCategory := make(map[models.AssetCategory]CategoryAction, len(plan.CategoryActions))
	for _, action := range plan.CategoryActions {
		byCategory[action.Category] = action
	}

	ai := byCategory[models.CategoryAITokens]
	if ai.Action != models.ActionBuy || ai.Direct {
		t.Errorf("under-target AI tokens must be an indirect BUY, got %+v", ai)
	}
	stables := byCategory[models.CategoryStables]
	if stables.Action != models.ActionSell || stables.Direct {
		t.Errorf("over-target stables must be an indirect SELL, got %+v", stables)
	}
	sol := byCategory[models.CategorySol]
	if sol.Action != models.ActionBuy || !sol.Direct {
		t.Errorf("under-target SOL must be a direct BUY, got %+v", sol)
	}

	// SOL at 0% against 20% of a $10k book
	if math.Abs(sol.ValueUSD-2000) > 0.01 {
		t.Errorf("expected $2000 SOL action value, got $%.2f", sol.ValueUSD)
	}
}

func TestPlan_SolActionIndirectWithoutPrice(t *testing.T) {
	holdings := []models.PortfolioHolding{
		holding("ALPHA", 7000, 7000),
		holding("USDC", 3000, 3000),
	}

	plan, err := newPlanOnlyEngine().Plan(PlanInput{
		Holdings: holdings,
		Targets:  bullishTargets(),
		Prices:   map[string]float64{}, // no SOL price
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, order := range plan.Orders {
		if order.Symbol == "SOL" {
			t.Errorf("SOL order without a live price: %+v", order)
		}
	}
	for _, action := range plan.CategoryActions {
		if action.Category == models.CategorySol && action.Direct {
			t.Error("SOL action without a live price must not claim a direct order")
		}
	}
}

func TestPlan_TokenDriftStrictThreshold(t *testing.T) {
	// ALPHA holds $700 of a $10,000 portfolio with a $1000 target: 3% drift
	// exactly, which must not trigger. BETA drifts 4%, which must.
	holdings := []models.PortfolioHolding{
		holding("ALPHA", 700, 700),
		holding("BETA", 600, 600),
		holding("USDC", 8700, 8700),
	}

	plan, err := newPlanOnlyEngine().Plan(PlanInput{
		Holdings: holdings,
		Targets:  models.CategoryTargets{AITokens: 13, Sol: 0, Stables: 87},
		TokenTargets: map[string]float64{
			"ALPHA": 1000,
			"BETA":  1000,
		},
		Prices: map[string]float64{"ALPHA": 2, "BETA": 4},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Orders) != 1 {
		t.Fatalf("expected exactly 1 order, got %d: %+v", len(plan.Orders), plan.Orders)
	}
	if plan.Orders[0].Symbol != "BETA" {
		t.Errorf("expected BETA order, got %s", plan.Orders[0].Symbol)
	}
	if plan.Orders[0].Action != models.ActionBuy {
		t.Errorf("under-target token must BUY, got %s", plan.Orders[0].Action)
	}
	if math.Abs(plan.Orders[0].Amount-100) > 1e-9 {
		t.Errorf("expected amount 100 (=$400/$4), got %.4f", plan.Orders[0].Amount)
	}
}

func TestPlan_SkipsTokensWithoutPrice(t *testing.T) {
	holdings := []models.PortfolioHolding{
		holding("ALPHA", 100, 100),
		holding("USDC", 9900, 9900),
	}

	plan, err := newPlanOnlyEngine().Plan(PlanInput{
		Holdings:     holdings,
		Targets:      models.CategoryTargets{AITokens: 10, Sol: 0, Stables: 90},
		TokenTargets: map[string]float64{"ALPHA": 1000},
		Prices:       map[string]float64{}, // no live price
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Orders) != 0 {
		t.Errorf("token without live price must be skipped, got %+v", plan.Orders)
	}
}

func TestPlan_SellsBeforeBuys(t *testing.T) {
	// OVER must be sold down, UNDER bought up, SOL category sold
	holdings := []models.PortfolioHolding{
		holding("OVER", 3000, 3000),
		holding("UNDER", 100, 100),
		holding("SOL", 20, 3000),
		holding("USDC", 3900, 3900),
	}

	plan, err := newPlanOnlyEngine().Plan(PlanInput{
		Holdings: holdings,
		Targets:  bullishTargets(),
		TokenTargets: map[string]float64{
			"OVER":  1000,
			"UNDER": 1200,
		},
		Prices: map[string]float64{"OVER": 1, "UNDER": 2, "SOL": 150},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Orders) < 3 {
		t.Fatalf("expected at least 3 orders, got %d", len(plan.Orders))
	}

	seenBuy := false
	for _, order := range plan.Orders {
		if order.Action == models.ActionBuy {
			seenBuy = true
		}
		if order.Action == models.ActionSell && seenBuy {
			t.Fatalf("SELL order after a BUY order: %+v", plan.Orders)
		}
	}
}

func TestPlan_SellClampedToHolding(t *testing.T) {
	// ALPHA target is far below current value on paper, but only 50 units
	// are actually held. The sell must not exceed the position.
	holdings := []models.PortfolioHolding{
		holding("ALPHA", 50, 2000),
		holding("USDC", 8000, 8000),
	}

	plan, err := newPlanOnlyEngine().Plan(PlanInput{
		Holdings:     holdings,
		Targets:      models.CategoryTargets{AITokens: 5, Sol: 0, Stables: 95},
		TokenTargets: map[string]float64{"ALPHA": 500},
		Prices:       map[string]float64{"ALPHA": 10},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(plan.Orders))
	}
	if plan.Orders[0].Amount > 50 {
		t.Errorf("sell amount %.2f exceeds held 50 units", plan.Orders[0].Amount)
	}
}

func TestPlan_ReasonStrings(t *testing.T) {
	holdings := []models.PortfolioHolding{
		holding("ALPHA", 100, 100),
		holding("USDC", 9900, 9900),
	}

	plan, err := newPlanOnlyEngine().Plan(PlanInput{
		Holdings:     holdings,
		Targets:      models.CategoryTargets{AITokens: 10, Sol: 0, Stables: 90},
		TokenTargets: map[string]float64{"ALPHA": 1000},
		Prices:       map[string]float64{"ALPHA": 1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(plan.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(plan.Orders))
	}
	if plan.Orders[0].Reason == "" {
		t.Error("every order must carry a human-readable reason")
	}
}

// Execution fakes

var errStoreDown = errors.New("store down")

// failRecords counts Record calls to reject; -1 rejects all of them
type fakeTradeStore struct {
	failRecords int
	recorded    []models.Trade
}

func (s *fakeTradeStore) Record(ctx context.Context, trade *models.Trade) error {
	if s.failRecords != 0 {
		if s.failRecords > 0 {
			s.failRecords--
		}
		return errStoreDown
	}
	trade.ID = int64(len(s.recorded) + 1)
	s.recorded = append(s.recorded, *trade)
	return nil
}

type fakePortfolioStore struct {
	applied int
}

func (s *fakePortfolioStore) ApplyTrade(ctx context.Context, symbol, mint string, action models.TradeAction, amount, price decimal.Decimal) error {
	s.applied++
	return nil
}

type fakeGateway struct {
	impact   float64
	quoteErr error
	submits  int
}

func (g *fakeGateway) GetPrice(ctx context.Context, mint string) (float64, error) {
	return 0, price.ErrPriceUnavailable
}

func (g *fakeGateway) GetQuote(ctx context.Context, inputMint, outputMint string, amount float64, slippageBps int) (*price.Quote, error) {
	if g.quoteErr != nil {
		return nil, g.quoteErr
	}
	return &price.Quote{
		InputMint:      inputMint,
		OutputMint:     outputMint,
		InAmount:       amount,
		OutAmount:      amount,
		PriceImpactPct: g.impact,
		SlippageBps:    slippageBps,
	}, nil
}

func (g *fakeGateway) SubmitTransfer(ctx context.Context, wallet, mint string, amount float64) (string, error) {
	g.submits++
	return fmt.Sprintf("sig-%d", g.submits), nil
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, text string) {
	n.messages = append(n.messages, text)
}

func newExecEngine(trades *fakeTradeStore, portfolio *fakePortfolioStore, gateway *fakeGateway, notifier *fakeNotifier) *Engine {
	engine := NewEngine(portfolio, trades, gateway, notifier, &config.TradingConfig{
		CategoryDriftPoints: 5.0,
		TokenDriftPct:       3.0,
	}, "wallet", 50)
	engine.retryPol = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	return engine
}

func buyOrder() models.RebalanceOrder {
	return models.RebalanceOrder{
		Action:   models.ActionBuy,
		Symbol:   "ALPHA",
		Mint:     "alpha-mint",
		Amount:   100,
		ValueUSD: 400,
		Price:    4,
		Reason:   "rebalance: ALPHA at $600.00, target $1000.00",
	}
}

func TestExecute_RejectsExcessiveImpact(t *testing.T) {
	trades := &fakeTradeStore{}
	gateway := &fakeGateway{impact: 0.02} // 2% against a 0.5% tolerance
	engine := newExecEngine(trades, &fakePortfolioStore{}, gateway, &fakeNotifier{})

	executed, err := engine.Execute(context.Background(), []models.RebalanceOrder{buyOrder()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed != 0 {
		t.Errorf("expected 0 executed orders, got %d", executed)
	}
	if gateway.submits != 0 {
		t.Errorf("rejected order must not reach the executor, got %d submits", gateway.submits)
	}
	if len(trades.recorded) != 1 || trades.recorded[0].Success {
		t.Fatalf("expected one failed trade record, got %+v", trades.recorded)
	}
	if !strings.Contains(trades.recorded[0].FailureReason, "price impact") {
		t.Errorf("failure reason should name the impact, got %q", trades.recorded[0].FailureReason)
	}
}

func TestExecute_ImpactWithinTolerance(t *testing.T) {
	trades := &fakeTradeStore{}
	portfolio := &fakePortfolioStore{}
	gateway := &fakeGateway{impact: 0.001} // 0.1% against a 0.5% tolerance
	engine := newExecEngine(trades, portfolio, gateway, &fakeNotifier{})

	executed, err := engine.Execute(context.Background(), []models.RebalanceOrder{buyOrder()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed != 1 {
		t.Errorf("expected 1 executed order, got %d", executed)
	}
	if gateway.submits != 1 {
		t.Errorf("expected exactly 1 transfer, got %d", gateway.submits)
	}
	if portfolio.applied != 1 {
		t.Errorf("fill must hit the portfolio once, got %d", portfolio.applied)
	}
}

func TestExecute_NoRouteRejectsOrder(t *testing.T) {
	trades := &fakeTradeStore{}
	gateway := &fakeGateway{quoteErr: fmt.Errorf("alpha-mint: %w", price.ErrNoRoute)}
	engine := newExecEngine(trades, &fakePortfolioStore{}, gateway, &fakeNotifier{})

	executed, err := engine.Execute(context.Background(), []models.RebalanceOrder{buyOrder()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed != 0 || gateway.submits != 0 {
		t.Errorf("routeless order must not execute: executed=%d submits=%d", executed, gateway.submits)
	}
}

func TestExecute_QuoteOutageDoesNotBlock(t *testing.T) {
	trades := &fakeTradeStore{}
	gateway := &fakeGateway{quoteErr: errors.New("quote API down")}
	engine := newExecEngine(trades, &fakePortfolioStore{}, gateway, &fakeNotifier{})

	executed, err := engine.Execute(context.Background(), []models.RebalanceOrder{buyOrder()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed != 1 || gateway.submits != 1 {
		t.Errorf("quote outage must degrade, not block: executed=%d submits=%d", executed, gateway.submits)
	}
}

func TestExecute_TransientRecordFailureRecovers(t *testing.T) {
	trades := &fakeTradeStore{failRecords: 1}
	portfolio := &fakePortfolioStore{}
	gateway := &fakeGateway{}
	engine := newExecEngine(trades, portfolio, gateway, &fakeNotifier{})

	executed, err := engine.Execute(context.Background(), []models.RebalanceOrder{buyOrder()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed != 1 {
		t.Errorf("expected 1 executed order, got %d", executed)
	}
	if gateway.submits != 1 {
		t.Errorf("retrying the write must not resubmit the transfer, got %d submits", gateway.submits)
	}
	if len(trades.recorded) != 1 || !trades.recorded[0].Success {
		t.Errorf("expected one successful fill record, got %+v", trades.recorded)
	}
}

func TestExecute_UnrecordedFillNotifies(t *testing.T) {
	trades := &fakeTradeStore{failRecords: -1}
	gateway := &fakeGateway{}
	notifier := &fakeNotifier{}
	engine := newExecEngine(trades, &fakePortfolioStore{}, gateway, notifier)

	executed, err := engine.Execute(context.Background(), []models.RebalanceOrder{buyOrder()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed != 0 {
		t.Errorf("unrecorded fill must not count as executed, got %d", executed)
	}
	if gateway.submits != 1 {
		t.Errorf("expected exactly 1 transfer, got %d", gateway.submits)
	}

	found := false
	for _, msg := range notifier.messages {
		if strings.Contains(msg, "reconcile manually") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a manual-review notification, got %v", notifier.messages)
	}
}
