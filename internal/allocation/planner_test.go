package allocation

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

func init() {
	_ = logger.Init("error", "")
}

func defaultAlloc() *config.AllocationConfig {
	return &config.AllocationConfig{
		BullishAITokens: 70, BullishSol: 20, BullishStables: 10,
		NeutralAITokens: 50, NeutralSol: 30, NeutralStables: 20,
		BearishAITokens: 40, BearishSol: 20, BearishStables: 40,
		BullishConviction: 0.70, NeutralConviction: 0.50, BearishConviction: 0.30,
	}
}

func holding(symbol string, usdValue float64) models.PortfolioHolding {
	return models.PortfolioHolding{
		Symbol:   symbol,
		USDValue: decimal.NewFromFloat(usdValue),
	}
}

func TestCategoryTargets(t *testing.T) {
	planner := NewPlanner(defaultAlloc())

	cases := []struct {
		class models.SentimentClass
		want  models.CategoryTargets
	}{
		{models.SentimentBullish, models.CategoryTargets{AITokens: 70, Sol: 20, Stables: 10}},
		{models.SentimentNeutral, models.CategoryTargets{AITokens: 50, Sol: 30, Stables: 20}},
		{models.SentimentBearish, models.CategoryTargets{AITokens: 40, Sol: 20, Stables: 40}},
	}

	for _, tc := range cases {
		got := planner.CategoryTargets(tc.class)
		if got != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.class, got, tc.want)
		}
		if got.Sum() != 100 {
			t.Errorf("%s: targets must sum to 100, got %.1f", tc.class, got.Sum())
		}
	}
}

func TestConviction(t *testing.T) {
	planner := NewPlanner(defaultAlloc())

	if got := planner.Conviction(models.SentimentBullish); got != 0.70 {
		t.Errorf("BULLISH conviction: got %.2f, want 0.70", got)
	}
	if got := planner.Conviction(models.SentimentNeutral); got != 0.50 {
		t.Errorf("NEUTRAL conviction: got %.2f, want 0.50", got)
	}
	if got := planner.Conviction(models.SentimentBearish); got != 0.30 {
		t.Errorf("BEARISH conviction: got %.2f, want 0.30", got)
	}
}

func TestCurrentPercentages(t *testing.T) {
	holdings := []models.PortfolioHolding{
		holding("ALPHA", 3000), // ai_tokens
		holding("BETA", 2000),  // ai_tokens
		holding("SOL", 2500),
		holding("USDC", 2500), // stables
	}

	percentages, total := CurrentPercentages(holdings)

	if total != 10000 {
		t.Fatalf("expected total 10000, got %.1f", total)
	}
	if got := percentages[models.CategoryAITokens]; got != 50 {
		t.Errorf("ai_tokens: expected 50%%, got %.1f%%", got)
	}
	if got := percentages[models.CategorySol]; got != 25 {
		t.Errorf("sol: expected 25%%, got %.1f%%", got)
	}
	if got := percentages[models.CategoryStables]; got != 25 {
		t.Errorf("stables: expected 25%%, got %.1f%%", got)
	}
}

func TestCurrentPercentages_EmptyPortfolio(t *testing.T) {
	percentages, total := CurrentPercentages(nil)

	if total != 0 {
		t.Errorf("expected zero total, got %.1f", total)
	}
	if len(percentages) != 0 {
		t.Errorf("expected no percentages, got %v", percentages)
	}
}

func TestTokenTargetValues(t *testing.T) {
	scores := []models.TokenScore{
		{Symbol: "ALPHA", TargetAllocation: 12},
		{Symbol: "BETA", TargetAllocation: 8},
	}

	targets := TokenTargetValues(scores, 10000)

	if targets["ALPHA"] != 1200 {
		t.Errorf("ALPHA: expected $1200, got %.1f", targets["ALPHA"])
	}
	if targets["BETA"] != 800 {
		t.Errorf("BETA: expected $800, got %.1f", targets["BETA"])
	}
}

func TestFillCurrentAllocations(t *testing.T) {
	scores := []models.TokenScore{
		{Symbol: "ALPHA"},
		{Symbol: "UNHELD"},
	}
	holdings := []models.PortfolioHolding{holding("ALPHA", 1500)}

	FillCurrentAllocations(scores, holdings, 10000)

	if scores[0].CurrentAllocation != 15 {
		t.Errorf("ALPHA: expected 15%%, got %.1f%%", scores[0].CurrentAllocation)
	}
	if scores[1].CurrentAllocation != 0 {
		t.Errorf("UNHELD: expected 0%%, got %.1f%%", scores[1].CurrentAllocation)
	}
}
