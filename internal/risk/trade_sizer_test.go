package risk

import (
	"errors"
	"testing"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

func init() {
	_ = logger.Init("error", "")
}

func newSizer() *TradeSizer {
	return NewTradeSizer(
		&config.TradingConfig{
			BalanceFraction:   0.10,
			MinTradeValue:     10,
			MaxTradeValue:     1000,
			LiquidityMultiple: 3,
		},
		&config.AllocationConfig{
			BullishConviction: 0.70,
			NeutralConviction: 0.50,
			BearishConviction: 0.30,
		},
	)
}

func TestTradeValue_BullishTenThousand(t *testing.T) {
	// $10,000 balance, BULLISH: 10000 * 0.10 * 0.70 = $700, inside bounds
	value, err := newSizer().TradeValue(10_000, models.SentimentBullish)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 700 {
		t.Errorf("expected $700, got $%.2f", value)
	}
}

func TestTradeValue_Floor(t *testing.T) {
	// $100 balance, BEARISH: 100 * 0.10 * 0.30 = $3, floored to $10
	value, err := newSizer().TradeValue(100, models.SentimentBearish)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 10 {
		t.Errorf("expected floor $10, got $%.2f", value)
	}
}

func TestTradeValue_Cap(t *testing.T) {
	// $50,000 balance, BULLISH: 50000 * 0.10 * 0.70 = $3500, capped at $1000
	value, err := newSizer().TradeValue(50_000, models.SentimentBullish)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != 1000 {
		t.Errorf("expected cap $1000, got $%.2f", value)
	}
}

func TestTradeValue_ZeroBalance(t *testing.T) {
	_, err := newSizer().TradeValue(0, models.SentimentNeutral)
	if !errors.Is(err, ErrNoStableBalance) {
		t.Fatalf("expected ErrNoStableBalance, got %v", err)
	}
}

func TestTradeValue_AlwaysBounded(t *testing.T) {
	sizer := newSizer()
	balances := []float64{0.01, 1, 50, 500, 5_000, 100_000, 10_000_000}
	sentiments := []models.SentimentClass{
		models.SentimentBullish,
		models.SentimentNeutral,
		models.SentimentBearish,
	}

	for _, balance := range balances {
		for _, sentiment := range sentiments {
			value, err := sizer.TradeValue(balance, sentiment)
			if err != nil {
				t.Fatalf("balance %.2f / %s: unexpected error: %v", balance, sentiment, err)
			}
			if value < 10 || value > 1000 {
				t.Errorf("balance %.2f / %s: value $%.2f out of [10, 1000]", balance, sentiment, value)
			}
		}
	}
}

func TestCheckLiquidity(t *testing.T) {
	sizer := newSizer()

	deep := &models.Token{Symbol: "DEEP", Liquidity: 3_000}
	if err := sizer.CheckLiquidity(deep, 1000); err != nil {
		t.Errorf("liquidity exactly 3x should pass, got %v", err)
	}

	shallow := &models.Token{Symbol: "SHALLOW", Liquidity: 2_999}
	if err := sizer.CheckLiquidity(shallow, 1000); err == nil {
		t.Error("liquidity below 3x trade value should fail the gate")
	}
}
