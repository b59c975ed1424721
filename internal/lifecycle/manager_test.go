package lifecycle

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

func init() {
	_ = logger.Init("error", "")
}

func TestValidTransition(t *testing.T) {
	all := []models.SignalStatus{
		models.StatusPending,
		models.StatusActive,
		models.StatusCompleted,
		models.StatusStopped,
		models.StatusExpired,
		models.StatusCancelled,
		models.StatusFailed,
	}

	allowed := map[models.SignalStatus][]models.SignalStatus{
		models.StatusPending: {
			models.StatusActive,
			models.StatusExpired,
			models.StatusCancelled,
			models.StatusFailed,
		},
		models.StatusActive: {
			models.StatusCompleted,
			models.StatusStopped,
			models.StatusExpired,
		},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if to == ok {
					want = true
				}
			}
			if got := ValidTransition(from, to); got != want {
				t.Errorf("ValidTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestValidTransition_TerminalStatesAreAbsorbing(t *testing.T) {
	terminals := []models.SignalStatus{
		models.StatusCompleted,
		models.StatusStopped,
		models.StatusExpired,
		models.StatusCancelled,
		models.StatusFailed,
	}

	for _, from := range terminals {
		if !from.IsTerminal() {
			t.Errorf("%s should report as terminal", from)
		}
		for _, to := range []models.SignalStatus{models.StatusPending, models.StatusActive} {
			if ValidTransition(from, to) {
				t.Errorf("terminal state %s must not transition to %s", from, to)
			}
		}
	}
}

func TestEntryHit(t *testing.T) {
	cases := []struct {
		name  string
		entry float64
		live  float64
		want  bool
	}{
		{"within tolerance above", 1.00, 1.009, true},
		{"within tolerance below", 1.00, 0.992, true},
		{"exactly at tolerance", 1.00, 1.01, true},
		{"outside tolerance", 1.00, 1.02, false},
		{"far below", 1.00, 0.90, false},
		{"exact match", 1.00, 1.00, true},
		{"zero entry never hits", 0, 1.00, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EntryHit(tc.entry, tc.live, 1.0); got != tc.want {
				t.Errorf("EntryHit(%.3f, %.3f, 1.0) = %v, want %v", tc.entry, tc.live, got, tc.want)
			}
		})
	}
}

func openTrade(action models.TradeAction, execPrice, amount float64) *models.Trade {
	return &models.Trade{
		Action:         action,
		ExecutionPrice: decimal.NewFromFloat(execPrice),
		Amount:         decimal.NewFromFloat(amount),
	}
}

func TestUnrealizedPnL(t *testing.T) {
	t.Run("long position gains on price rise", func(t *testing.T) {
		trade := openTrade(models.ActionBuy, 2.00, 100)
		pnl := UnrealizedPnL(trade, 2.50)
		if !pnl.Equal(decimal.NewFromInt(50)) {
			t.Errorf("expected +50, got %s", pnl)
		}
	})

	t.Run("long position loses on price drop", func(t *testing.T) {
		trade := openTrade(models.ActionBuy, 2.00, 100)
		pnl := UnrealizedPnL(trade, 1.80)
		if !pnl.Equal(decimal.NewFromInt(-20)) {
			t.Errorf("expected -20, got %s", pnl)
		}
	})

	t.Run("short position gains on price drop", func(t *testing.T) {
		trade := openTrade(models.ActionSell, 2.00, 100)
		pnl := UnrealizedPnL(trade, 1.50)
		if !pnl.Equal(decimal.NewFromInt(50)) {
			t.Errorf("expected +50, got %s", pnl)
		}
	})
}

func signal(sigType models.SignalType, target, stop float64) *models.Signal {
	return &models.Signal{
		Type:        sigType,
		TargetPrice: decimal.NewFromFloat(target),
		StopLoss:    decimal.NewFromFloat(stop),
	}
}

func TestTargetAndStop(t *testing.T) {
	buy := signal(models.SignalBuy, 2.00, 1.50)

	if !targetReached(buy, 2.00) {
		t.Error("buy target should trigger at target price")
	}
	if targetReached(buy, 1.99) {
		t.Error("buy target should not trigger below target price")
	}
	if !stopReached(buy, 1.50) {
		t.Error("buy stop should trigger at stop price")
	}
	if stopReached(buy, 1.51) {
		t.Error("buy stop should not trigger above stop price")
	}

	sell := signal(models.SignalSell, 1.50, 2.00)

	if !targetReached(sell, 1.50) {
		t.Error("sell target should trigger at or below target price")
	}
	if targetReached(sell, 1.51) {
		t.Error("sell target should not trigger above target price")
	}
	if !stopReached(sell, 2.00) {
		t.Error("sell stop should trigger at or above stop price")
	}
}
