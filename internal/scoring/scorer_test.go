package scoring

import (
	"testing"

	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

func init() {
	_ = logger.Init("error", "")
}

func token(symbol string, volume7d, liquidity, change24h float64) models.Token {
	return models.Token{
		Symbol:         symbol,
		Mint:           symbol + "-mint",
		IsActive:       true,
		Volume7d:       volume7d,
		Liquidity:      liquidity,
		PriceChange24h: change24h,
	}
}

func TestNormalize(t *testing.T) {
	t.Run("single element maps to 50", func(t *testing.T) {
		got := Normalize([]float64{42})
		if got[0] != 50 {
			t.Errorf("expected 50, got %.1f", got[0])
		}
	})

	t.Run("flat set maps to 50", func(t *testing.T) {
		got := Normalize([]float64{7, 7, 7})
		for i, v := range got {
			if v != 50 {
				t.Errorf("index %d: expected 50, got %.1f", i, v)
			}
		}
	})

	t.Run("spread set hits 0 and 100", func(t *testing.T) {
		got := Normalize([]float64{10, 20, 30})
		if got[0] != 0 {
			t.Errorf("min should normalize to 0, got %.1f", got[0])
		}
		if got[1] != 50 {
			t.Errorf("midpoint should normalize to 50, got %.1f", got[1])
		}
		if got[2] != 100 {
			t.Errorf("max should normalize to 100, got %.1f", got[2])
		}
	})
}

func TestPriceScore(t *testing.T) {
	cases := []struct {
		change float64
		want   float64
	}{
		{-15, 0},  // clamped low
		{-10, 0},  // lower edge
		{0, 50},   // flat day
		{10, 100}, // upper edge
		{25, 100}, // clamped high
		{2, 60},
	}

	for _, tc := range cases {
		if got := PriceScore(tc.change); got != tc.want {
			t.Errorf("PriceScore(%.1f) = %.1f, want %.1f", tc.change, got, tc.want)
		}
	}
}

func TestBaseScore(t *testing.T) {
	if got := BaseScore(5_000, 10_000); got != 50 {
		t.Errorf("neither check passing should score 50, got %.1f", got)
	}
	if got := BaseScore(15_000, 10_000); got != 75 {
		t.Errorf("volume check alone should score 75, got %.1f", got)
	}
	if got := BaseScore(15_000, 50_000); got != 100 {
		t.Errorf("both checks should score 100, got %.1f", got)
	}
}

func TestScore_GateExcludesThinTokens(t *testing.T) {
	tokens := []models.Token{
		token("GOOD", 700_000, 100_000, 2), // 100k daily volume
		token("THIN", 7_000, 100_000, 5),   // 1k daily volume, below gate
		token("DRY", 700_000, 20_000, 5),   // liquidity below gate
		token("OK", 70_000, 40_000, 1),     // 10k daily volume, exactly at gate
	}

	scores, err := NewScorer().Score(tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(scores) != 2 {
		t.Fatalf("expected 2 candidates after gating, got %d", len(scores))
	}
	for _, s := range scores {
		if s.Symbol == "THIN" || s.Symbol == "DRY" {
			t.Errorf("gated token %s should not be scored", s.Symbol)
		}
	}
}

func TestScore_AllGatedFails(t *testing.T) {
	tokens := []models.Token{
		token("A", 1_000, 1_000, 0),
		token("B", 2_000, 2_000, 0),
	}

	if _, err := NewScorer().Score(tokens); err == nil {
		t.Fatal("expected error when no token passes the gates")
	}
}

func TestScore_Weights(t *testing.T) {
	// Single candidate: normalized components are 50, base is 100,
	// price change 0 maps to 50. Final = 0.3*100 + 0.3*50 + 0.2*50 + 0.2*50.
	tokens := []models.Token{token("SOLO", 700_000, 100_000, 0)}

	scores, err := NewScorer().Score(tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if scores[0].FinalScore != 65 {
		t.Errorf("expected final score 65, got %.2f", scores[0].FinalScore)
	}
}

func TestScore_TargetAllocations(t *testing.T) {
	// Eight candidates with strictly decreasing volume so the ranking is
	// unambiguous: top three get 12%, bottom three get 8%, middle stays at 10%.
	var tokens []models.Token
	symbols := []string{"T1", "T2", "T3", "T4", "T5", "T6", "T7", "T8"}
	for i, symbol := range symbols {
		tokens = append(tokens, token(symbol, 800_000-float64(i)*50_000, 100_000, 0))
	}

	scores, err := NewScorer().Score(tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byScore := make(map[string]models.TokenScore)
	for _, s := range scores {
		byScore[s.Symbol] = s
	}

	for _, symbol := range symbols[:3] {
		if got := byScore[symbol].TargetAllocation; got != 12 {
			t.Errorf("top token %s: expected 12%%, got %.1f%%", symbol, got)
		}
	}
	for _, symbol := range symbols[3:5] {
		if got := byScore[symbol].TargetAllocation; got != 10 {
			t.Errorf("middle token %s: expected 10%%, got %.1f%%", symbol, got)
		}
	}
	for _, symbol := range symbols[5:] {
		if got := byScore[symbol].TargetAllocation; got != 8 {
			t.Errorf("bottom token %s: expected 8%%, got %.1f%%", symbol, got)
		}
	}
}

func TestScore_TargetCap(t *testing.T) {
	// No allocation may exceed 12% regardless of rank
	tokens := []models.Token{
		token("A", 900_000, 500_000, 9),
		token("B", 100_000, 50_000, -9),
	}

	scores, err := NewScorer().Score(tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, s := range scores {
		if s.TargetAllocation > 12 {
			t.Errorf("token %s exceeds 12%% cap: %.1f%%", s.Symbol, s.TargetAllocation)
		}
	}
}

func TestScore_SortedDescending(t *testing.T) {
	tokens := []models.Token{
		token("LOW", 80_000, 40_000, -5),
		token("HIGH", 900_000, 500_000, 8),
		token("MID", 300_000, 100_000, 1),
	}

	scores, err := NewScorer().Score(tokens)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 1; i < len(scores); i++ {
		if scores[i].FinalScore > scores[i-1].FinalScore {
			t.Errorf("scores not sorted descending at index %d", i)
		}
	}
	if scores[0].Symbol != "HIGH" {
		t.Errorf("expected HIGH ranked first, got %s", scores[0].Symbol)
	}
}
