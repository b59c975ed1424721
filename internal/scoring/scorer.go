package scoring

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// Minimum requirement gates. Tokens failing either are excluded before any
// normalization so they cannot skew the candidate set.
const (
	MinDailyVolume = 10_000.0
	MinLiquidity   = 30_000.0
)

// Component weights are a policy constant, not derived from data
const (
	baseWeight      = 0.3
	volumeWeight    = 0.3
	priceWeight     = 0.2
	liquidityWeight = 0.2
)

// Target allocation policy: equal 10% base, top scorers boosted, bottom
// scorers trimmed, hard cap at 12%
const (
	baseTargetPct = 10.0
	targetStepPct = 2.0
	maxTargetPct  = 12.0
	rankWindow    = 3
)

// Scorer computes composite 0-100 scores for the active token set
type Scorer struct{}

// NewScorer creates new token scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Normalize min-max scales values onto 0-100. A flat or single-element set
// maps to 50 for every entry.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}

	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	if max == min {
		for i := range out {
			out[i] = 50
		}
		return out
	}

	for i, v := range values {
		out[i] = (v - min) / (max - min) * 100
	}
	return out
}

// PriceScore maps a +-10% daily move onto 0-100
func PriceScore(priceChange24h float64) float64 {
	score := (priceChange24h + 10) * 5
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// BaseScore rewards tokens clearing the volume and liquidity health checks
func BaseScore(dailyVolume, liquidity float64) float64 {
	score := 50.0
	if dailyVolume >= MinDailyVolume {
		score += 25
	}
	if liquidity >= MinLiquidity {
		score += 25
	}
	return score
}

// Eligible reports whether a token passes the minimum requirement gates
func Eligible(token *models.Token) bool {
	return token.DailyVolume() >= MinDailyVolume && token.Liquidity >= MinLiquidity
}

// Score computes component and final scores plus target allocations for the
// candidate set. Inactive and gate-failing tokens must be filtered by the
// caller passing only active tokens; the gate is re-applied here as well.
func (s *Scorer) Score(tokens []models.Token) ([]models.TokenScore, error) {
	candidates := make([]models.Token, 0, len(tokens))
	for _, token := range tokens {
		if !Eligible(&token) {
			logger.Debug("token excluded by minimum requirements",
				zap.String("symbol", token.Symbol),
				zap.Float64("daily_volume", token.DailyVolume()),
				zap.Float64("liquidity", token.Liquidity),
			)
			continue
		}
		candidates = append(candidates, token)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no tokens passed minimum requirements")
	}

	volumes := make([]float64, len(candidates))
	liquidities := make([]float64, len(candidates))
	for i, token := range candidates {
		volumes[i] = token.DailyVolume()
		liquidities[i] = token.Liquidity
	}

	volumeScores := Normalize(volumes)
	liquidityScores := Normalize(liquidities)

	scores := make([]models.TokenScore, len(candidates))
	for i, token := range candidates {
		base := BaseScore(token.DailyVolume(), token.Liquidity)
		price := PriceScore(token.PriceChange24h)

		scores[i] = models.TokenScore{
			Symbol:         token.Symbol,
			Mint:           token.Mint,
			BaseScore:      base,
			VolumeScore:    volumeScores[i],
			PriceScore:     price,
			LiquidityScore: liquidityScores[i],
			FinalScore: base*baseWeight +
				volumeScores[i]*volumeWeight +
				price*priceWeight +
				liquidityScores[i]*liquidityWeight,
		}
	}

	assignTargets(scores)

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].FinalScore > scores[j].FinalScore
	})

	logger.Info("token scoring pass complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("excluded", len(tokens)-len(candidates)),
		zap.String("top", scores[0].Symbol),
		zap.Float64("top_score", scores[0].FinalScore),
	)

	return scores, nil
}

// assignTargets gives every token the 10% base, boosts the top three final
// scores and trims the bottom three. On sets small enough for a token to sit
// in both windows the adjustments cancel.
func assignTargets(scores []models.TokenScore) {
	ranked := make([]int, len(scores))
	for i := range ranked {
		ranked[i] = i
	}
	sort.Slice(ranked, func(a, b int) bool {
		return scores[ranked[a]].FinalScore > scores[ranked[b]].FinalScore
	})

	for i := range scores {
		scores[i].TargetAllocation = baseTargetPct
	}

	for pos, idx := range ranked {
		if pos < rankWindow {
			scores[idx].TargetAllocation += targetStepPct
		}
		if pos >= len(ranked)-rankWindow {
			scores[idx].TargetAllocation -= targetStepPct
		}
		if scores[idx].TargetAllocation > maxTargetPct {
			scores[idx].TargetAllocation = maxTargetPct
		}
	}
}
