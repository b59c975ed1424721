package allocation

import (
	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/config"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// Planner maps sentiment to category targets and token scores to per-token
// target values. Percentages come from the injected allocation config, the
// one canonical source of truth validated at startup.
type Planner struct {
	alloc *config.AllocationConfig
}

// NewPlanner creates new allocation planner
func NewPlanner(alloc *config.AllocationConfig) *Planner {
	return &Planner{alloc: alloc}
}

// CategoryTargets returns the target category split for a sentiment class
func (p *Planner) CategoryTargets(class models.SentimentClass) models.CategoryTargets {
	targets := p.alloc.TargetsFor(class)

	logger.Debug("category targets resolved",
		zap.String("sentiment", string(class)),
		zap.Float64("ai_tokens", targets.AITokens),
		zap.Float64("sol", targets.Sol),
		zap.Float64("stables", targets.Stables),
	)

	return targets
}

// Conviction returns the sizing scale for a sentiment class
func (p *Planner) Conviction(class models.SentimentClass) float64 {
	return p.alloc.ConvictionFor(class)
}

// CurrentPercentages computes each category's share of total portfolio value.
// Total is the sum of holding usd values, the ground truth.
func CurrentPercentages(holdings []models.PortfolioHolding) (map[models.AssetCategory]float64, float64) {
	total := 0.0
	byCategory := make(map[models.AssetCategory]float64)

	for _, h := range holdings {
		value := models.ToFloat64(h.USDValue)
		total += value
		byCategory[h.Category()] += value
	}

	percentages := make(map[models.AssetCategory]float64, len(byCategory))
	if total <= 0 {
		return percentages, 0
	}

	for category, value := range byCategory {
		percentages[category] = value / total * 100
	}

	return percentages, total
}

// TokenTargetValues converts per-token target allocations into USD target
// values against the current total portfolio value
func TokenTargetValues(scores []models.TokenScore, totalValue float64) map[string]float64 {
	targets := make(map[string]float64, len(scores))
	for _, score := range scores {
		targets[score.Symbol] = totalValue * score.TargetAllocation / 100
	}
	return targets
}

// FillCurrentAllocations annotates scores with each token's current share of
// the portfolio, for audit output
func FillCurrentAllocations(scores []models.TokenScore, holdings []models.PortfolioHolding, totalValue float64) {
	if totalValue <= 0 {
		return
	}

	held := make(map[string]float64, len(holdings))
	for _, h := range holdings {
		held[h.Symbol] = models.ToFloat64(h.USDValue)
	}

	for i := range scores {
		scores[i].CurrentAllocation = held[scores[i].Symbol] / totalValue * 100
	}
}
