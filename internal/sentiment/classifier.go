package sentiment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/internal/store"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

const (
	bullishBreadthThreshold = 60.0
	bearishBreadthThreshold = 40.0
	requiredConditions      = 3
	totalConditions         = 4
)

// Notifier sends best-effort human-readable events
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Classifier computes the weekly market sentiment from token snapshots
type Classifier struct {
	tokens     *store.TokenRepository
	sentiments *store.SentimentRepository
	notifier   Notifier
}

// NewClassifier creates new sentiment classifier
func NewClassifier(tokens *store.TokenRepository, sentiments *store.SentimentRepository, notifier Notifier) *Classifier {
	return &Classifier{
		tokens:     tokens,
		sentiments: sentiments,
		notifier:   notifier,
	}
}

// WeekMetrics holds the four ratios the classification is built from
type WeekMetrics struct {
	// PctAboveWeekAvg is the percent of AI tokens trading above their 7-day average
	PctAboveWeekAvg float64
	// VolumeGrowth is week-over-week aggregate volume growth in percent
	VolumeGrowth float64
	// UpDayVolumePct is the percent of weekly volume that occurred on up days
	UpDayVolumePct float64
	// SolOutperformance is mean AI-token 24h change minus SOL 24h change
	SolOutperformance float64
}

// Classify evaluates the four bullish and four mirrored bearish conditions.
// BULLISH requires at least 3 of 4 bullish conditions, BEARISH at least 3 of
// 4 bearish ones; the thresholds are strict, so a ratio sitting exactly on
// 60% or 40% counts for neither side. Confidence is the winning side's
// condition count over 4, for NEUTRAL as well.
func Classify(m WeekMetrics) (models.SentimentClass, int) {
	bullish := 0
	if m.PctAboveWeekAvg > bullishBreadthThreshold {
		bullish++
	}
	if m.VolumeGrowth > 0 {
		bullish++
	}
	if m.UpDayVolumePct > bullishBreadthThreshold {
		bullish++
	}
	if m.SolOutperformance > 0 {
		bullish++
	}

	bearish := 0
	if m.PctAboveWeekAvg < bearishBreadthThreshold {
		bearish++
	}
	if m.VolumeGrowth < 0 {
		bearish++
	}
	if m.UpDayVolumePct < bearishBreadthThreshold {
		bearish++
	}
	if m.SolOutperformance < 0 {
		bearish++
	}

	strongest := bullish
	if bearish > strongest {
		strongest = bearish
	}
	confidence := strongest * 100 / totalConditions

	switch {
	case bullish >= requiredConditions:
		return models.SentimentBullish, confidence
	case bearish >= requiredConditions:
		return models.SentimentBearish, confidence
	default:
		return models.SentimentNeutral, confidence
	}
}

// ComputeMetrics derives the four weekly ratios from snapshot history.
// Tokens with missing or incomplete snapshots are excluded from each ratio
// rather than failing the pass; only zero usable tokens is an error.
func ComputeMetrics(aiSnapshots map[string][]models.TokenSnapshot, solSnapshots []models.TokenSnapshot) (*WeekMetrics, error) {
	var (
		aboveAvg, breadthTotal   int
		lastWeekVol, prevWeekVol float64
		upDayVol, totalVol       float64
		changeSum                float64
		changeCount              int
	)

	cutoff := time.Now().AddDate(0, 0, -7)

	for symbol, snaps := range aiSnapshots {
		if len(snaps) == 0 {
			logger.Debug("skipping token with no snapshots",
				zap.String("symbol", symbol),
			)
			continue
		}

		latest := snaps[len(snaps)-1]

		if latest.Price7dAvg > 0 {
			breadthTotal++
			if latest.Price > latest.Price7dAvg {
				aboveAvg++
			}
		}

		changeSum += latest.Change24h
		changeCount++

		for _, snap := range snaps {
			if snap.SnapshotAt.After(cutoff) {
				lastWeekVol += snap.Volume24h
				totalVol += snap.Volume24h
				if snap.UpDay {
					upDayVol += snap.Volume24h
				}
			} else {
				prevWeekVol += snap.Volume24h
			}
		}
	}

	if breadthTotal == 0 || changeCount == 0 {
		return nil, fmt.Errorf("no tokens with usable snapshot data")
	}

	metrics := &WeekMetrics{
		PctAboveWeekAvg: float64(aboveAvg) / float64(breadthTotal) * 100,
	}

	if prevWeekVol > 0 {
		metrics.VolumeGrowth = (lastWeekVol - prevWeekVol) / prevWeekVol * 100
	}

	if totalVol > 0 {
		metrics.UpDayVolumePct = upDayVol / totalVol * 100
	}

	solChange := 0.0
	if len(solSnapshots) > 0 {
		solChange = solSnapshots[len(solSnapshots)-1].Change24h
	}
	metrics.SolOutperformance = changeSum/float64(changeCount) - solChange

	return metrics, nil
}

// WeekBounds returns the Monday..Sunday bounds of the week containing t
func WeekBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}

	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(weekday - 1))
	end := start.AddDate(0, 0, 6)

	return start, end
}

// EnsureWeekly classifies the current week if no sentiment row exists yet.
// Returns the current sentiment either way.
func (c *Classifier) EnsureWeekly(ctx context.Context, now time.Time) (*models.MarketSentiment, error) {
	weekStart, weekEnd := WeekBounds(now)

	exists, err := c.sentiments.ExistsForWeek(ctx, weekStart.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	if exists {
		return c.sentiments.Latest(ctx)
	}

	return c.ClassifyWeek(ctx, weekStart, weekEnd)
}

// ClassifyWeek runs one classification pass and persists the result
func (c *Classifier) ClassifyWeek(ctx context.Context, weekStart, weekEnd time.Time) (*models.MarketSentiment, error) {
	tokens, err := c.tokens.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no active tokens to classify")
	}

	since := time.Now().AddDate(0, 0, -14)

	aiSnapshots := make(map[string][]models.TokenSnapshot)
	var solSnapshots []models.TokenSnapshot

	for _, token := range tokens {
		snaps, err := c.tokens.GetSnapshots(ctx, token.Symbol, since)
		if err != nil {
			// Data-quality problem for one token must not abort the pass
			logger.Warn("failed to load snapshots, skipping token",
				zap.String("symbol", token.Symbol),
				zap.Error(err),
			)
			continue
		}

		switch models.CategorizeSymbol(token.Symbol) {
		case models.CategorySol:
			solSnapshots = snaps
		case models.CategoryAITokens:
			aiSnapshots[token.Symbol] = snaps
		}
	}

	metrics, err := ComputeMetrics(aiSnapshots, solSnapshots)
	if err != nil {
		return nil, fmt.Errorf("sentiment pass aborted: %w", err)
	}

	classification, confidence := Classify(*metrics)

	sentiment := &models.MarketSentiment{
		WeekStartDate:     weekStart,
		WeekEndDate:       weekEnd,
		Classification:    classification,
		Confidence:        confidence,
		PctAboveWeekAvg:   metrics.PctAboveWeekAvg,
		VolumeGrowth:      metrics.VolumeGrowth,
		UpDayVolumePct:    metrics.UpDayVolumePct,
		SolOutperformance: metrics.SolOutperformance,
		Notes:             buildNotes(metrics),
	}

	if err := c.sentiments.Create(ctx, sentiment); err != nil {
		return nil, err
	}

	logger.Info("weekly sentiment classified",
		zap.String("classification", string(classification)),
		zap.Int("confidence", confidence),
		zap.Float64("pct_above_week_avg", metrics.PctAboveWeekAvg),
		zap.Float64("volume_growth", metrics.VolumeGrowth),
		zap.Float64("up_day_volume_pct", metrics.UpDayVolumePct),
		zap.Float64("sol_outperformance", metrics.SolOutperformance),
	)

	if c.notifier != nil {
		c.notifier.Notify(ctx, fmt.Sprintf(
			"📊 Weekly sentiment: *%s* (%d%% confidence)\n%s",
			classification, confidence, sentiment.Notes,
		))
	}

	return sentiment, nil
}

func buildNotes(m *WeekMetrics) string {
	var notes []string

	notes = append(notes, fmt.Sprintf("%.1f%% of AI tokens above their 7d average", m.PctAboveWeekAvg))
	notes = append(notes, fmt.Sprintf("volume growth %.1f%% week-over-week", m.VolumeGrowth))
	notes = append(notes, fmt.Sprintf("%.1f%% of volume on up days", m.UpDayVolumePct))

	if m.SolOutperformance >= 0 {
		notes = append(notes, fmt.Sprintf("AI tokens outperforming SOL by %.2f%%", m.SolOutperformance))
	} else {
		notes = append(notes, fmt.Sprintf("AI tokens underperforming SOL by %.2f%%", -m.SolOutperformance))
	}

	return strings.Join(notes, "; ")
}
