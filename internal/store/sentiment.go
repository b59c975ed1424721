package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// SentimentRepository handles database operations for weekly sentiment rows
type SentimentRepository struct {
	db *sqlx.DB
}

// NewSentimentRepository creates new sentiment repository
func NewSentimentRepository(db *sqlx.DB) *SentimentRepository {
	return &SentimentRepository{db: db}
}

// Create appends one immutable weekly sentiment row
func (r *SentimentRepository) Create(ctx context.Context, sentiment *models.MarketSentiment) error {
	if sentiment.Classification == "" {
		return missingField("market_sentiment", "classification")
	}

	query := `
		INSERT INTO market_sentiment
			(week_start_date, week_end_date, classification, confidence,
			 pct_above_week_avg, volume_growth, up_day_volume_pct, sol_outperformance, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		sentiment.WeekStartDate,
		sentiment.WeekEndDate,
		string(sentiment.Classification),
		sentiment.Confidence,
		sentiment.PctAboveWeekAvg,
		sentiment.VolumeGrowth,
		sentiment.UpDayVolumePct,
		sentiment.SolOutperformance,
		sentiment.Notes,
	).Scan(&sentiment.ID, &sentiment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sentiment row: %w", err)
	}

	return nil
}

// Latest returns the most recent sentiment row by week end date
func (r *SentimentRepository) Latest(ctx context.Context) (*models.MarketSentiment, error) {
	query := `
		SELECT id, week_start_date, week_end_date, classification, confidence,
		       pct_above_week_avg, volume_growth, up_day_volume_pct, sol_outperformance,
		       notes, created_at
		FROM market_sentiment
		ORDER BY week_end_date DESC
		LIMIT 1
	`

	var sentiment models.MarketSentiment
	err := r.db.GetContext(ctx, &sentiment, query)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("market sentiment: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sentiment: %w", err)
	}

	if sentiment.Classification == "" {
		return nil, missingField("market_sentiment", "classification")
	}

	return &sentiment, nil
}

// ExistsForWeek reports whether the week already has a sentiment row
func (r *SentimentRepository) ExistsForWeek(ctx context.Context, weekStart string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM market_sentiment WHERE week_start_date = $1)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, weekStart); err != nil {
		return false, fmt.Errorf("failed to check sentiment for week %s: %w", weekStart, err)
	}

	return exists, nil
}
