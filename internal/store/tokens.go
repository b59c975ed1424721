package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// TokenRepository handles database operations for tracked tokens
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates new token repository
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// ListActive returns all tradeable tokens. Inactive tokens never reach
// scoring or trading.
func (r *TokenRepository) ListActive(ctx context.Context) ([]models.Token, error) {
	query := `
		SELECT id, symbol, mint, is_active, price, price_7d_avg, liquidity,
		       volume_7d, volume_growth, price_change_24h, holder_count, decimals, updated_at
		FROM tokens
		WHERE is_active = TRUE
		ORDER BY symbol
	`

	var tokens []models.Token
	if err := r.db.SelectContext(ctx, &tokens, query); err != nil {
		return nil, fmt.Errorf("failed to list active tokens: %w", err)
	}

	for i := range tokens {
		if err := validateToken(&tokens[i]); err != nil {
			return nil, err
		}
	}

	return tokens, nil
}

// GetBySymbol returns a single token
func (r *TokenRepository) GetBySymbol(ctx context.Context, symbol string) (*models.Token, error) {
	query := `
		SELECT id, symbol, mint, is_active, price, price_7d_avg, liquidity,
		       volume_7d, volume_growth, price_change_24h, holder_count, decimals, updated_at
		FROM tokens
		WHERE symbol = $1
	`

	var token models.Token
	err := r.db.GetContext(ctx, &token, query, symbol)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("token %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token %s: %w", symbol, err)
	}

	if err := validateToken(&token); err != nil {
		return nil, err
	}

	return &token, nil
}

// UpdateMetrics persists refreshed market metrics for a token
func (r *TokenRepository) UpdateMetrics(ctx context.Context, token *models.Token) error {
	query := `
		UPDATE tokens
		SET price = $2, price_7d_avg = $3, liquidity = $4, volume_7d = $5,
		    volume_growth = $6, price_change_24h = $7, holder_count = $8, updated_at = $9
		WHERE symbol = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		token.Symbol,
		token.Price,
		token.Price7dAvg,
		token.Liquidity,
		token.Volume7d,
		token.VolumeGrowth,
		token.PriceChange24h,
		token.HolderCount,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update token metrics for %s: %w", token.Symbol, err)
	}

	return nil
}

// SaveSnapshot appends one daily snapshot row for a token
func (r *TokenRepository) SaveSnapshot(ctx context.Context, snap *models.TokenSnapshot) error {
	query := `
		INSERT INTO token_snapshots (symbol, price, price_7d_avg, volume_24h, change_24h, up_day, snapshot_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		snap.Symbol,
		snap.Price,
		snap.Price7dAvg,
		snap.Volume24h,
		snap.Change24h,
		snap.UpDay,
		snap.SnapshotAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", snap.Symbol, err)
	}

	return nil
}

// GetSnapshots returns snapshots for a token since the given time, oldest first
func (r *TokenRepository) GetSnapshots(ctx context.Context, symbol string, since time.Time) ([]models.TokenSnapshot, error) {
	query := `
		SELECT id, symbol, price, price_7d_avg, volume_24h, change_24h, up_day, snapshot_at
		FROM token_snapshots
		WHERE symbol = $1 AND snapshot_at >= $2
		ORDER BY snapshot_at ASC
	`

	var snaps []models.TokenSnapshot
	if err := r.db.SelectContext(ctx, &snaps, query, symbol, since); err != nil {
		return nil, fmt.Errorf("failed to get snapshots for %s: %w", symbol, err)
	}

	return snaps, nil
}

func validateToken(t *models.Token) error {
	if t.Symbol == "" {
		return missingField("token", "symbol")
	}
	if t.Mint == "" {
		return missingField("token", "mint")
	}
	return nil
}
