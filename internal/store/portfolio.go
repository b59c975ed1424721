package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// PortfolioRepository handles database operations for holdings
type PortfolioRepository struct {
	db *sqlx.DB
}

// NewPortfolioRepository creates new portfolio repository
func NewPortfolioRepository(db *sqlx.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// ListHoldings returns all current holdings
func (r *PortfolioRepository) ListHoldings(ctx context.Context) ([]models.PortfolioHolding, error) {
	query := `
		SELECT id, symbol, mint, amount, usd_value, last_update
		FROM portfolio_holdings
		ORDER BY symbol
	`

	var holdings []models.PortfolioHolding
	if err := r.db.SelectContext(ctx, &holdings, query); err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}

	for i := range holdings {
		if holdings[i].Symbol == "" {
			return nil, missingField("portfolio_holding", "symbol")
		}
	}

	return holdings, nil
}

// GetHolding returns the holding for a symbol
func (r *PortfolioRepository) GetHolding(ctx context.Context, symbol string) (*models.PortfolioHolding, error) {
	query := `
		SELECT id, symbol, mint, amount, usd_value, last_update
		FROM portfolio_holdings
		WHERE symbol = $1
	`

	var holding models.PortfolioHolding
	err := r.db.GetContext(ctx, &holding, query, symbol)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("holding %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding %s: %w", symbol, err)
	}

	return &holding, nil
}

// UpsertHolding creates or updates a holding row
func (r *PortfolioRepository) UpsertHolding(ctx context.Context, holding *models.PortfolioHolding) error {
	query := `
		INSERT INTO portfolio_holdings (symbol, mint, amount, usd_value, last_update)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol) DO UPDATE SET
			amount = $3,
			usd_value = $4,
			last_update = $5
	`

	_, err := r.db.ExecContext(ctx, query,
		holding.Symbol,
		holding.Mint,
		holding.Amount,
		holding.USDValue,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert holding %s: %w", holding.Symbol, err)
	}

	return nil
}

// ApplyTrade adjusts a holding after an executed trade. Buys add to the
// position, sells subtract; usd_value is restated from the live price.
func (r *PortfolioRepository) ApplyTrade(ctx context.Context, symbol, mint string, action models.TradeAction, amount, price decimal.Decimal) error {
	holding, err := r.GetHolding(ctx, symbol)
	if err != nil && !IsNotFound(err) {
		return err
	}

	current := decimal.Zero
	if holding != nil {
		current = holding.Amount
	}

	var next decimal.Decimal
	if action == models.ActionBuy {
		next = current.Add(amount)
	} else {
		next = current.Sub(amount)
		if next.IsNegative() {
			next = decimal.Zero
		}
	}

	return r.UpsertHolding(ctx, &models.PortfolioHolding{
		Symbol:   symbol,
		Mint:     mint,
		Amount:   next,
		USDValue: next.Mul(price),
	})
}

// StableBalance returns the combined USD value of stablecoin holdings
func (r *PortfolioRepository) StableBalance(ctx context.Context) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(usd_value), 0)
		FROM portfolio_holdings
		WHERE symbol IN ('USDC', 'USDT')
	`

	var balance decimal.Decimal
	if err := r.db.GetContext(ctx, &balance, query); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get stable balance: %w", err)
	}

	return balance, nil
}

// TotalValue returns the portfolio total as the sum of holding usd_values.
// This is ground truth, not a recomputed estimate.
func (r *PortfolioRepository) TotalValue(ctx context.Context) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(usd_value), 0) FROM portfolio_holdings`

	var total decimal.Decimal
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get total portfolio value: %w", err)
	}

	return total, nil
}
