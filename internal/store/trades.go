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

// TradeRepository handles database operations for the trade audit trail
type TradeRepository struct {
	db *sqlx.DB
}

// NewTradeRepository creates new trade repository
func NewTradeRepository(db *sqlx.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Record appends one trade attempt. Failed attempts are recorded too, with
// success = false and the failure reason, so the audit trail distinguishes
// them.
func (r *TradeRepository) Record(ctx context.Context, trade *models.Trade) error {
	if trade.Symbol == "" {
		return missingField("trade", "symbol")
	}
	if trade.Action != models.ActionBuy && trade.Action != models.ActionSell {
		return missingField("trade", "action")
	}

	query := `
		INSERT INTO trades
			(signal_id, symbol, mint, action, amount, price, execution_price,
			 transaction_signature, success, failure_reason, unrealized_pnl,
			 realized_pnl, roi, reason, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		trade.SignalID,
		trade.Symbol,
		trade.Mint,
		string(trade.Action),
		trade.Amount,
		trade.Price,
		trade.ExecutionPrice,
		trade.TransactionSignature,
		trade.Success,
		trade.FailureReason,
		trade.UnrealizedPnL,
		trade.RealizedPnL,
		trade.ROI,
		trade.Reason,
		time.Now(),
	).Scan(&trade.ID, &trade.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}

	return nil
}

// OpenTradeForSignal returns the executed trade that activated a signal
func (r *TradeRepository) OpenTradeForSignal(ctx context.Context, signalID int64) (*models.Trade, error) {
	query := `
		SELECT id, signal_id, symbol, mint, action, amount, price, execution_price,
		       transaction_signature, success, failure_reason, unrealized_pnl,
		       realized_pnl, roi, reason, executed_at, created_at
		FROM trades
		WHERE signal_id = $1 AND success = TRUE
		ORDER BY executed_at ASC
		LIMIT 1
	`

	var trade models.Trade
	err := r.db.GetContext(ctx, &trade, query, signalID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("trade for signal %d: %w", signalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade for signal %d: %w", signalID, err)
	}

	return &trade, nil
}

// UpdateUnrealizedPnL restates mark-to-market PnL on an open trade
func (r *TradeRepository) UpdateUnrealizedPnL(ctx context.Context, tradeID int64, unrealized decimal.Decimal) error {
	query := `UPDATE trades SET unrealized_pnl = $2 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, tradeID, unrealized); err != nil {
		return fmt.Errorf("failed to update unrealized pnl for trade %d: %w", tradeID, err)
	}

	return nil
}

// Close finalizes a trade with realized PnL and ROI
func (r *TradeRepository) Close(ctx context.Context, tradeID int64, realized decimal.Decimal, roi float64) error {
	query := `
		UPDATE trades
		SET realized_pnl = $2, unrealized_pnl = 0, roi = $3
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, tradeID, realized, roi); err != nil {
		return fmt.Errorf("failed to close trade %d: %w", tradeID, err)
	}

	return nil
}

// LastRebalanceAt returns when the most recent rebalance trade executed.
// Returns ErrNotFound when no rebalance has run yet.
func (r *TradeRepository) LastRebalanceAt(ctx context.Context) (time.Time, error) {
	query := `
		SELECT executed_at
		FROM trades
		WHERE signal_id IS NULL AND reason LIKE 'rebalance:%'
		ORDER BY executed_at DESC
		LIMIT 1
	`

	var at time.Time
	err := r.db.GetContext(ctx, &at, query)
	if err == sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("rebalance trade: %w", ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last rebalance time: %w", err)
	}

	return at, nil
}
