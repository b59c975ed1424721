package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// SignalRepository handles database operations for trade signals
type SignalRepository struct {
	db *sqlx.DB
}

// NewSignalRepository creates new signal repository
func NewSignalRepository(db *sqlx.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

const signalColumns = `
	id, symbol, mint, type, timeframe, entry_price, target_price, stop_loss,
	confidence, status, expiry_date, created_at
`

// Create persists a new signal in PENDING state
func (r *SignalRepository) Create(ctx context.Context, signal *models.Signal) error {
	if err := validateSignal(signal); err != nil {
		return err
	}

	query := `
		INSERT INTO signals
			(symbol, mint, type, timeframe, entry_price, target_price, stop_loss,
			 confidence, status, expiry_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		signal.Symbol,
		signal.Mint,
		string(signal.Type),
		string(signal.Timeframe),
		signal.EntryPrice,
		signal.TargetPrice,
		signal.StopLoss,
		string(signal.Confidence),
		string(models.StatusPending),
		signal.ExpiryDate,
	).Scan(&signal.ID, &signal.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create signal: %w", err)
	}

	signal.Status = models.StatusPending

	return nil
}

// OldestPending claims the single oldest PENDING signal for this cycle.
// Selecting exactly one row is how the one-signal-per-cycle throttle is
// enforced, not an incidental call-site detail.
func (r *SignalRepository) OldestPending(ctx context.Context) (*models.Signal, error) {
	return r.oldestWithStatus(ctx, models.StatusPending)
}

// OldestActive claims the single oldest ACTIVE signal for this cycle
func (r *SignalRepository) OldestActive(ctx context.Context) (*models.Signal, error) {
	return r.oldestWithStatus(ctx, models.StatusActive)
}

func (r *SignalRepository) oldestWithStatus(ctx context.Context, status models.SignalStatus) (*models.Signal, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM signals
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, signalColumns)

	var signal models.Signal
	err := r.db.GetContext(ctx, &signal, query, string(status))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s signal: %w", status, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest %s signal: %w", status, err)
	}

	if err := validateSignal(&signal); err != nil {
		return nil, err
	}

	return &signal, nil
}

// Transition moves a signal from one status to another. The WHERE clause
// guards against concurrent writers: a transition that lost the race
// affects zero rows and returns ErrNotFound.
func (r *SignalRepository) Transition(ctx context.Context, id int64, from, to models.SignalStatus) error {
	query := `
		UPDATE signals
		SET status = $3
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("failed to transition signal %d from %s to %s: %w", id, from, to, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check transition result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("signal %d no longer in status %s: %w", id, from, ErrNotFound)
	}

	return nil
}

func validateSignal(s *models.Signal) error {
	if s.Symbol == "" {
		return missingField("signal", "symbol")
	}
	if s.Mint == "" {
		return missingField("signal", "mint")
	}
	if s.Type != models.SignalBuy && s.Type != models.SignalSell {
		return missingField("signal", "type")
	}
	if s.EntryPrice.IsZero() {
		return missingField("signal", "entry_price")
	}
	if s.TargetPrice.IsZero() {
		return missingField("signal", "target_price")
	}
	if s.StopLoss.IsZero() {
		return missingField("signal", "stop_loss")
	}
	if s.ExpiryDate.IsZero() {
		return missingField("signal", "expiry_date")
	}
	return nil
}
