package clickhouse

import (
	"context"
	"fmt"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// Repository writes engine telemetry to ClickHouse
type Repository struct {
	db *sqlx.DB
}

// New connects to ClickHouse and returns the telemetry repository
func New(dsn string) (*Repository, error) {
	db, err := sqlx.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS engine_cycles (
			started_at DateTime64(3),
			finished_at DateTime64(3),
			trigger String,
			sentiment String,
			tokens_scored Int32,
			orders_planned Int32,
			orders_executed Int32,
			signals_advanced Int32,
			trades_advanced Int32,
			error String
		) ENGINE = MergeTree()
		ORDER BY started_at
	`); err != nil {
		return nil, fmt.Errorf("failed to ensure engine_cycles table: %w", err)
	}

	logger.Info("clickhouse telemetry sink connected")

	return &Repository{db: db}, nil
}

// Close closes the connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveCycles writes a batch of cycle records
func (r *Repository) SaveCycles(ctx context.Context, cycles []models.CycleRecord) error {
	if len(cycles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO engine_cycles
		(started_at, finished_at, trigger, sentiment, tokens_scored, orders_planned,
		 orders_executed, signals_advanced, trades_advanced, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, cycle := range cycles {
		_, err = stmt.ExecContext(ctx,
			cycle.StartedAt,
			cycle.FinishedAt,
			cycle.Trigger,
			cycle.Sentiment,
			cycle.TokensScored,
			cycle.OrdersPlanned,
			cycle.OrdersExecuted,
			cycle.SignalsAdvanced,
			cycle.TradesAdvanced,
			cycle.Err,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert cycle record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved cycle records to ClickHouse",
		zap.Int("count", len(cycles)),
	)

	return nil
}
