package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cinar/indicator"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkuznetsov/aifund-bot/internal/adapters/price"
	"github.com/mkuznetsov/aifund-bot/internal/store"
	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// SnapshotWorker refreshes price-derived token metrics and appends daily
// snapshot rows the sentiment classifier reads. Volume, liquidity and holder
// counts are maintained on the token row by the external ingest and are
// carried through unchanged.
type SnapshotWorker struct {
	tokens        *store.TokenRepository
	gateway       price.Gateway
	maxConcurrent int
}

// NewSnapshotWorker creates new snapshot worker
func NewSnapshotWorker(tokens *store.TokenRepository, gateway price.Gateway, maxConcurrent int) *SnapshotWorker {
	return &SnapshotWorker{
		tokens:        tokens,
		gateway:       gateway,
		maxConcurrent: maxConcurrent,
	}
}

// Name returns worker name
func (w *SnapshotWorker) Name() string {
	return "token_snapshot"
}

// Run refreshes every active token. Per-token failures are logged and
// skipped; no token depends on another token's result.
func (w *SnapshotWorker) Run(ctx context.Context) error {
	tokens, err := w.tokens.ListActive(ctx)
	if err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(w.maxConcurrent)

	var refreshed atomic.Int64
	for i := range tokens {
		token := tokens[i]
		group.Go(func() error {
			if err := w.refreshToken(groupCtx, &token); err != nil {
				logger.Warn("failed to refresh token, skipping",
					zap.String("symbol", token.Symbol),
					zap.Error(err),
				)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info("token snapshot pass complete",
		zap.Int("tokens", len(tokens)),
		zap.Int64("refreshed", refreshed.Load()),
	)

	return nil
}

func (w *SnapshotWorker) refreshToken(ctx context.Context, token *models.Token) error {
	livePrice, err := w.gateway.GetPrice(ctx, token.Mint)
	if err != nil {
		return err
	}

	history, err := w.tokens.GetSnapshots(ctx, token.Symbol, time.Now().AddDate(0, 0, -7))
	if err != nil {
		return err
	}

	change24h := 0.0
	if prev := previousClose(history, livePrice); prev > 0 {
		change24h = (livePrice - prev) / prev * 100
	}

	avg7d := weekAverage(history, livePrice)

	snap := &models.TokenSnapshot{
		Symbol:     token.Symbol,
		Price:      livePrice,
		Price7dAvg: avg7d,
		Volume24h:  token.DailyVolume(),
		Change24h:  change24h,
		UpDay:      change24h > 0,
		SnapshotAt: time.Now(),
	}
	if err := w.tokens.SaveSnapshot(ctx, snap); err != nil {
		return err
	}

	token.Price = livePrice
	token.Price7dAvg = avg7d
	token.PriceChange24h = change24h

	return w.tokens.UpdateMetrics(ctx, token)
}

// previousClose returns the most recent snapshot price at least a day old,
// falling back to the latest snapshot of any age
func previousClose(history []models.TokenSnapshot, livePrice float64) float64 {
	cutoff := time.Now().Add(-24 * time.Hour)
	prev := 0.0
	for _, snap := range history {
		if snap.SnapshotAt.Before(cutoff) {
			prev = snap.Price
		}
	}
	if prev == 0 && len(history) > 0 {
		prev = history[len(history)-1].Price
	}
	return prev
}

// weekAverage computes the trailing simple moving average over the stored
// closes plus the live price
func weekAverage(history []models.TokenSnapshot, livePrice float64) float64 {
	closes := make([]float64, 0, len(history)+1)
	for _, snap := range history {
		closes = append(closes, snap.Price)
	}
	closes = append(closes, livePrice)

	sma := indicator.Sma(len(closes), closes)
	return sma[len(sma)-1]
}
