package clickhouse

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/pkg/logger"
	"github.com/mkuznetsov/aifund-bot/pkg/models"
)

// CycleWriter buffers cycle records and flushes them in batches. A nil
// writer is valid and drops records, so telemetry stays optional.
type CycleWriter struct {
	repo        *Repository
	buffer      []models.CycleRecord
	bufferMu    sync.Mutex
	maxBatch    int
	flushTicker *time.Ticker
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewCycleWriter creates a batching writer over the telemetry repository
func NewCycleWriter(repo *Repository, maxBatch int, maxWait time.Duration) *CycleWriter {
	ctx, cancel := context.WithCancel(context.Background())

	cw := &CycleWriter{
		repo:     repo,
		buffer:   make([]models.CycleRecord, 0, maxBatch),
		maxBatch: maxBatch,
		ctx:      ctx,
		cancel:   cancel,
	}

	cw.flushTicker = time.NewTicker(maxWait)

	cw.wg.Add(1)
	go cw.autoFlush()

	return cw
}

// Add buffers one cycle record
func (cw *CycleWriter) Add(record models.CycleRecord) {
	if cw == nil {
		return
	}

	cw.bufferMu.Lock()
	cw.buffer = append(cw.buffer, record)
	shouldFlush := len(cw.buffer) >= cw.maxBatch
	cw.bufferMu.Unlock()

	if shouldFlush {
		cw.flush()
	}
}

func (cw *CycleWriter) autoFlush() {
	defer cw.wg.Done()

	for {
		select {
		case <-cw.flushTicker.C:
			cw.flush()
		case <-cw.ctx.Done():
			// Final flush before exit
			cw.flush()
			return
		}
	}
}

func (cw *CycleWriter) flush() {
	cw.bufferMu.Lock()
	if len(cw.buffer) == 0 {
		cw.bufferMu.Unlock()
		return
	}

	toWrite := make([]models.CycleRecord, len(cw.buffer))
	copy(toWrite, cw.buffer)
	cw.buffer = cw.buffer[:0]
	cw.bufferMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := cw.repo.SaveCycles(ctx, toWrite); err != nil {
		logger.Error("failed to flush cycle telemetry",
			zap.Int("records", len(toWrite)),
			zap.Error(err),
		)
	}
}

// Close stops the writer and flushes remaining data
func (cw *CycleWriter) Close() error {
	if cw == nil {
		return nil
	}

	cw.flushTicker.Stop()
	cw.cancel()
	cw.wg.Wait()
	return nil
}
