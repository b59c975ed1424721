package redis

import (
	"context"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/mkuznetsov/aifund-bot/pkg/logger"
)

const cycleLockName = "engine:cycle:lock"

// CycleLock guards the engine pass so only one instance runs it cluster-wide,
// even when the external scheduler double-fires or multiple pods are deployed.
type CycleLock struct {
	lockManager *redlock.RedLock
	ttl         time.Duration
	held        bool
}

// NewCycleLock creates a cycle lock with a TTL covering the longest expected
// pass duration
func NewCycleLock(lockManager *redlock.RedLock, ttl time.Duration) *CycleLock {
	return &CycleLock{
		lockManager: lockManager,
		ttl:         ttl,
	}
}

// TryAcquire attempts to take the cycle lock. Returns false when another
// instance is already running a pass.
func (cl *CycleLock) TryAcquire(ctx context.Context) (bool, error) {
	expiry, err := cl.lockManager.Lock(ctx, cycleLockName, cl.ttl)
	if err != nil || expiry <= 0 {
		logger.Debug("cycle lock held by another instance")
		return false, nil
	}

	cl.held = true

	logger.Debug("cycle lock acquired",
		zap.Duration("ttl", cl.ttl),
	)

	return true, nil
}

// Release releases the cycle lock
func (cl *CycleLock) Release(ctx context.Context) {
	if !cl.held {
		return
	}
	cl.held = false

	if err := cl.lockManager.UnLock(ctx, cycleLockName); err != nil {
		logger.Warn("failed to release cycle lock (may have expired)",
			zap.Error(err),
		)
	}
}
