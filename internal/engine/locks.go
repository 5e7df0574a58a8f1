package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/muscatlabs/bankfeed/internal/common"
)

// accountLocks serializes ingestion per account. Two concurrent batches
// for the same account must not interleave their dedup check and insert;
// batches for different accounts never block each other.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]chan struct{})}
}

// acquire blocks until the account lock is free, the timeout elapses, or
// the context is done. The returned release function must be called
// exactly once.
func (l *accountLocks) acquire(ctx context.Context, accountID string, timeout time.Duration) (func(), error) {
	l.mu.Lock()
	ch, ok := l.locks[accountID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[accountID] = ch
	}
	l.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, fmt.Errorf("account %s: %w", accountID, common.ErrLockTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("account %s: %w", accountID, ctx.Err())
	}
}
