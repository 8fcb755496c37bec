package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"subledger/internal/subscription"
)

// MemoryRepository keeps records in process. Transactions stage writes in an
// overlay that is merged on success.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]subscription.Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]subscription.Record)}
}

func (r *MemoryRepository) Get(ctx context.Context, account string) (subscription.Record, error) {
	if err := ctx.Err(); err != nil {
		return subscription.Record{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rec, ok := r.records[account]; ok {
		return rec, nil
	}
	return subscription.Record{Account: account}, nil
}

func (r *MemoryRepository) Set(ctx context.Context, account string, rec subscription.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.Account = account

	r.mu.Lock()
	r.records[account] = rec
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx subscription.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{parent: r, staged: make(map[string]subscription.Record)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	for account, rec := range tx.staged {
		r.records[account] = rec
	}
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) LapsedAutoRenew(ctx context.Context, now time.Time, after subscription.Cursor, limit int) ([]subscription.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	lapsed := make([]subscription.Record, 0)
	for _, rec := range r.records {
		if rec.AutoRenew && !rec.ActiveAt(now) && after.Before(rec) {
			lapsed = append(lapsed, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(lapsed, func(i, j int) bool {
		if lapsed[i].ExpiresAt != lapsed[j].ExpiresAt {
			return lapsed[i].ExpiresAt < lapsed[j].ExpiresAt
		}
		return lapsed[i].Account < lapsed[j].Account
	})
	if limit > 0 && len(lapsed) > limit {
		lapsed = lapsed[:limit]
	}
	return lapsed, nil
}

type memoryTx struct {
	parent *MemoryRepository
	staged map[string]subscription.Record
}

func (t *memoryTx) Get(ctx context.Context, account string) (subscription.Record, error) {
	if rec, ok := t.staged[account]; ok {
		return rec, nil
	}
	return t.parent.Get(ctx, account)
}

func (t *memoryTx) Set(ctx context.Context, account string, rec subscription.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.Account = account
	t.staged[account] = rec
	return nil
}

// Nested transactions join the outer one.
func (t *memoryTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx subscription.Repository) error) error {
	return fn(ctx, t)
}
