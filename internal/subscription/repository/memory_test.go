package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subledger/internal/subscription"
)

func TestMemoryRepository_GetUnseenReturnsZeroRecord(t *testing.T) {
	repo := NewMemoryRepository()

	rec, err := repo.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, subscription.Record{Account: "alice"}, rec)
}

func TestMemoryRepository_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	require.NoError(t, repo.Set(ctx, "alice", subscription.Record{ExpiresAt: 10}))
	require.NoError(t, repo.Set(ctx, "alice", subscription.Record{ExpiresAt: 20, AutoRenew: true}))

	rec, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, subscription.Record{Account: "alice", ExpiresAt: 20, AutoRenew: true}, rec)
}

func TestMemoryRepository_WithTx(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Set(ctx, "alice", subscription.Record{ExpiresAt: 10}))

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.WithTx(ctx, func(ctx context.Context, tx subscription.Repository) error {
			require.NoError(t, tx.Set(ctx, "alice", subscription.Record{ExpiresAt: 99}))

			staged, err := tx.Get(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, int64(99), staged.ExpiresAt, "tx reads its own writes")

			outside, err := repo.Get(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, int64(10), outside.ExpiresAt, "staged write leaked")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		rec, err := repo.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(10), rec.ExpiresAt)
	})

	t.Run("commit on success", func(t *testing.T) {
		err := repo.WithTx(ctx, func(ctx context.Context, tx subscription.Repository) error {
			return tx.WithTx(ctx, func(ctx context.Context, inner subscription.Repository) error {
				return inner.Set(ctx, "alice", subscription.Record{ExpiresAt: 40})
			})
		})
		require.NoError(t, err)

		rec, err := repo.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(40), rec.ExpiresAt)
	})
}

func TestMemoryRepository_LapsedAutoRenew(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	now := time.Unix(1_000, 0)

	require.NoError(t, repo.Set(ctx, "active", subscription.Record{ExpiresAt: 2_000, AutoRenew: true}))
	require.NoError(t, repo.Set(ctx, "opted-out", subscription.Record{ExpiresAt: 500}))
	require.NoError(t, repo.Set(ctx, "lapsed-late", subscription.Record{ExpiresAt: 900, AutoRenew: true}))
	require.NoError(t, repo.Set(ctx, "lapsed-early", subscription.Record{ExpiresAt: 100, AutoRenew: true}))
	require.NoError(t, repo.Set(ctx, "never", subscription.Record{AutoRenew: true}))

	got, err := repo.LapsedAutoRenew(ctx, now, subscription.Cursor{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"never", "lapsed-early", "lapsed-late"}, accountsOf(got))

	got, err = repo.LapsedAutoRenew(ctx, now, subscription.Cursor{}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"never", "lapsed-early"}, accountsOf(got))

	got, err = repo.LapsedAutoRenew(ctx, now, subscription.CursorAt(got[1]), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"lapsed-late"}, accountsOf(got))
}

func TestMemoryRepository_LapsedAutoRenewCursorBreaksTies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	for _, account := range []string{"c", "a", "b"} {
		require.NoError(t, repo.Set(ctx, account, subscription.Record{AutoRenew: true}))
	}

	got, err := repo.LapsedAutoRenew(ctx, time.Unix(10, 0), subscription.Cursor{Account: "a"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, accountsOf(got))
}

func accountsOf(recs []subscription.Record) []string {
	out := make([]string, len(recs))
	for i, rec := range recs {
		out[i] = rec.Account
	}
	return out
}
