package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subledger/internal/events"
	"subledger/internal/payment"
	"subledger/internal/subscription"
	"subledger/internal/subscription/repository"
	subscriptionservice "subledger/internal/subscription/service"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fixture struct {
	custody *Service
	ledger  *payment.TokenLedger
	outbox  *events.Outbox
}

func newFixture(t *testing.T, collected int64) *fixture {
	t.Helper()
	f := &fixture{
		ledger: payment.NewTokenLedger("TKN", "custody"),
		outbox: events.NewOutbox(0),
	}
	if collected > 0 {
		require.NoError(t, f.ledger.Mint("custody", d(collected)))
	}
	clock := clockwork.NewFakeClock()
	f.custody = NewService(StaticOwner("owner"), f.ledger, subscription.NewLocks(), events.NewDispatcher(f.outbox, clock))
	return f
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	require.NoError(t, f.custody.Withdraw(ctx, "owner", "treasury", d(25)))
	assert.True(t, d(25).Equal(f.ledger.BalanceOf("treasury")))

	bal, err := f.custody.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, d(5).Equal(bal))

	evs := f.outbox.Since(0, 0)
	require.Len(t, evs, 1)
	assert.Equal(t, events.KindWithdrawn, evs[0].Kind)
	assert.Equal(t, "treasury", evs[0].Destination)
	require.NotNil(t, evs[0].Amount)
	assert.True(t, d(25).Equal(*evs[0].Amount))
}

func TestWithdraw_Rejections(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	err := f.custody.Withdraw(ctx, "mallory", "mallory", d(1))
	assert.ErrorIs(t, err, subscription.ErrUnauthorized)

	err = f.custody.Withdraw(ctx, "", "treasury", d(1))
	assert.ErrorIs(t, err, subscription.ErrUnauthorized)

	err = f.custody.Withdraw(ctx, "owner", "treasury", d(31))
	assert.ErrorIs(t, err, subscription.ErrInsufficientCustody)

	for _, amount := range []decimal.Decimal{d(0), d(-1), decimal.RequireFromString("0.5")} {
		err = f.custody.Withdraw(ctx, "owner", "treasury", amount)
		assert.ErrorIs(t, err, subscription.ErrInvalidAmount, amount.String())
	}

	f.ledger.RejectTransfers("contract", true)
	err = f.custody.Withdraw(ctx, "owner", "contract", d(10))
	assert.ErrorIs(t, err, subscription.ErrPaymentFailed)
	assert.ErrorIs(t, err, payment.ErrTransferRejected)

	bal, err := f.custody.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, d(30).Equal(bal), "rejected withdrawals leave custody intact")
	assert.Empty(t, f.outbox.Since(0, 0))
}

func TestWithdraw_CustodyAsDestinationRefused(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	err := f.custody.Withdraw(ctx, "owner", " custody ", d(10))
	assert.ErrorIs(t, err, subscription.ErrInvalidAccount)

	moved, err := f.custody.WithdrawAll(ctx, "owner", "custody")
	assert.ErrorIs(t, err, subscription.ErrInvalidAccount)
	assert.True(t, moved.IsZero())

	bal, err := f.custody.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, d(30).Equal(bal))
	assert.Empty(t, f.outbox.Since(0, 0), "nothing left custody, so nothing is announced")
}

func TestWithdrawAll(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	_, err := f.custody.WithdrawAll(ctx, "mallory", "mallory")
	require.ErrorIs(t, err, subscription.ErrUnauthorized)

	moved, err := f.custody.WithdrawAll(ctx, "owner", "owner")
	require.NoError(t, err)
	assert.True(t, d(30).Equal(moved))
	assert.True(t, d(30).Equal(f.ledger.BalanceOf("owner")))

	// empty custody: no transfer, no event
	moved, err = f.custody.WithdrawAll(ctx, "owner", "owner")
	require.NoError(t, err)
	assert.True(t, moved.IsZero())
	assert.Len(t, f.outbox.Since(0, 0), 1)
}

func TestWithdrawAll_ExcludesConcurrentRenewals(t *testing.T) {
	ledger := payment.NewTokenLedger("TKN", "custody")
	locks := subscription.NewLocks()
	clock := clockwork.NewFakeClockAt(time.Unix(0, 0))
	engine, err := subscriptionservice.NewService(
		subscription.Config{Fee: d(10), Period: time.Hour, PaymentToken: "TKN", Owner: "owner"},
		repository.NewMemoryRepository(),
		ledger, clock, locks, nil,
	)
	require.NoError(t, err)
	custody := NewService(StaticOwner("owner"), ledger, locks, nil)

	const n = 30
	accounts := make([]string, n)
	for i := range accounts {
		accounts[i] = "acct-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		require.NoError(t, ledger.Mint(accounts[i], d(10)))
		require.NoError(t, ledger.Approve(accounts[i], d(10)))
	}

	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		drained = decimal.Zero
	)
	for _, account := range accounts {
		wg.Add(1)
		go func(account string) {
			defer wg.Done()
			_, err := engine.Subscribe(ctx, account)
			assert.NoError(t, err)
		}(account)
		wg.Add(1)
		go func() {
			defer wg.Done()
			moved, err := custody.WithdrawAll(ctx, "owner", "owner")
			assert.NoError(t, err)
			mu.Lock()
			drained = drained.Add(moved)
			mu.Unlock()
		}()
	}
	wg.Wait()

	rest, err := custody.WithdrawAll(ctx, "owner", "owner")
	require.NoError(t, err)
	total := drained.Add(rest)
	assert.True(t, d(10*n).Equal(total), "every collected fee drained exactly once, got %s", total)
	assert.True(t, d(10*n).Equal(ledger.BalanceOf("owner")))
}

func TestStaticOwner(t *testing.T) {
	assert.True(t, StaticOwner("owner").IsOwner("owner"))
	assert.False(t, StaticOwner("owner").IsOwner("Owner"))
	assert.False(t, StaticOwner("").IsOwner(""))
}
