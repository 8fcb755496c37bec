// Package indexer is an off-core read model that lists renewal candidates
// for relays. Its output is only a hint: the automation protocol re-checks
// every candidate it is handed.
package indexer

import (
	"context"

	"github.com/jonboulle/clockwork"

	"subledger/internal/subscription"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

type Indexer struct {
	source subscription.CandidateSource
	clock  clockwork.Clock
}

func New(source subscription.CandidateSource, clock clockwork.Clock) *Indexer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Indexer{source: source, clock: clock}
}

// Page is one slice of the candidate list. Next is zero on the last page.
type Page struct {
	Accounts []string
	Next     subscription.Cursor
}

// Candidates returns accounts with auto-renew on whose entitlement lapsed,
// longest lapsed first, starting strictly after the cursor.
func (i *Indexer) Candidates(ctx context.Context, after subscription.Cursor, limit int) (Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	recs, err := i.source.LapsedAutoRenew(ctx, i.clock.Now(), after, limit)
	if err != nil {
		return Page{}, err
	}

	page := Page{Accounts: make([]string, len(recs))}
	for n, rec := range recs {
		page.Accounts[n] = rec.Account
	}
	if len(recs) == limit {
		page.Next = subscription.CursorAt(recs[len(recs)-1])
	}
	return page, nil
}
