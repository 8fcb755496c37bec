package subscription

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Repository is the account state store. Get returns the zero record for
// unseen accounts. Writes made through the tx passed to WithTx become
// visible only when fn returns nil.
type Repository interface {
	Get(ctx context.Context, account string) (Record, error)
	Set(ctx context.Context, account string, rec Record) error
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}

// CandidateSource lists records that opted in to auto-renew and are lapsed at
// now, ordered by (ExpiresAt, Account) and strictly after the cursor. It backs
// the off-core indexer and is never used by the engine.
type CandidateSource interface {
	LapsedAutoRenew(ctx context.Context, now time.Time, after Cursor, limit int) ([]Record, error)
}

// Cursor is a keyset position in the candidate ordering. The zero Cursor
// starts from the beginning.
type Cursor struct {
	ExpiresAt int64
	Account   string
}

func CursorAt(rec Record) Cursor {
	return Cursor{ExpiresAt: rec.ExpiresAt, Account: rec.Account}
}

func (c Cursor) IsZero() bool { return c.Account == "" }

// Before reports whether rec sorts strictly after c.
func (c Cursor) Before(rec Record) bool {
	if c.IsZero() {
		return true
	}
	if rec.ExpiresAt != c.ExpiresAt {
		return rec.ExpiresAt > c.ExpiresAt
	}
	return rec.Account > c.Account
}

// String encodes the cursor as "<expires_at>:<account>", empty when zero.
func (c Cursor) String() string {
	if c.IsZero() {
		return ""
	}
	return strconv.FormatInt(c.ExpiresAt, 10) + ":" + c.Account
}

func ParseCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}
	exp, account, ok := strings.Cut(s, ":")
	if !ok || account == "" {
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	n, err := strconv.ParseInt(exp, 10, 64)
	if err != nil || n < 0 {
		return Cursor{}, fmt.Errorf("%w: %q", ErrInvalidCursor, s)
	}
	return Cursor{ExpiresAt: n, Account: account}, nil
}
