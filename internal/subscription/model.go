package subscription

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Record is the per-account entitlement state. ExpiresAt is Unix seconds,
// zero when the account never subscribed.
type Record struct {
	Account   string `json:"account"`
	ExpiresAt int64  `json:"expires_at"`
	AutoRenew bool   `json:"auto_renew"`
}

// ActiveAt reports whether the entitlement is still running at now.
func (r Record) ActiveAt(now time.Time) bool {
	return r.ExpiresAt > now.Unix()
}

// RemainingAt returns max(0, ExpiresAt - now).
func (r Record) RemainingAt(now time.Time) time.Duration {
	left := r.ExpiresAt - now.Unix()
	if left <= 0 {
		return 0
	}
	return time.Duration(left) * time.Second
}

// Status is the read view served to front-ends.
type Status struct {
	Account          string `json:"account"`
	ExpiresAt        int64  `json:"expires_at"`
	Subscribed       bool   `json:"subscribed"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	AutoRenew        bool   `json:"auto_renew"`
}

// Config is fixed for the lifetime of a ledger instance.
type Config struct {
	Fee          decimal.Decimal
	Period       time.Duration
	PaymentToken string
	Owner        string
}

func (c Config) Validate() error {
	if !c.Fee.IsPositive() || !c.Fee.IsInteger() {
		return fmt.Errorf("%w: fee must be a positive integer, got %s", ErrInvalidConfig, c.Fee)
	}
	if c.Period < time.Second || c.Period%time.Second != 0 {
		return fmt.Errorf("%w: period must be a positive whole number of seconds, got %s", ErrInvalidConfig, c.Period)
	}
	if strings.TrimSpace(c.PaymentToken) == "" {
		return fmt.Errorf("%w: payment token is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Owner) == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalidConfig)
	}
	return nil
}

// PeriodSeconds is the period as whole seconds.
func (c Config) PeriodSeconds() int64 {
	return int64(c.Period / time.Second)
}

// NormalizeAccount trims surrounding whitespace and rejects empty identities.
func NormalizeAccount(account string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", ErrInvalidAccount
	}
	return account, nil
}
