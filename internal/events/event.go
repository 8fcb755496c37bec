// Package events carries ledger notifications to observers: an in-process
// outbox for polling and streaming, plus optional external sinks.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindRenewed          Kind = "renewed"
	KindWithdrawn        Kind = "withdrawn"
	KindAutoRenewChanged Kind = "auto_renew_changed"
)

const (
	SourceDirect     = "direct"
	SourceAutomation = "automation"
)

type Event struct {
	ID          string           `json:"id"`
	Seq         uint64           `json:"seq"`
	Kind        Kind             `json:"kind"`
	Account     string           `json:"account,omitempty"`
	ExpiresAt   int64            `json:"expires_at,omitempty"`
	Destination string           `json:"destination,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	AutoRenew   *bool            `json:"auto_renew,omitempty"`
	Source      string           `json:"source,omitempty"`
	At          time.Time        `json:"at"`
}

func Renewed(account string, expiresAt int64, source string) Event {
	return Event{Kind: KindRenewed, Account: account, ExpiresAt: expiresAt, Source: source}
}

func Withdrawn(destination string, amount decimal.Decimal) Event {
	return Event{Kind: KindWithdrawn, Destination: destination, Amount: &amount}
}

func AutoRenewChanged(account string, enabled bool) Event {
	return Event{Kind: KindAutoRenewChanged, Account: account, AutoRenew: &enabled}
}
