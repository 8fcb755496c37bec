// Package service implements the two-phase renewal protocol driven by
// untrusted external relays: a read-only eligibility probe followed by a
// perform step that re-checks everything under the account lock.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"subledger/internal/events"
	"subledger/internal/metrics"
	"subledger/internal/payment"
	"subledger/internal/subscription"
	subscriptionservice "subledger/internal/subscription/service"
)

// Engine is the part of the subscription engine automation drives.
type Engine interface {
	Renew(ctx context.Context, account, source string, pre subscriptionservice.Precondition) (subscription.Record, error)
	Status(ctx context.Context, account string) (subscription.Status, error)
	Fee() decimal.Decimal
}

type Service struct {
	engine  Engine
	gateway payment.Gateway
}

func NewService(engine Engine, gateway payment.Gateway) *Service {
	return &Service{engine: engine, gateway: gateway}
}

// CheckEligible reports whether candidate may be renewed now: auto-renew on,
// entitlement lapsed and the fee pullable. It has no side effects. performData
// is empty unless eligible.
func (s *Service) CheckEligible(ctx context.Context, candidate string) (bool, []byte, error) {
	account, err := subscription.NormalizeAccount(candidate)
	if err != nil {
		return false, nil, err
	}

	st, err := s.engine.Status(ctx, account)
	if err != nil {
		return false, nil, err
	}

	eligible := st.AutoRenew && !st.Subscribed
	if eligible {
		eligible, err = s.gateway.CanPull(ctx, account, s.engine.Fee())
		if err != nil {
			return false, nil, fmt.Errorf("probe allowance: %w", err)
		}
	}

	metrics.AutomationChecksTotal.WithLabelValues(strconv.FormatBool(eligible)).Inc()
	if !eligible {
		return false, nil, nil
	}
	return true, EncodePerformData(account), nil
}

// PerformRenewal renews the account encoded in performData if it is still
// eligible. Stale or replayed data yields ErrNotEligible with no state
// change, so relays may call it any number of times.
func (s *Service) PerformRenewal(ctx context.Context, performData []byte) (subscription.Record, error) {
	account, err := DecodePerformData(performData)
	if err != nil {
		return subscription.Record{}, err
	}

	rec, err := s.engine.Renew(ctx, account, events.SourceAutomation, s.revalidate)
	if err != nil {
		if errors.Is(err, subscription.ErrNotEligible) {
			log.Debug().Str("account", account).Err(err).Msg("automated renewal skipped")
		}
		return subscription.Record{}, err
	}
	return rec, nil
}

func (s *Service) revalidate(ctx context.Context, rec subscription.Record, now time.Time) error {
	if !rec.AutoRenew {
		return fmt.Errorf("%w: auto-renew disabled", subscription.ErrNotEligible)
	}
	if rec.ActiveAt(now) {
		return fmt.Errorf("%w: active until %d", subscription.ErrNotEligible, rec.ExpiresAt)
	}
	ok, err := s.gateway.CanPull(ctx, rec.Account, s.engine.Fee())
	if err != nil {
		return fmt.Errorf("probe allowance: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: fee not pullable", subscription.ErrNotEligible)
	}
	return nil
}
