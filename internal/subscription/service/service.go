package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"subledger/internal/events"
	"subledger/internal/metrics"
	"subledger/internal/payment"
	"subledger/internal/subscription"
)

// Emitter receives ledger events after the change they describe is committed.
type Emitter interface {
	Emit(ctx context.Context, e events.Event) events.Event
}

// Precondition is checked under the account lock against the current record
// before a renewal pulls the fee. A non-nil error aborts the renewal.
type Precondition func(ctx context.Context, rec subscription.Record, now time.Time) error

type Service struct {
	cfg     subscription.Config
	repo    subscription.Repository
	gateway payment.Gateway
	clock   clockwork.Clock
	locks   *subscription.Locks
	events  Emitter
}

// NewService builds the subscription engine. locks must be the instance the
// custody controller uses; nil creates a private one.
func NewService(
	cfg subscription.Config,
	repo subscription.Repository,
	gateway payment.Gateway,
	clock clockwork.Clock,
	locks *subscription.Locks,
	emitter Emitter,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if repo == nil || gateway == nil {
		return nil, fmt.Errorf("%w: repository and payment gateway are required", subscription.ErrInvalidConfig)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if locks == nil {
		locks = subscription.NewLocks()
	}
	if emitter == nil {
		emitter = discard{}
	}
	return &Service{
		cfg:     cfg,
		repo:    repo,
		gateway: gateway,
		clock:   clock,
		locks:   locks,
		events:  emitter,
	}, nil
}

// Subscribe charges the caller one fee and extends their entitlement by one
// period from max(now, current expiry).
func (s *Service) Subscribe(ctx context.Context, caller string) (subscription.Record, error) {
	return s.Renew(ctx, caller, events.SourceDirect, nil)
}

// Renew is the serialized extend path shared by direct subscriptions and
// automated renewals. Payment and the state write commit together: a failed
// pull leaves the record untouched, and a fee collected for a write that then
// fails to commit is pushed back to the payer.
func (s *Service) Renew(ctx context.Context, account, source string, pre Precondition) (subscription.Record, error) {
	account, err := subscription.NormalizeAccount(account)
	if err != nil {
		return subscription.Record{}, err
	}

	unlock := s.locks.Account(account)
	defer unlock()

	now := s.clock.Now()
	key := "renewal-" + uuid.NewString()
	var (
		updated subscription.Record
		pulled  bool
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx subscription.Repository) error {
		rec, err := tx.Get(ctx, account)
		if err != nil {
			return fmt.Errorf("load record: %w", err)
		}
		if pre != nil {
			if err := pre(ctx, rec, now); err != nil {
				return err
			}
		}

		next, err := s.nextExpiry(rec, now)
		if err != nil {
			return err
		}
		rec.Account = account
		rec.ExpiresAt = next
		if err := tx.Set(ctx, account, rec); err != nil {
			return fmt.Errorf("store record: %w", err)
		}

		if err := s.gateway.Pull(payment.WithIdempotencyKey(ctx, key), account, s.cfg.Fee); err != nil {
			return fmt.Errorf("%w: %w", subscription.ErrPaymentFailed, err)
		}
		pulled = true
		updated = rec
		return nil
	})
	if err != nil {
		if pulled {
			s.refund(ctx, account, key, err)
		}
		metrics.RenewalFailuresTotal.WithLabelValues(source, failureReason(err)).Inc()
		log.Debug().Err(err).Str("account", account).Str("source", source).Str("idempotency_key", key).Msg("renewal rejected")
		return subscription.Record{}, err
	}

	metrics.RenewalsTotal.WithLabelValues(source).Inc()
	log.Info().
		Str("account", account).
		Int64("expires_at", updated.ExpiresAt).
		Str("fee", s.cfg.Fee.String()).
		Str("source", source).
		Msg("subscription renewed")

	s.events.Emit(ctx, events.Renewed(account, updated.ExpiresAt, source))
	return updated, nil
}

func (s *Service) nextExpiry(rec subscription.Record, now time.Time) (int64, error) {
	base := now.Unix()
	if rec.ExpiresAt > base {
		base = rec.ExpiresAt
	}
	period := s.cfg.PeriodSeconds()
	if base > math.MaxInt64-period {
		return 0, fmt.Errorf("%w: %d + %d", subscription.ErrExpiryOverflow, base, period)
	}
	return base + period, nil
}

func (s *Service) refund(ctx context.Context, account, key string, cause error) {
	key += "-refund"
	ctx = payment.WithIdempotencyKey(context.WithoutCancel(ctx), key)
	if err := s.gateway.Push(ctx, account, s.cfg.Fee); err != nil {
		log.Error().Err(err).
			AnErr("cause", cause).
			Str("account", account).
			Str("amount", s.cfg.Fee.String()).
			Str("idempotency_key", key).
			Msg("refund after failed commit did not go through")
		return
	}
	log.Warn().Err(cause).Str("account", account).Str("idempotency_key", key).Msg("renewal not committed, fee refunded")
}

func (s *Service) IsSubscribed(ctx context.Context, account string) (bool, error) {
	rec, err := s.get(ctx, account)
	if err != nil {
		return false, err
	}
	return rec.ActiveAt(s.clock.Now()), nil
}

// RemainingTime is max(0, expiry - now).
func (s *Service) RemainingTime(ctx context.Context, account string) (time.Duration, error) {
	rec, err := s.get(ctx, account)
	if err != nil {
		return 0, err
	}
	return rec.RemainingAt(s.clock.Now()), nil
}

// ExpiresAt is the stored expiry in Unix seconds, zero for unseen accounts.
func (s *Service) ExpiresAt(ctx context.Context, account string) (int64, error) {
	rec, err := s.get(ctx, account)
	if err != nil {
		return 0, err
	}
	return rec.ExpiresAt, nil
}

func (s *Service) Status(ctx context.Context, account string) (subscription.Status, error) {
	rec, err := s.get(ctx, account)
	if err != nil {
		return subscription.Status{}, err
	}
	now := s.clock.Now()
	return subscription.Status{
		Account:          rec.Account,
		ExpiresAt:        rec.ExpiresAt,
		Subscribed:       rec.ActiveAt(now),
		RemainingSeconds: int64(rec.RemainingAt(now) / time.Second),
		AutoRenew:        rec.AutoRenew,
	}, nil
}

// SetAutoRenew changes the opt-in flag. Only the account itself may do so.
func (s *Service) SetAutoRenew(ctx context.Context, caller, account string, enabled bool) error {
	account, err := subscription.NormalizeAccount(account)
	if err != nil {
		return err
	}
	caller, err = subscription.NormalizeAccount(caller)
	if err != nil || caller != account {
		return fmt.Errorf("%w: %q may not change auto-renew of %q", subscription.ErrUnauthorized, caller, account)
	}

	unlock := s.locks.Account(account)
	defer unlock()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx subscription.Repository) error {
		rec, err := tx.Get(ctx, account)
		if err != nil {
			return fmt.Errorf("load record: %w", err)
		}
		rec.AutoRenew = enabled
		return tx.Set(ctx, account, rec)
	})
	if err != nil {
		return err
	}

	log.Info().Str("account", account).Bool("auto_renew", enabled).Msg("auto-renew updated")
	s.events.Emit(ctx, events.AutoRenewChanged(account, enabled))
	return nil
}

func (s *Service) GetAutoRenew(ctx context.Context, account string) (bool, error) {
	rec, err := s.get(ctx, account)
	if err != nil {
		return false, err
	}
	return rec.AutoRenew, nil
}

func (s *Service) Fee() decimal.Decimal { return s.cfg.Fee }

func (s *Service) Period() time.Duration { return s.cfg.Period }

func (s *Service) PaymentToken() string { return s.cfg.PaymentToken }

func (s *Service) Owner() string { return s.cfg.Owner }

func (s *Service) Now() time.Time { return s.clock.Now() }

// Gateway is the payment rail fees are collected through.
func (s *Service) Gateway() payment.Gateway { return s.gateway }

func (s *Service) get(ctx context.Context, account string) (subscription.Record, error) {
	account, err := subscription.NormalizeAccount(account)
	if err != nil {
		return subscription.Record{}, err
	}
	return s.repo.Get(ctx, account)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, subscription.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, subscription.ErrPaymentFailed):
		return "payment_failed"
	case errors.Is(err, subscription.ErrExpiryOverflow):
		return "expiry_overflow"
	default:
		return "error"
	}
}

type discard struct{}

func (discard) Emit(_ context.Context, e events.Event) events.Event { return e }
