// Package service lets the ledger owner withdraw collected fees.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"subledger/internal/events"
	"subledger/internal/metrics"
	"subledger/internal/payment"
	"subledger/internal/subscription"
)

// AccessControl decides who may move custody funds.
type AccessControl interface {
	IsOwner(identity string) bool
}

// StaticOwner grants custody rights to one identity fixed at startup.
type StaticOwner string

func (o StaticOwner) IsOwner(identity string) bool {
	return identity != "" && identity == string(o)
}

type Emitter interface {
	Emit(ctx context.Context, e events.Event) events.Event
}

type Service struct {
	acl     AccessControl
	gateway payment.Gateway
	locks   *subscription.Locks
	events  Emitter
}

// NewService wires the controller. locks must be shared with the
// subscription engine so drains never interleave with fee collection.
func NewService(acl AccessControl, gateway payment.Gateway, locks *subscription.Locks, emitter Emitter) *Service {
	if locks == nil {
		locks = subscription.NewLocks()
	}
	return &Service{acl: acl, gateway: gateway, locks: locks, events: emitter}
}

func (s *Service) Balance(ctx context.Context) (decimal.Decimal, error) {
	return s.gateway.CustodyBalance(ctx)
}

// Withdraw pushes amount from custody to destination.
func (s *Service) Withdraw(ctx context.Context, caller, destination string, amount decimal.Decimal) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if !amount.IsPositive() || !amount.IsInteger() {
		return fmt.Errorf("%w: %s", subscription.ErrInvalidAmount, amount)
	}
	destination, err := s.destination(destination)
	if err != nil {
		return err
	}

	unlock := s.locks.Custody()
	defer unlock()

	return s.push(ctx, destination, amount)
}

// WithdrawAll drains the whole custody balance to destination and returns
// the amount moved. An empty custody is a no-op.
func (s *Service) WithdrawAll(ctx context.Context, caller, destination string) (decimal.Decimal, error) {
	if err := s.authorize(caller); err != nil {
		return decimal.Zero, err
	}
	destination, err := s.destination(destination)
	if err != nil {
		return decimal.Zero, err
	}

	unlock := s.locks.Custody()
	defer unlock()

	balance, err := s.gateway.CustodyBalance(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read custody balance: %w", err)
	}
	if !balance.IsPositive() {
		metrics.WithdrawalsTotal.WithLabelValues("empty").Inc()
		return decimal.Zero, nil
	}
	if err := s.transfer(ctx, destination, balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (s *Service) authorize(caller string) error {
	if !s.acl.IsOwner(caller) {
		metrics.WithdrawalsTotal.WithLabelValues("unauthorized").Inc()
		log.Warn().Str("caller", caller).Msg("custody withdrawal by non-owner refused")
		return fmt.Errorf("%w: %q is not the owner", subscription.ErrUnauthorized, caller)
	}
	return nil
}

// destination refuses custody itself: a push there moves nothing out.
func (s *Service) destination(account string) (string, error) {
	account, err := subscription.NormalizeAccount(account)
	if err != nil {
		return "", err
	}
	if account == s.gateway.CustodyAccount() {
		return "", fmt.Errorf("%w: %q is the custody account", subscription.ErrInvalidAccount, account)
	}
	return account, nil
}

func (s *Service) push(ctx context.Context, destination string, amount decimal.Decimal) error {
	balance, err := s.gateway.CustodyBalance(ctx)
	if err != nil {
		return fmt.Errorf("read custody balance: %w", err)
	}
	if amount.GreaterThan(balance) {
		metrics.WithdrawalsTotal.WithLabelValues("insufficient").Inc()
		return fmt.Errorf("%w: requested %s, holding %s", subscription.ErrInsufficientCustody, amount, balance)
	}
	return s.transfer(ctx, destination, amount)
}

func (s *Service) transfer(ctx context.Context, destination string, amount decimal.Decimal) error {
	key := "withdrawal-" + uuid.NewString()
	if err := s.gateway.Push(payment.WithIdempotencyKey(ctx, key), destination, amount); err != nil {
		metrics.WithdrawalsTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("destination", destination).Str("idempotency_key", key).Msg("custody withdrawal failed")
		return fmt.Errorf("%w: %w", subscription.ErrPaymentFailed, err)
	}

	metrics.WithdrawalsTotal.WithLabelValues("ok").Inc()
	log.Info().Str("destination", destination).Str("amount", amount.String()).Str("idempotency_key", key).Msg("custody withdrawn")
	if s.events != nil {
		s.events.Emit(ctx, events.Withdrawn(destination, amount))
	}
	return nil
}
