package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// TokenLedger is an in-process fungible token: balances, allowances granted
// to the custody account, and destinations that refuse transfers. It stands
// in for the external ledger in tests and local runs.
type TokenLedger struct {
	mu         sync.Mutex
	symbol     string
	custody    string
	balances   map[string]decimal.Decimal
	allowances map[string]decimal.Decimal
	rejecting  map[string]bool
}

func NewTokenLedger(symbol, custodyAccount string) *TokenLedger {
	return &TokenLedger{
		symbol:     symbol,
		custody:    custodyAccount,
		balances:   make(map[string]decimal.Decimal),
		allowances: make(map[string]decimal.Decimal),
		rejecting:  make(map[string]bool),
	}
}

func (l *TokenLedger) Symbol() string { return l.symbol }

func (l *TokenLedger) CustodyAccount() string { return l.custody }

func (l *TokenLedger) Mint(account string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = l.balances[account].Add(amount)
	return nil
}

// Approve sets how much the custody account may pull from owner.
func (l *TokenLedger) Approve(owner string, amount decimal.Decimal) error {
	if amount.IsNegative() || !amount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[owner] = amount
	return nil
}

// RejectTransfers makes pushes to account fail, like a contract without a
// token receiver hook.
func (l *TokenLedger) RejectTransfers(account string, reject bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejecting[account] = reject
}

func (l *TokenLedger) BalanceOf(account string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

func (l *TokenLedger) Allowance(owner string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[owner]
}

func (l *TokenLedger) Pull(ctx context.Context, from string, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validAmount(amount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowances[from].LessThan(amount) {
		return fmt.Errorf("%w: %s allowed %s, needs %s", ErrInsufficientAllowance, from, l.allowances[from], amount)
	}
	if l.balances[from].LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, l.balances[from], amount)
	}

	l.allowances[from] = l.allowances[from].Sub(amount)
	l.balances[from] = l.balances[from].Sub(amount)
	l.balances[l.custody] = l.balances[l.custody].Add(amount)
	return nil
}

func (l *TokenLedger) Push(ctx context.Context, to string, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validAmount(amount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rejecting[to] {
		return fmt.Errorf("%w: %s", ErrTransferRejected, to)
	}
	if l.balances[l.custody].LessThan(amount) {
		return fmt.Errorf("%w: custody holds %s, needs %s", ErrInsufficientBalance, l.balances[l.custody], amount)
	}

	l.balances[l.custody] = l.balances[l.custody].Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}

func (l *TokenLedger) CanPull(ctx context.Context, from string, amount decimal.Decimal) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.allowances[from].LessThan(amount) && !l.balances[from].LessThan(amount), nil
}

func (l *TokenLedger) CustodyBalance(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	return l.BalanceOf(l.custody), nil
}
