package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// HTTPGateway talks to a remote token-ledger service:
//
//	POST /v1/tokens/{token}/pull            {"from","to","amount"}
//	POST /v1/tokens/{token}/push            {"from","to","amount"}
//	GET  /v1/tokens/{token}/accounts/{id}?spender={custody}
//
// Failed transfers answer with {"code": "..."}. Transfers carry an
// Idempotency-Key header taken from the context, or a fresh one.
type HTTPGateway struct {
	baseURL string
	token   string
	custody string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

type transferRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type accountResponse struct {
	Balance   decimal.Decimal `json:"balance"`
	Allowance decimal.Decimal `json:"allowance"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHTTPGateway(baseURL, token, custodyAccount string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	g := &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		custody: custodyAccount,
		client:  client,
	}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payment-rail",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// declined transfers are answers, not outages
		IsSuccessful: func(err error) bool {
			return err == nil || isDecline(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("payment rail breaker state changed")
		},
	})
	return g
}

func (g *HTTPGateway) Pull(ctx context.Context, from string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return g.transfer(ctx, "pull", transferRequest{From: from, To: g.custody, Amount: amount})
}

func (g *HTTPGateway) Push(ctx context.Context, to string, amount decimal.Decimal) error {
	if !validAmount(amount) {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return g.transfer(ctx, "push", transferRequest{From: g.custody, To: to, Amount: amount})
}

func (g *HTTPGateway) CustodyAccount() string { return g.custody }

func (g *HTTPGateway) CanPull(ctx context.Context, from string, amount decimal.Decimal) (bool, error) {
	acct, err := g.account(ctx, from)
	if err != nil {
		return false, err
	}
	return !acct.Allowance.LessThan(amount) && !acct.Balance.LessThan(amount), nil
}

func (g *HTTPGateway) CustodyBalance(ctx context.Context) (decimal.Decimal, error) {
	acct, err := g.account(ctx, g.custody)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

func (g *HTTPGateway) transfer(ctx context.Context, op string, body transferRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", op, err)
	}
	endpoint := fmt.Sprintf("%s/v1/tokens/%s/%s", g.baseURL, url.PathEscape(g.token), op)
	key, ok := IdempotencyKeyFrom(ctx)
	if !ok {
		key = uuid.NewString()
	}

	_, err = g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
		return nil, g.do(req, nil)
	})
	if errors.Is(err, ErrRailUnavailable) {
		log.Warn().Err(err).Str("op", op).Str("idempotency_key", key).Msg("transfer outcome unknown")
	}
	return g.unwrapBreaker(err)
}

func (g *HTTPGateway) account(ctx context.Context, account string) (*accountResponse, error) {
	endpoint := fmt.Sprintf("%s/v1/tokens/%s/accounts/%s?spender=%s",
		g.baseURL, url.PathEscape(g.token), url.PathEscape(account), url.QueryEscape(g.custody))

	var out accountResponse
	_, err := g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		return nil, g.do(req, &out)
	})
	if err != nil {
		return nil, g.unwrapBreaker(err)
	}
	return &out, nil
}

func (g *HTTPGateway) do(req *http.Request, out any) error {
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRailUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	var e errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
	switch e.Code {
	case "insufficient_balance":
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, e.Message)
	case "insufficient_allowance":
		return fmt.Errorf("%w: %s", ErrInsufficientAllowance, e.Message)
	case "transfer_rejected":
		return fmt.Errorf("%w: %s", ErrTransferRejected, e.Message)
	}
	return fmt.Errorf("%w: unexpected status code %d", ErrRailUnavailable, resp.StatusCode)
}

func (g *HTTPGateway) unwrapBreaker(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrRailUnavailable, err)
	}
	return err
}

func isDecline(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientAllowance) ||
		errors.Is(err, ErrTransferRejected)
}
