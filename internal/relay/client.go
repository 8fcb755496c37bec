// Package relay is the untrusted keeper side of the renewal protocol: it
// asks the ledger API for candidates, probes them and performs renewals.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"subledger/internal/subscription"
)

// APIError is a non-2xx answer the client has no sentinel for.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ledger api: %d %s", e.Status, e.Message)
}

// Client talks to the ledger HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Candidates fetches one page of renewal candidates after the opaque cursor.
// The returned cursor is empty on the last page.
func (c *Client) Candidates(ctx context.Context, after string, limit int) ([]string, string, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if after != "" {
		q.Set("after", after)
	}
	var out struct {
		Candidates []string `json:"candidates"`
		Next       string   `json:"next"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/indexer/candidates?"+q.Encode(), nil, &out); err != nil {
		return nil, "", err
	}
	return out.Candidates, out.Next, nil
}

// Check returns eligibility and the hex perform data to hand back.
func (c *Client) Check(ctx context.Context, account string) (bool, string, error) {
	q := url.Values{"candidate": {account}}
	var out struct {
		Eligible    bool   `json:"eligible"`
		PerformData string `json:"perform_data"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/automation/check?"+q.Encode(), nil, &out); err != nil {
		return false, "", err
	}
	return out.Eligible, out.PerformData, nil
}

// Perform submits perform data and returns the new record.
func (c *Client) Perform(ctx context.Context, performData string) (subscription.Record, error) {
	var rec subscription.Record
	body := map[string]string{"perform_data": performData}
	if err := c.call(ctx, http.MethodPost, "/api/automation/perform", body, &rec); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
			err = errors.Join(subscription.ErrInvalidPerformData, apiErr)
		}
		return subscription.Record{}, err
	}
	return rec, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}

	apiErr := &APIError{Status: resp.StatusCode, Message: body.Error}
	switch resp.StatusCode {
	case http.StatusConflict:
		return errors.Join(subscription.ErrNotEligible, apiErr)
	case http.StatusPaymentRequired:
		return errors.Join(subscription.ErrPaymentFailed, apiErr)
	default:
		return apiErr
	}
}
