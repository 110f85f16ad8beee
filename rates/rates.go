// Package rates fetches currency conversion rates from a rates API. Rates
// are looked up once per run; a currency observed in the input without a rate
// is a fatal input error reported by the normalizer, not here.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// Table maps a currency code to its rate against the base currency (units of
// foreign currency per one unit of base).
type Table map[string]decimal.Decimal

// Config holds the immutable rates client configuration.
type Config struct {
	// BaseURL is the root of the rates API.
	BaseURL string

	// APIKey authenticates every request.
	APIKey string
}

// Client fetches rate tables over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a rates API client.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:  cfg,
		http: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is returned when the rate table cannot be fetched. It is fatal to
// the CSV processing stage.
type Error struct {
	Base   string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("rate fetch for base %s failed with status %d", e.Base, e.Status)
	}
	return fmt.Sprintf("rate fetch for base %s failed: %v", e.Base, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Rates fetches the rate table for the given base currency.
func (c *Client) Rates(ctx context.Context, base string) (Table, error) {
	query := url.Values{}
	query.Set("api_key", c.cfg.APIKey)
	query.Set("from", base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/rates?%s", c.cfg.BaseURL, query.Encode()), nil)
	if err != nil {
		return nil, &Error{Base: base, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Base: base, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Base: base, Status: resp.StatusCode}
	}

	var payload struct {
		Rates map[string]decimal.Decimal `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &Error{Base: base, Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(payload.Rates) == 0 {
		return nil, &Error{Base: base, Err: fmt.Errorf("empty rate table")}
	}

	return payload.Rates, nil
}
