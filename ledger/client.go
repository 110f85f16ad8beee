package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/exp/slices"
)

// MatchedLabel is appended to every updated transaction so a later run can
// recognize (and skip) transactions this tool already reconciled.
const MatchedLabel = "automatched"

// Config holds the immutable client configuration, constructed once at
// startup.
type Config struct {
	// BaseURL is the root of the ledger's REST API, without trailing slash.
	BaseURL string

	// APIKey authenticates every request.
	APIKey string
}

// Client talks to the remote budgeting ledger's REST API.
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

// NewClient creates a ledger API client.
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

// CurrentUser fetches the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, "user", "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Accounts fetches the user's transaction accounts.
func (c *Client) Accounts(ctx context.Context, userID int64) ([]Account, error) {
	var accounts []Account
	path := fmt.Sprintf("/users/%d/transaction_accounts", userID)
	if err := c.get(ctx, "accounts", path, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// FetchParams bounds a transaction fetch.
type FetchParams struct {
	Window Window

	// AccountID scopes the fetch to one transaction account; zero searches
	// all accounts.
	AccountID int64

	// Search is matched against transaction payees server-side and again
	// client-side (the remote search also hits memos).
	Search string

	// PerPage caps the page size. Defaults to 1000.
	PerPage int
}

// Transactions fetches uncategorised transactions inside the window and
// filters them down to candidates this tool has not touched yet: payee
// matching the search text, no memo, no labels.
func (c *Client) Transactions(ctx context.Context, userID int64, params FetchParams) ([]Transaction, error) {
	perPage := params.PerPage
	if perPage == 0 {
		perPage = 1000
	}

	query := url.Values{}
	query.Set("start_date", params.Window.Start.Format("2006-01-02"))
	query.Set("end_date", params.Window.End.Format("2006-01-02"))
	query.Set("uncategorised", "1")
	query.Set("per_page", fmt.Sprintf("%d", perPage))
	if params.Search != "" {
		query.Set("search", params.Search)
	}

	path := fmt.Sprintf("/users/%d/transactions", userID)
	if params.AccountID != 0 {
		path = fmt.Sprintf("/transaction_accounts/%d/transactions", params.AccountID)
	}

	var raw []Transaction
	if err := c.get(ctx, "transactions", path, query, &raw); err != nil {
		return nil, err
	}

	search := strings.ToLower(params.Search)
	filtered := raw[:0]
	for _, txn := range raw {
		if search != "" && !strings.Contains(strings.ToLower(txn.Payee), search) {
			continue
		}
		if strings.TrimSpace(txn.Memo) != "" || len(txn.Labels) > 0 {
			continue
		}
		filtered = append(filtered, txn)
	}

	return filtered, nil
}

// Update carries the fields written back to a matched ledger transaction.
type Update struct {
	// Payee replaces the transaction's payee when non-empty.
	Payee string

	// Memo becomes the transaction's memo (the audit note).
	Memo string

	// Labels are attached to the transaction. MatchedLabel is appended when
	// absent.
	Labels []string
}

// UpdateTransaction applies a confirmed match to the remote ledger.
// Authentication failures come back as *AuthenticationError and abort the
// run; any other failure is an *UpdateError the caller logs and skips.
func (c *Client) UpdateTransaction(ctx context.Context, id int64, update Update) error {
	labels := update.Labels
	if !slices.Contains(labels, MatchedLabel) {
		labels = append(slices.Clone(labels), MatchedLabel)
	}

	body := map[string]any{
		"memo":   update.Memo,
		"labels": strings.Join(labels, ","),
	}
	if update.Payee != "" {
		body["payee"] = update.Payee
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return &UpdateError{TransactionID: id, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		fmt.Sprintf("%s/transactions/%d", c.cfg.BaseURL, id), bytes.NewReader(payload))
	if err != nil {
		return &UpdateError{TransactionID: id, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &UpdateError{TransactionID: id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthenticationError{Status: resp.StatusCode}
	}
	if resp.StatusCode >= 300 {
		return &UpdateError{TransactionID: id, Status: resp.StatusCode}
	}

	return nil
}

// get performs a GET request and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	addr := c.cfg.BaseURL + path
	if len(query) > 0 {
		addr += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &FetchError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthenticationError{Status: resp.StatusCode}
	}
	if resp.StatusCode >= 300 {
		return &FetchError{Op: op, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}

	return nil
}
