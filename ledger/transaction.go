// Package ledger provides the remote budgeting service's transaction model
// and an HTTP client for fetching and updating transactions. The remote
// service is the system of record; transactions fetched here are read-only
// until a committed update is applied through the client.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a transaction held in the remote budgeting ledger.
type Transaction struct {
	ID          int64           `json:"id"`
	Payee       string          `json:"payee"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Memo        string          `json:"memo"`
	Labels      []string        `json:"labels"`
	AccountID   int64           `json:"account_id"`
	CategoryID  int64           `json:"category_id"`
	NeedsReview bool            `json:"needs_review"`
}

// ParseDate parses the transaction's date field. The remote service reports
// dates as YYYY-MM-DD; anything else is an error the caller reports rather
// than treating the transaction as a failed match.
func (t *Transaction) ParseDate() (time.Time, error) {
	return time.Parse("2006-01-02", t.Date)
}

// Account is a transaction account in the remote ledger.
type Account struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	CurrencyCode string `json:"currency_code"`
}

// User identifies the authenticated ledger user.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Window is an inclusive date range used to bound a fetch.
type Window struct {
	Start time.Time
	End   time.Time
}
