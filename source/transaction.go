// Package source loads CSV exports and normalizes their rows into
// transactions ready for reconciliation. Two schemas are recognized: a
// card-processor activity export and a marketplace order history. Each data
// row yields one Transaction; marketplace orders billed across several
// charges carry their per-charge sub-amounts on a single Transaction.
package source

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies which CSV schema a transaction was normalized from.
type Kind int

const (
	// KindCard is a row from a card-processor activity export.
	KindCard Kind = iota

	// KindMarketplace is a row from a marketplace order history. Marketplace
	// rows supply their own payee and may be billed across several charges.
	KindMarketplace
)

func (k Kind) String() string {
	switch k {
	case KindCard:
		return "card"
	case KindMarketplace:
		return "marketplace"
	default:
		return "unknown"
	}
}

// Transaction is a normalized record derived from one CSV row, awaiting
// reconciliation against the remote ledger. Transactions are created once at
// normalization and never mutated afterwards except to attach a ledger match
// and audit note.
type Transaction struct {
	// Date is the transaction date in the local reporting zone.
	Date time.Time

	// Amount is the signed amount converted to the base currency.
	Amount decimal.Decimal

	// Payee as reported by the export.
	Payee string

	// Note is the composed audit note recorded on the ledger when matched.
	Note string

	Kind Kind

	// OriginFile is the CSV file this row came from.
	OriginFile string

	// ForeignCurrency is set when the row's currency differed from the base
	// currency and the amount was converted.
	ForeignCurrency bool

	// SourceIDs holds the processor/order identifiers. A single entry for
	// normalized rows; several entries after a manual multi-order batch match.
	SourceIDs []string

	// SplitAmounts holds per-charge sub-amounts for marketplace orders billed
	// across multiple charges. Empty or single-entry for everything else.
	SplitAmounts []decimal.Decimal

	// LedgerMatchID references the ledger transaction this record was paired
	// with. Zero means unpaired.
	LedgerMatchID int64

	// ManuallyMatched reports whether the pairing was made by the operator
	// rather than the matching engine.
	ManuallyMatched bool

	Labels []string
}

// SourceID returns the primary identifier, or "" when none is known.
func (t *Transaction) SourceID() string {
	if len(t.SourceIDs) == 0 {
		return ""
	}
	return t.SourceIDs[0]
}

// IsSplit reports whether the order was billed across multiple charges.
func (t *Transaction) IsSplit() bool {
	return len(t.SplitAmounts) > 1
}

// HasOwnPayee reports whether the source kind supplies a payee, making the
// manual payee prompt unnecessary.
func (t *Transaction) HasOwnPayee() bool {
	return t.Kind == KindMarketplace && strings.TrimSpace(t.Payee) != ""
}
