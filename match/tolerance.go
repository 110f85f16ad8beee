package match

import "github.com/shopspring/decimal"

// Tolerances bounds how far apart a source and ledger transaction may be and
// still pair. Constructed once at startup and treated as immutable.
type Tolerances struct {
	// Days is the maximum date deviation, in whole days, in either direction.
	Days int

	// Exact is the maximum relative amount deviation for same-currency
	// transactions (0.01 = 1%).
	Exact decimal.Decimal

	// Foreign is the maximum relative amount deviation for foreign-currency
	// transactions. Intentionally much wider than Exact to absorb FX-rate
	// and rounding drift.
	Foreign decimal.Decimal
}

// DefaultTolerances returns the tolerances used when none are configured:
// 2 days, 1% exact, 20% foreign.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Days:    2,
		Exact:   decimal.NewFromFloat(0.01),
		Foreign: decimal.NewFromFloat(0.2),
	}
}

// amountTolerance selects the relative tolerance applicable to a source
// transaction.
func (t Tolerances) amountTolerance(foreign bool) decimal.Decimal {
	if foreign {
		return t.Foreign
	}
	return t.Exact
}
