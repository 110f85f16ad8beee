package match

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/reconcile/ledger"
	"github.com/robinvdvleuten/reconcile/source"
)

func date(value string) time.Time {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return t
}

func amount(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func cardSource(day, amt, id string) source.Transaction {
	return source.Transaction{
		Date:      date(day),
		Amount:    amount(amt),
		Kind:      source.KindCard,
		SourceIDs: []string{id},
	}
}

func ledgerTxn(id int64, day, amt string) ledger.Transaction {
	return ledger.Transaction{ID: id, Date: day, Amount: amount(amt)}
}

func TestBatch(t *testing.T) {
	tests := []struct {
		name      string
		sources   []source.Transaction
		txns      []ledger.Transaction
		checkFunc func(*testing.T, Result)
	}{
		{
			name:    "equal amounts one day apart match",
			sources: []source.Transaction{cardSource("2024-03-15", "-45.00", "TX1")},
			txns:    []ledger.Transaction{ledgerTxn(1, "2024-03-16", "-45.00")},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 1, len(result.Pairs))
				assert.Equal(t, int64(1), result.Pairs[0].Ledger.ID)
				assert.Equal(t, "TX1", result.Pairs[0].Source.SourceID())
				assert.Equal(t, 0, len(result.UnmatchedSources))
				assert.Equal(t, 0, len(result.UnmatchedLedger))
			},
		},
		{
			name:    "amount outside exact tolerance stays unmatched",
			sources: []source.Transaction{cardSource("2024-03-15", "-45.00", "TX1")},
			txns:    []ledger.Transaction{ledgerTxn(1, "2024-03-15", "-50.00")},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 0, len(result.Pairs))
				assert.Equal(t, 1, len(result.UnmatchedSources))
				assert.Equal(t, 1, len(result.UnmatchedLedger))
			},
		},
		{
			name:    "date outside tolerance stays unmatched",
			sources: []source.Transaction{cardSource("2024-03-15", "-45.00", "TX1")},
			txns:    []ledger.Transaction{ledgerTxn(1, "2024-03-18", "-45.00")},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 0, len(result.Pairs))
				assert.Equal(t, 1, len(result.UnmatchedSources))
			},
		},
		{
			name: "foreign tolerance absorbs conversion drift",
			sources: []source.Transaction{{
				Date:            date("2024-03-15"),
				Amount:          amount("-42.00"),
				Kind:            source.KindCard,
				ForeignCurrency: true,
				SourceIDs:       []string{"TX1"},
			}},
			txns: []ledger.Transaction{ledgerTxn(1, "2024-03-15", "-47.50")},
			checkFunc: func(t *testing.T, result Result) {
				// 11.6% off: outside exact, inside foreign.
				assert.Equal(t, 1, len(result.Pairs))
			},
		},
		{
			name:    "zero-amount ledger transaction is never a candidate",
			sources: []source.Transaction{cardSource("2024-03-15", "-45.00", "TX1")},
			txns: []ledger.Transaction{
				ledgerTxn(1, "2024-03-15", "0"),
				ledgerTxn(2, "2024-03-15", "-45.00"),
			},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 1, len(result.Pairs))
				assert.Equal(t, int64(2), result.Pairs[0].Ledger.ID)
			},
		},
		{
			name: "positive ledger amount excluded for marketplace sources",
			sources: []source.Transaction{{
				Date:      date("2024-03-15"),
				Amount:    amount("-45.00"),
				Kind:      source.KindMarketplace,
				SourceIDs: []string{"ORDER-1"},
			}},
			txns: []ledger.Transaction{ledgerTxn(1, "2024-03-15", "45.00")},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 0, len(result.Pairs))
				assert.Equal(t, 1, len(result.UnmatchedSources))
			},
		},
		{
			name:    "positive ledger amount allowed for card sources",
			sources: []source.Transaction{cardSource("2024-03-15", "45.00", "TX1")},
			txns:    []ledger.Transaction{ledgerTxn(1, "2024-03-15", "45.00")},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 1, len(result.Pairs))
			},
		},
		{
			name:    "unparseable ledger date is skipped with reason",
			sources: []source.Transaction{cardSource("2024-03-15", "-45.00", "TX1")},
			txns: []ledger.Transaction{
				ledgerTxn(1, "not-a-date", "-45.00"),
				ledgerTxn(2, "2024-03-15", "-45.00"),
			},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 1, len(result.Pairs))
				assert.Equal(t, int64(2), result.Pairs[0].Ledger.ID)
				assert.Equal(t, 1, len(result.SkippedLedger))
				assert.Equal(t, int64(1), result.SkippedLedger[0].Ledger.ID)
				assert.Contains(t, result.SkippedLedger[0].Reason, "unparseable")
				// Skipped is not the same as unmatched.
				assert.Equal(t, 0, len(result.UnmatchedLedger))
			},
		},
		{
			name: "skipped ledger transaction reported once across sources",
			sources: []source.Transaction{
				cardSource("2024-03-15", "-45.00", "TX1"),
				cardSource("2024-03-16", "-12.00", "TX2"),
			},
			txns: []ledger.Transaction{ledgerTxn(1, "garbage", "-45.00")},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 1, len(result.SkippedLedger))
			},
		},
		{
			name: "greedy first-fit consumes candidates in ledger order",
			sources: []source.Transaction{
				cardSource("2024-03-15", "-45.00", "TX1"),
				cardSource("2024-03-15", "-45.00", "TX2"),
			},
			txns: []ledger.Transaction{
				ledgerTxn(1, "2024-03-15", "-45.00"),
				ledgerTxn(2, "2024-03-16", "-45.00"),
			},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 2, len(result.Pairs))
				assert.Equal(t, int64(1), result.Pairs[0].Ledger.ID)
				assert.Equal(t, "TX1", result.Pairs[0].Source.SourceID())
				assert.Equal(t, int64(2), result.Pairs[1].Ledger.ID)
				assert.Equal(t, "TX2", result.Pairs[1].Source.SourceID())
			},
		},
		{
			name: "each ledger transaction consumed at most once",
			sources: []source.Transaction{
				cardSource("2024-03-15", "-45.00", "TX1"),
				cardSource("2024-03-15", "-45.00", "TX2"),
			},
			txns: []ledger.Transaction{ledgerTxn(1, "2024-03-15", "-45.00")},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 1, len(result.Pairs))
				assert.Equal(t, 1, len(result.UnmatchedSources))
				assert.Equal(t, "TX2", result.UnmatchedSources[0].SourceID())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Batch(tt.sources, tt.txns, DefaultTolerances())
			tt.checkFunc(t, result)
		})
	}
}

func TestBatchSplitOrders(t *testing.T) {
	splitOrder := source.Transaction{
		Date:         date("2024-03-15"),
		Amount:       amount("-19.75"),
		Kind:         source.KindMarketplace,
		SourceIDs:    []string{"ORDER-1"},
		SplitAmounts: []decimal.Decimal{amount("12.50"), amount("7.25")},
	}

	tests := []struct {
		name      string
		sources   []source.Transaction
		txns      []ledger.Transaction
		checkFunc func(*testing.T, Result)
	}{
		{
			name:    "each charge pairs with its own ledger transaction",
			sources: []source.Transaction{splitOrder},
			txns: []ledger.Transaction{
				ledgerTxn(1, "2024-03-15", "-12.50"),
				ledgerTxn(2, "2024-03-16", "-7.25"),
			},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 2, len(result.Pairs))
				assert.Equal(t, "ORDER-1", result.Pairs[0].Source.SourceID())
				assert.Equal(t, "ORDER-1", result.Pairs[1].Source.SourceID())
				assert.Equal(t, 0, len(result.UnmatchedSources))
			},
		},
		{
			name:    "order total fallback when no charge matches individually",
			sources: []source.Transaction{splitOrder},
			txns:    []ledger.Transaction{ledgerTxn(1, "2024-03-15", "-19.75")},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 1, len(result.Pairs))
				assert.Equal(t, int64(1), result.Pairs[0].Ledger.ID)
				assert.Equal(t, 0, len(result.UnmatchedSources))
			},
		},
		{
			name:    "partial charge coverage still counts as matched",
			sources: []source.Transaction{splitOrder},
			txns:    []ledger.Transaction{ledgerTxn(1, "2024-03-15", "-12.50")},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 1, len(result.Pairs))
				assert.Equal(t, 0, len(result.UnmatchedSources))
			},
		},
		{
			name:    "no candidate leaves the order unmatched as one unit",
			sources: []source.Transaction{splitOrder},
			txns:    []ledger.Transaction{ledgerTxn(1, "2024-03-15", "-99.00")},
			checkFunc: func(t *testing.T, result Result) {
				assert.Equal(t, 0, len(result.Pairs))
				assert.Equal(t, 1, len(result.UnmatchedSources))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Batch(tt.sources, tt.txns, DefaultTolerances())
			tt.checkFunc(t, result)
		})
	}
}

func TestDateDiffDays(t *testing.T) {
	a := time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC)
	b := time.Date(2024, 3, 16, 0, 1, 0, 0, time.UTC)

	// Time-of-day is ignored; calendar days count.
	assert.Equal(t, 1, dateDiffDays(a, b))
	assert.Equal(t, 1, dateDiffDays(b, a))
	assert.Equal(t, 0, dateDiffDays(a, a))
}

func TestWithinAmountTolerance(t *testing.T) {
	tol := decimal.NewFromFloat(0.01)

	assert.True(t, withinAmountTolerance(amount("45.00"), amount("45.00"), tol))
	assert.True(t, withinAmountTolerance(amount("44.60"), amount("45.00"), tol))
	assert.False(t, withinAmountTolerance(amount("44.00"), amount("45.00"), tol))

	// Deviation is relative to the ledger amount.
	assert.True(t, withinAmountTolerance(amount("100.00"), amount("101.00"), tol))
	assert.False(t, withinAmountTolerance(amount("101.10"), amount("100.00"), tol))
}
