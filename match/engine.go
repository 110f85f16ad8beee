// Package match pairs normalized source transactions against ledger
// transactions using date and amount tolerance rules. Assignment is greedy
// first-fit in source order: each source consumes the first not-yet-consumed
// candidate, so the outcome depends on input order when several sources
// compete for overlapping candidates. That is deliberate; the engine does not
// attempt a globally optimal pairing.
package match

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/reconcile/ledger"
	"github.com/robinvdvleuten/reconcile/source"
)

// Pair is a proposed pairing of one source transaction with one ledger
// transaction. A split order produces several pairs sharing the same source.
type Pair struct {
	Source source.Transaction
	Ledger ledger.Transaction

	// Reasons explains the pairing in human-readable terms (date delta,
	// amount delta).
	Reasons []string
}

// Skipped is a ledger transaction the engine could not evaluate, with the
// reason. Skipped transactions are reported, never treated as a match
// failure of any source.
type Skipped struct {
	Ledger ledger.Transaction
	Reason string
}

// Result partitions a batch into matched and unmatched.
type Result struct {
	Pairs            []Pair
	UnmatchedSources []source.Transaction

	// UnmatchedLedger holds ledger transactions never consumed by a pairing.
	// The workflow may surface these as find-a-source items.
	UnmatchedLedger []ledger.Transaction

	SkippedLedger []Skipped
}

// candidate is a ledger transaction passing the tolerance rules for one
// source, tracked only during search.
type candidate struct {
	txn     ledger.Transaction
	reasons []string
}

// Batch partitions sources against ledger transactions. It is a pure
// function: no side effects, deterministic given input order.
func Batch(sources []source.Transaction, txns []ledger.Transaction, tol Tolerances) Result {
	var result Result
	consumed := make(map[int64]bool)
	skippedIDs := make(map[int64]bool)

	for _, src := range sources {
		candidates := findCandidates(src, txns, tol, &result, skippedIDs)

		if src.IsSplit() {
			matchSplitOrder(src, candidates, tol, consumed, &result)
			continue
		}

		matched := false
		for _, cand := range candidates {
			if consumed[cand.txn.ID] {
				continue
			}
			consumed[cand.txn.ID] = true
			result.Pairs = append(result.Pairs, Pair{Source: src, Ledger: cand.txn, Reasons: cand.reasons})
			matched = true
			break
		}
		if !matched {
			result.UnmatchedSources = append(result.UnmatchedSources, src)
		}
	}

	for _, txn := range txns {
		if !consumed[txn.ID] && !skippedIDs[txn.ID] {
			result.UnmatchedLedger = append(result.UnmatchedLedger, txn)
		}
	}

	return result
}

// matchSplitOrder pairs a multi-charge order. Each charge sub-amount is
// matched independently against a distinct unconsumed candidate; when no
// sub-amount finds one, the order total is matched against a single
// transaction instead. An order is matched or unmatched as one unit.
func matchSplitOrder(src source.Transaction, candidates []candidate, tol Tolerances, consumed map[int64]bool, result *Result) {
	amountTol := tol.amountTolerance(src.ForeignCurrency)
	splitMatched := make(map[int]bool)
	var pairs []Pair

	for _, cand := range candidates {
		if consumed[cand.txn.ID] {
			continue
		}
		ledgerAbs := cand.txn.Amount.Abs()

		for i, split := range src.SplitAmounts {
			if splitMatched[i] {
				continue
			}
			if !withinAmountTolerance(split.Abs(), ledgerAbs, amountTol) {
				continue
			}
			splitMatched[i] = true
			consumed[cand.txn.ID] = true
			reasons := append(cand.reasons, fmt.Sprintf("amount matches charge %s of split order", split.Abs().StringFixed(2)))
			pairs = append(pairs, Pair{Source: src, Ledger: cand.txn, Reasons: reasons})
			break
		}
	}

	if len(pairs) > 0 {
		result.Pairs = append(result.Pairs, pairs...)
		return
	}

	// No charge matched individually; fall back to the order total against
	// one transaction.
	srcAbs := src.Amount.Abs()
	for _, cand := range candidates {
		if consumed[cand.txn.ID] {
			continue
		}
		if !withinAmountTolerance(srcAbs, cand.txn.Amount.Abs(), amountTol) {
			continue
		}
		consumed[cand.txn.ID] = true
		reasons := append(cand.reasons, fmt.Sprintf("amount matches order total %s", srcAbs.StringFixed(2)))
		result.Pairs = append(result.Pairs, Pair{Source: src, Ledger: cand.txn, Reasons: reasons})
		return
	}

	result.UnmatchedSources = append(result.UnmatchedSources, src)
}

// findCandidates collects ledger transactions satisfying the tolerance rules
// for one source, in ledger input order.
func findCandidates(src source.Transaction, txns []ledger.Transaction, tol Tolerances, result *Result, skippedIDs map[int64]bool) []candidate {
	var candidates []candidate

	for _, txn := range txns {
		// Income and reimbursements can never pair with an expense-type
		// order.
		if src.Kind == source.KindMarketplace && txn.Amount.IsPositive() {
			continue
		}
		// A zero amount can never be a candidate; the relative amount rule
		// divides by it.
		if txn.Amount.IsZero() {
			continue
		}

		date, err := txn.ParseDate()
		if err != nil {
			if !skippedIDs[txn.ID] {
				skippedIDs[txn.ID] = true
				result.SkippedLedger = append(result.SkippedLedger, Skipped{
					Ledger: txn,
					Reason: fmt.Sprintf("unparseable ledger date %q", txn.Date),
				})
			}
			continue
		}

		daysDiff := dateDiffDays(src.Date, date)
		if daysDiff > tol.Days {
			continue
		}

		var amountReason string
		ledgerAbs := txn.Amount.Abs()
		amountTol := tol.amountTolerance(src.ForeignCurrency)

		if src.IsSplit() {
			// Any single charge or the order total qualifies the candidate;
			// the assignment phase decides which charge consumes it.
			ok := withinAmountTolerance(src.Amount.Abs(), ledgerAbs, amountTol)
			for _, split := range src.SplitAmounts {
				if withinAmountTolerance(split.Abs(), ledgerAbs, amountTol) {
					ok = true
					break
				}
			}
			if !ok {
				continue
			}
			amountReason = "amount within split-order tolerance"
		} else {
			if !withinAmountTolerance(src.Amount.Abs(), ledgerAbs, amountTol) {
				continue
			}
			diff := relativeDiff(src.Amount.Abs(), ledgerAbs)
			amountReason = fmt.Sprintf("amount within %s%% tolerance", diff.Mul(decimal.NewFromInt(100)).StringFixed(2))
		}

		candidates = append(candidates, candidate{
			txn: txn,
			reasons: []string{
				fmt.Sprintf("date within %d day(s)", daysDiff),
				amountReason,
			},
		})
	}

	return candidates
}

// withinAmountTolerance reports whether |ledgerAbs - srcAbs| / ledgerAbs is
// inside the relative tolerance. ledgerAbs must be non-zero.
func withinAmountTolerance(srcAbs, ledgerAbs, tol decimal.Decimal) bool {
	return relativeDiff(srcAbs, ledgerAbs).LessThanOrEqual(tol)
}

func relativeDiff(srcAbs, ledgerAbs decimal.Decimal) decimal.Decimal {
	return ledgerAbs.Sub(srcAbs).Abs().Div(ledgerAbs)
}

// dateDiffDays returns the absolute whole-day difference between two dates,
// ignoring time-of-day.
func dateDiffDays(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	diff := ad.Sub(bd)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}
