package cli

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/reconcile/source"
	"github.com/robinvdvleuten/reconcile/workflow"
)

const dateLayout = "2006-01-02"

// renderTransaction prints the card shown above every manual-match prompt.
func renderTransaction(w io.Writer, txn source.Transaction) {
	_, _ = fmt.Fprintln(w)

	writeField(w, "Date", txn.Date.Format(dateLayout))
	writeField(w, "Amount", amountStyle.Render(formatAmount(txn.Amount)))
	if txn.Payee != "" {
		writeField(w, "Payee", txn.Payee)
	}
	writeField(w, "Kind", txn.Kind.String())
	if txn.SourceID() != "" {
		writeField(w, "Identifier", strings.Join(txn.SourceIDs, ", "))
	}
	if txn.IsSplit() {
		writeField(w, "Charges", formatSplit(txn.SplitAmounts))
	}
	if txn.ForeignCurrency {
		writeField(w, "Currency", "foreign (converted)")
	}
	writeField(w, "File", pathStyle.Render(txn.OriginFile))
}

// renderMatch prints the card shown above every confirmation prompt.
func renderMatch(w io.Writer, rec workflow.MatchRecord) {
	_, _ = fmt.Fprintln(w)

	kind := "automatic"
	if rec.Manual {
		kind = "manual"
	}
	writeField(w, "Match", kind)
	writeField(w, "Date", rec.Source.Date.Format(dateLayout))
	writeField(w, "Amount", amountStyle.Render(formatAmount(rec.Source.Amount)))
	if rec.Source.Payee != "" {
		writeField(w, "Payee", rec.Source.Payee)
	}
	if rec.LedgerID != 0 {
		writeField(w, "Ledger", fmt.Sprintf("transaction %d", rec.LedgerID))
	} else {
		writeField(w, "Ledger", "no ledger transaction (bookkeeping only)")
	}
	for _, reason := range rec.Reasons {
		writeField(w, "Why", reason)
	}
}

// renderConflict prints both sides of an identifier collision.
func renderConflict(w io.Writer, conflict workflow.Conflict) {
	_, _ = fmt.Fprintln(w)
	printWarn(w, fmt.Sprintf("identifier %s is already claimed by another match", conflict.Identifier))

	writeField(w, "Existing", describeTransaction(conflict.Existing.Source))
	writeField(w, "Candidate", describeTransaction(conflict.Candidate))
}

func describeTransaction(txn source.Transaction) string {
	payee := txn.Payee
	if payee == "" {
		payee = "(no payee)"
	}
	return fmt.Sprintf("%s  %s  %s", txn.Date.Format(dateLayout), formatAmount(txn.Amount), payee)
}

// renderStats prints the terminal summary.
func renderStats(w io.Writer, st workflow.State) {
	stats := st.Stats

	_, _ = fmt.Fprintln(w)
	printSuccess(w, "processing complete")

	writeField(w, "Ledger transactions", fmt.Sprintf("%d", stats.TotalLedgerTransactions))
	writeField(w, "Automatically matched", fmt.Sprintf("%d", stats.AutomaticallyMatched))
	writeField(w, "Manually matched", fmt.Sprintf("%d", stats.ManuallyMatched))
	writeField(w, "Skipped during confirmation", fmt.Sprintf("%d", stats.SkippedDuringConfirmation))
	writeField(w, "Remaining unmatched", fmt.Sprintf("%d", stats.RemainingUnmatched))

	if len(stats.Unmatched) > 0 {
		_, _ = fmt.Fprintln(w)
		printWarn(w, "unmatched transactions")
		for _, item := range stats.Unmatched {
			line := describeTransaction(item.Transaction)
			if item.SkippedDuringConfirmation {
				line += "  " + labelStyle.Render("(skipped during confirmation)")
			}
			_, _ = fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

// writeField prints a right-padded label and its value. Labels are padded by
// display width so wide runes line up.
func writeField(w io.Writer, label, value string) {
	const width = 28
	padded := label + strings.Repeat(" ", max(0, width-runewidth.StringWidth(label)))
	_, _ = fmt.Fprintf(w, "  %s%s\n", labelStyle.Render(padded), value)
}

func formatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func formatSplit(amounts []decimal.Decimal) string {
	parts := make([]string, len(amounts))
	for i, a := range amounts {
		parts[i] = formatAmount(a)
	}
	return strings.Join(parts, " + ")
}

// activitySearchURL links to the processor's activity search, spanning two
// weeks either side of the transaction date.
func activitySearchURL(base string, date time.Time) string {
	if base == "" {
		return ""
	}
	query := url.Values{}
	query.Set("startDate", date.AddDate(0, 0, -14).Format(dateLayout))
	query.Set("endDate", date.AddDate(0, 0, 14).Format(dateLayout))
	return base + "?" + query.Encode()
}
