package workflow

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"golang.org/x/exp/slices"

	"github.com/robinvdvleuten/reconcile/source"
)

// Reduce folds one event into the state and returns the successor state. It
// performs no I/O; every collaborator result and operator response arrives
// as an event.
func Reduce(st State, ev Event) State {
	switch ev := ev.(type) {
	case BeginProcessingInputs:
		st.Step = StepProcessingInputs

	case CSVProcessingStarted:
		st.Step = StepProcessingCSV
		st.Err = nil
		st.Sources = nil
		st.CSVFiles = nil
		st.RowsPerFile = nil

	case CSVProcessed:
		st.Sources = ev.Sources
		st.CSVFiles, st.RowsPerFile = summarizeFiles(ev.Sources)
		if hasMarketplace(ev.Sources) {
			st.Step = StepSelectingAccount
		} else {
			st.Step = StepFetchingLedger
		}

	case CSVFailed:
		st.Step = StepCSVError
		st.Err = ev.Err

	case AccountsLoaded:
		st.Accounts = ev.Accounts

	case AccountSelected:
		st.AccountID = ev.AccountID
		st.Step = StepFetchingLedger

	case FetchStarted:
		st.Window = ev.Window

	case LedgerFetched:
		st.Ledger = ev.Transactions
		st.Step = StepMatching

	case FetchFailed:
		st.Step = StepFetchError
		st.Err = ev.Err

	case MatchingFinished:
		st = reduceMatchingFinished(st, ev)

	case MatchingFailed:
		st.Step = StepMatchError
		st.Err = ev.Err

	case OperatorNoMatch:
		st.Current++
		st = checkInteractiveDone(st)

	case OperatorFoundMatch:
		st.Prompt = PromptIdentifier

	case IdentifiersEntered:
		st = reduceIdentifiers(st, ev.Identifiers)

	case PayeeEntered:
		st.PendingPayee = strings.TrimSpace(ev.Payee)
		st = applyManualMatch(st)

	case ConflictResolved:
		st = reduceConflictResolved(st, ev.KeepExisting)

	case BeginConfirmation:
		if len(st.Matches) == 0 {
			st = finalize(st)
		} else {
			st.Step = StepConfirmingMatches
			st.ConfirmIndex = 0
		}

	case MatchAccepted:
		st.Confirmed = append(slices.Clone(st.Confirmed), st.Matches[st.ConfirmIndex])
		st = advanceConfirmation(st)

	case MatchRejected:
		st.Rejected = append(slices.Clone(st.Rejected), st.Matches[st.ConfirmIndex])
		st = advanceConfirmation(st)

	case UpdateFailed:
		st.UpdateFailures = append(slices.Clone(st.UpdateFailures), ev.Err)
		st = advanceConfirmation(st)
	}

	return st
}

func reduceMatchingFinished(st State, ev MatchingFinished) State {
	now := time.Now()
	st.Matches = nil
	for _, pair := range ev.Result.Pairs {
		src := pair.Source
		src.LedgerMatchID = pair.Ledger.ID
		st.Matches = append(st.Matches, MatchRecord{
			ID:        uuid.New(),
			Source:    src,
			LedgerID:  pair.Ledger.ID,
			CreatedAt: now,
			Reasons:   pair.Reasons,
		})
	}
	st.SkippedLedger = ev.Result.SkippedLedger

	queue := slices.Clone(ev.Result.UnmatchedSources)
	if hasMarketplace(st.Sources) {
		// Unconsumed ledger charges become find-a-source items: the operator
		// is asked which order covers each charge.
		for _, txn := range ev.Result.UnmatchedLedger {
			date, err := txn.ParseDate()
			if err != nil {
				date = time.Time{}
			}
			queue = append(queue, source.Transaction{
				Date:          date,
				Amount:        txn.Amount,
				Payee:         txn.Payee,
				Note:          "Ledger charge awaiting a matching order",
				Kind:          source.KindMarketplace,
				LedgerMatchID: txn.ID,
			})
		}
	}

	st.Unmatched = queue
	st.Current = 0
	st.Prompt = PromptFoundMatch
	st.Step = StepInteractiveMatching
	return checkInteractiveDone(st)
}

func reduceIdentifiers(st State, raw []string) State {
	var ids []string
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		st.Err = &EmptyIdentifierError{}
		return st
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			// Recoverable: stay in identifier entry, workflow position kept.
			st.Err = &DuplicateIdentifierError{Identifier: id}
			return st
		}
		seen[id] = true
	}

	cur := st.CurrentUnmatched()

	// Ledger-derived items carry no identifier of their own; the entered
	// identifiers bind the charge to loaded source transactions and must
	// exist among them.
	if cur != nil && len(cur.SourceIDs) == 0 {
		for _, id := range ids {
			if !knownSourceID(st.Sources, id) {
				st.Err = &UnknownIdentifierError{Identifier: id}
				return st
			}
		}
	}

	st.Err = nil
	st.PendingIdentifiers = ids

	if cur != nil && cur.HasOwnPayee() {
		return applyManualMatch(st)
	}
	st.Prompt = PromptPayee
	return st
}

// applyManualMatch checks the pending identifiers against every live match
// record. A collision pauses the workflow on conflict resolution; otherwise
// the manual record is committed.
func applyManualMatch(st State) State {
	cur := st.CurrentUnmatched()
	if cur == nil {
		return st
	}

	for _, id := range st.PendingIdentifiers {
		for _, rec := range st.LiveMatches() {
			if rec.ClaimsIdentifier(id) {
				st.Conflict = &Conflict{Identifier: id, Existing: rec, Candidate: *cur}
				st.Prompt = PromptConflict
				return st
			}
		}
	}

	st = commitManualMatch(st, *cur)
	st.Unmatched = slices.Delete(slices.Clone(st.Unmatched), st.Current, st.Current+1)
	return clearPending(st)
}

// commitManualMatch creates the manual record for the given transaction from
// the pending operator-supplied fields. Queue bookkeeping is the caller's.
func commitManualMatch(st State, txn source.Transaction) State {
	txn.SourceIDs = st.PendingIdentifiers
	if st.PendingPayee != "" {
		txn.Payee = st.PendingPayee
	}
	txn.ManuallyMatched = true

	st.Matches = append(slices.Clone(st.Matches), MatchRecord{
		ID:        uuid.New(),
		Source:    txn,
		LedgerID:  txn.LedgerMatchID,
		Manual:    true,
		CreatedAt: time.Now(),
		Reasons:   []string{"manually matched by operator"},
	})
	return st
}

func reduceConflictResolved(st State, keepExisting bool) State {
	if st.Conflict == nil {
		return st
	}
	conflict := *st.Conflict
	st.Conflict = nil

	if keepExisting {
		// The existing record is untouched; the candidate stays unmatched
		// and the loop moves on.
		st.Current++
		return clearPending(st)
	}

	// Replace: destroy the existing record, re-queue its transaction at the
	// tail, commit the new manual record. Count-neutral by construction.
	st.Matches = slices.Clone(st.Matches)
	for i, rec := range st.Matches {
		if rec.ID == conflict.Existing.ID {
			st.Matches = slices.Delete(st.Matches, i, i+1)
			break
		}
	}

	requeued := conflict.Existing.Source
	requeued.ManuallyMatched = false

	st = commitManualMatch(st, conflict.Candidate)
	st.Unmatched = slices.Delete(slices.Clone(st.Unmatched), st.Current, st.Current+1)
	st.Unmatched = append(st.Unmatched, requeued)
	return clearPending(st)
}

func clearPending(st State) State {
	st.PendingIdentifiers = nil
	st.PendingPayee = ""
	st.Err = nil
	st.Prompt = PromptFoundMatch
	return checkInteractiveDone(st)
}

// checkInteractiveDone exits the interactive loop once the pointer passes
// the end of the queue.
func checkInteractiveDone(st State) State {
	if st.Current > len(st.Unmatched) {
		st.Current = len(st.Unmatched)
	}
	if st.Step == StepInteractiveMatching || st.Step == StepMatching {
		if st.Current >= len(st.Unmatched) {
			st.Step = StepInteractiveMatchingComplete
			st.Prompt = PromptNone
		}
	}
	return st
}

func advanceConfirmation(st State) State {
	st.ConfirmIndex++
	if st.ConfirmIndex >= len(st.Matches) {
		st = finalize(st)
	}
	return st
}

// finalize computes the terminal aggregation. Every ledger transaction
// considered unmatched plus every confirmation-stage transaction is
// accounted for across the four counters.
func finalize(st State) State {
	stats := Stats{
		TotalLedgerTransactions:   len(st.Ledger),
		SkippedDuringConfirmation: len(st.Rejected),
	}
	for _, rec := range st.Confirmed {
		if rec.Manual {
			stats.ManuallyMatched++
		} else {
			stats.AutomaticallyMatched++
		}
	}

	for _, txn := range st.Unmatched {
		stats.Unmatched = append(stats.Unmatched, UnmatchedItem{Transaction: txn})
	}
	for _, rec := range st.Rejected {
		stats.Unmatched = append(stats.Unmatched, UnmatchedItem{
			Transaction:               rec.Source,
			SkippedDuringConfirmation: true,
		})
	}
	stats.RemainingUnmatched = len(stats.Unmatched)

	st.Stats = &stats
	st.Step = StepProcessingComplete
	st.Prompt = PromptNone
	return st
}

func summarizeFiles(txns []source.Transaction) ([]string, map[string]int) {
	counts := make(map[string]int)
	var files []string
	for _, txn := range txns {
		if txn.OriginFile == "" {
			continue
		}
		if _, ok := counts[txn.OriginFile]; !ok {
			files = append(files, txn.OriginFile)
		}
		counts[txn.OriginFile]++
	}
	return files, counts
}

func knownSourceID(txns []source.Transaction, id string) bool {
	for _, txn := range txns {
		for _, existing := range txn.SourceIDs {
			if existing == id {
				return true
			}
		}
	}
	return false
}

func hasMarketplace(txns []source.Transaction) bool {
	return slices.IndexFunc(txns, func(t source.Transaction) bool {
		return t.Kind == source.KindMarketplace
	}) >= 0
}
