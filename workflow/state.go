// Package workflow drives the reconciliation pipeline as an explicit finite
// state machine: a pure reducer folds dispatched events into state, and a
// driver runs one post-transition side-effect hook per step, each producing
// the next event(s). Collaborator calls (CSV load, rate fetch, ledger fetch,
// ledger update, operator prompts) happen only inside hooks, one at a time,
// so audit ordering is deterministic and the remote API sees natural
// backpressure.
package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/robinvdvleuten/reconcile/ledger"
	"github.com/robinvdvleuten/reconcile/match"
	"github.com/robinvdvleuten/reconcile/source"
)

// Step is the workflow's current stage.
type Step int

const (
	StepInitialising Step = iota
	StepProcessingInputs
	StepProcessingCSV
	StepCSVError
	StepSelectingAccount
	StepFetchingLedger
	StepFetchError
	StepMatching
	StepMatchError
	StepInteractiveMatching
	StepInteractiveMatchingComplete
	StepConfirmingMatches
	StepProcessingComplete
)

func (s Step) String() string {
	switch s {
	case StepInitialising:
		return "initialising"
	case StepProcessingInputs:
		return "processing inputs"
	case StepProcessingCSV:
		return "processing CSV files"
	case StepCSVError:
		return "CSV processing failed"
	case StepSelectingAccount:
		return "selecting account"
	case StepFetchingLedger:
		return "fetching ledger transactions"
	case StepFetchError:
		return "ledger fetch failed"
	case StepMatching:
		return "matching transactions"
	case StepMatchError:
		return "matching failed"
	case StepInteractiveMatching:
		return "interactive matching"
	case StepInteractiveMatchingComplete:
		return "interactive matching complete"
	case StepConfirmingMatches:
		return "confirming matches"
	case StepProcessingComplete:
		return "processing complete"
	default:
		return "unknown"
	}
}

// Terminal reports whether the workflow halts at this step. Error steps are
// terminal for their stage: no auto-retry, accumulated state preserved for
// diagnostics.
func (s Step) Terminal() bool {
	switch s {
	case StepCSVError, StepFetchError, StepMatchError, StepProcessingComplete:
		return true
	default:
		return false
	}
}

// Prompt is the interactive sub-state: which operator response the workflow
// is suspended on.
type Prompt int

const (
	PromptNone Prompt = iota

	// PromptFoundMatch awaits the yes/no "found a match" answer.
	PromptFoundMatch

	// PromptIdentifier awaits one or more identifiers (comma-separated for a
	// multi-order batch).
	PromptIdentifier

	// PromptPayee awaits a payee name. Skipped when the source kind supplies
	// its own payee.
	PromptPayee

	// PromptConflict awaits the binary conflict-resolution choice.
	PromptConflict
)

// MatchRecord is a committed pairing, automatic or manual. Manual is
// immutable once the record exists; changing a match destroys and recreates
// the record.
type MatchRecord struct {
	ID uuid.UUID

	// Source is the transaction as it will be written to the ledger:
	// identifiers, payee and audit note already resolved.
	Source source.Transaction

	// LedgerID references the paired ledger transaction. Zero for a manual
	// record created from a source-only item; accepting such a record is
	// bookkeeping only, with no remote write.
	LedgerID int64

	Manual    bool
	CreatedAt time.Time

	// Reasons is the human-readable explanation carried over from the
	// matching engine, or the manual-match audit line.
	Reasons []string
}

// ClaimsIdentifier reports whether the record holds the given identifier.
func (r *MatchRecord) ClaimsIdentifier(id string) bool {
	for _, existing := range r.Source.SourceIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// Conflict exists only while the workflow is paused awaiting the operator's
// resolution of an identifier collision.
type Conflict struct {
	// Identifier is the colliding processor/order identifier.
	Identifier string

	// Existing is the live record already claiming the identifier.
	Existing MatchRecord

	// Candidate is the transaction the operator was matching when the
	// collision surfaced.
	Candidate source.Transaction
}

// UnmatchedItem is one entry of the final unmatched report.
type UnmatchedItem struct {
	Transaction source.Transaction

	// SkippedDuringConfirmation tags items that had a committed match which
	// the operator rejected in the confirmation stage.
	SkippedDuringConfirmation bool
}

// Stats is the terminal aggregation reported at processing complete.
type Stats struct {
	TotalLedgerTransactions   int
	AutomaticallyMatched      int
	ManuallyMatched           int
	SkippedDuringConfirmation int
	RemainingUnmatched        int

	// Unmatched is the full final unmatched list: original unmatched plus
	// skipped-during-confirmation.
	Unmatched []UnmatchedItem
}

// State is the aggregate workflow state. Only the reducer mutates it, by
// returning a successor value.
type State struct {
	Step Step

	// Err holds the stage error when Step is an error step, and the most
	// recent recoverable validation error during interactive matching.
	Err error

	// CSV stage.
	Sources     []source.Transaction
	CSVFiles    []string
	RowsPerFile map[string]int

	// Account selection and fetch stage.
	Accounts  []ledger.Account
	AccountID int64 // 0 searches all accounts
	Window    ledger.Window
	Ledger    []ledger.Transaction

	// Matching output and the interactive queue.
	Matches       []MatchRecord
	Unmatched     []source.Transaction
	SkippedLedger []match.Skipped
	Current       int
	Prompt        Prompt

	// Pending operator-supplied fields for the in-flight manual match.
	PendingIdentifiers []string
	PendingPayee       string

	// Conflict is non-nil only while Prompt is PromptConflict.
	Conflict *Conflict

	// Confirmation loop bookkeeping. Matches is frozen as the confirmation
	// queue when the loop starts; Rejected records are destroyed matches.
	ConfirmIndex   int
	Confirmed      []MatchRecord
	Rejected       []MatchRecord
	UpdateFailures []error

	Stats *Stats
}

// NewState returns the initial workflow state.
func NewState() State {
	return State{Step: StepInitialising}
}

// LiveMatches returns the committed records that have not been destroyed by
// confirmation-stage rejection. At most one live record references any
// ledger transaction.
func (s *State) LiveMatches() []MatchRecord {
	if len(s.Rejected) == 0 {
		return s.Matches
	}
	rejected := make(map[uuid.UUID]bool, len(s.Rejected))
	for _, r := range s.Rejected {
		rejected[r.ID] = true
	}
	live := make([]MatchRecord, 0, len(s.Matches))
	for _, m := range s.Matches {
		if !rejected[m.ID] {
			live = append(live, m)
		}
	}
	return live
}

// CurrentUnmatched returns the interactive queue entry the operator is being
// asked about, or nil when the queue is exhausted.
func (s *State) CurrentUnmatched() *source.Transaction {
	if s.Current < 0 || s.Current >= len(s.Unmatched) {
		return nil
	}
	return &s.Unmatched[s.Current]
}

// Progress locates a prompt within its loop for rendering.
type Progress struct {
	Index int // zero-based
	Total int
}
