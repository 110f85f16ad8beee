package workflow

import (
	"github.com/robinvdvleuten/reconcile/ledger"
	"github.com/robinvdvleuten/reconcile/match"
	"github.com/robinvdvleuten/reconcile/source"
)

// Event is a dispatched workflow event. Events are produced by the driver's
// side-effect hooks (collaborator results, operator responses) and folded
// into state by Reduce.
type Event interface {
	event()
}

// BeginProcessingInputs starts the pipeline.
type BeginProcessingInputs struct{}

// CSVProcessingStarted marks the CSV stage as running and clears any output
// of a previous attempt.
type CSVProcessingStarted struct{}

// CSVProcessed carries the normalized transactions of every input file.
type CSVProcessed struct {
	Sources []source.Transaction
}

// CSVFailed halts the CSV stage.
type CSVFailed struct {
	Err error
}

// AccountsLoaded carries the ledger's transaction accounts for selection.
type AccountsLoaded struct {
	Accounts []ledger.Account
}

// AccountSelected scopes the fetch to one account; zero searches all.
type AccountSelected struct {
	AccountID int64
}

// FetchStarted records the derived date window before the fetch runs.
type FetchStarted struct {
	Window ledger.Window
}

// LedgerFetched carries the fetched ledger transactions.
type LedgerFetched struct {
	Transactions []ledger.Transaction
}

// FetchFailed halts the fetch stage.
type FetchFailed struct {
	Err error
}

// MatchingFinished carries the engine's partition of the batch.
type MatchingFinished struct {
	Result match.Result
}

// MatchingFailed halts the matching stage.
type MatchingFailed struct {
	Err error
}

// OperatorNoMatch advances past the current unmatched transaction.
type OperatorNoMatch struct{}

// OperatorFoundMatch moves the current unmatched transaction into identifier
// entry.
type OperatorFoundMatch struct{}

// IdentifiersEntered carries the operator-supplied identifier(s). Several
// identifiers form a multi-order batch match.
type IdentifiersEntered struct {
	Identifiers []string
}

// PayeeEntered carries the operator-supplied payee and applies the manual
// match.
type PayeeEntered struct {
	Payee string
}

// ConflictResolved carries the operator's conflict-resolution choice.
type ConflictResolved struct {
	KeepExisting bool
}

// BeginConfirmation starts the confirmation loop over every committed match.
type BeginConfirmation struct{}

// MatchAccepted records that the operator accepted the current match and its
// remote update completed.
type MatchAccepted struct{}

// MatchRejected destroys the current match and demotes its transaction to
// the skipped bucket.
type MatchRejected struct{}

// UpdateFailed records a non-authentication remote update failure; the item
// stays not-yet-applied and the loop continues.
type UpdateFailed struct {
	Err error
}

func (BeginProcessingInputs) event() {}
func (CSVProcessingStarted) event()  {}
func (CSVProcessed) event()          {}
func (CSVFailed) event()             {}
func (AccountsLoaded) event()        {}
func (AccountSelected) event()       {}
func (FetchStarted) event()          {}
func (LedgerFetched) event()         {}
func (FetchFailed) event()           {}
func (MatchingFinished) event()      {}
func (MatchingFailed) event()        {}
func (OperatorNoMatch) event()       {}
func (OperatorFoundMatch) event()    {}
func (IdentifiersEntered) event()    {}
func (PayeeEntered) event()          {}
func (ConflictResolved) event()      {}
func (BeginConfirmation) event()     {}
func (MatchAccepted) event()         {}
func (MatchRejected) event()         {}
func (UpdateFailed) event()          {}
