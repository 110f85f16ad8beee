package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/robinvdvleuten/reconcile/ledger"
	"github.com/robinvdvleuten/reconcile/match"
	"github.com/robinvdvleuten/reconcile/source"
	"github.com/robinvdvleuten/reconcile/telemetry"
)

// Sources loads and normalizes the CSV input. Implementations fetch the
// rate table and read the input directory.
type Sources interface {
	Load(ctx context.Context) ([]source.Transaction, error)
}

// Fetcher supplies ledger accounts and transactions.
type Fetcher interface {
	Accounts(ctx context.Context) ([]ledger.Account, error)
	Transactions(ctx context.Context, window ledger.Window, accountID int64) ([]ledger.Transaction, error)
}

// Updater applies a confirmed match to the remote ledger.
type Updater interface {
	Apply(ctx context.Context, rec MatchRecord) error
}

// Prompter is the turn-based operator-interaction surface: present a prompt,
// await a typed response. A terminal UI, a web form, or a test harness can
// drive the identical state machine through it.
type Prompter interface {
	// SelectAccount returns the chosen account id, or zero to search all
	// accounts.
	SelectAccount(ctx context.Context, accounts []ledger.Account) (int64, error)

	// FoundMatch asks whether the operator found a match for the
	// transaction.
	FoundMatch(ctx context.Context, txn source.Transaction, progress Progress) (bool, error)

	// Identifiers asks for one or more identifiers. Implementations split
	// comma-separated batch entry.
	Identifiers(ctx context.Context, txn source.Transaction) ([]string, error)

	// Payee asks for the payee name.
	Payee(ctx context.Context, txn source.Transaction) (string, error)

	// ResolveConflict asks the binary keep-existing / replace question.
	ResolveConflict(ctx context.Context, conflict Conflict) (keepExisting bool, err error)

	// ConfirmMatch asks whether to commit the match to the ledger.
	ConfirmMatch(ctx context.Context, rec MatchRecord, progress Progress) (bool, error)

	// Warn surfaces a recoverable validation error before re-prompting.
	Warn(message string)
}

// Driver runs the workflow: it reduces events into state and runs one
// side-effect hook per step. At most one collaborator call is in flight at
// any time.
type Driver struct {
	Sources  Sources
	Fetcher  Fetcher
	Updater  Updater
	Prompter Prompter

	Tolerances match.Tolerances

	// BufferDays widens the fetch window on both sides of the source date
	// range.
	BufferDays int

	// Now defaults to time.Now; injectable for tests.
	Now func() time.Time

	// Observe, when set, is invoked synchronously after every transition.
	Observe func(State)
}

// Run drives the workflow from initialisation to a terminal step. The
// returned state is always the last one reached, preserved for diagnostics
// even on failure.
func (d *Driver) Run(ctx context.Context) (State, error) {
	st := NewState()
	d.observe(st)

	for {
		if st.Step.Terminal() {
			return st, st.Err
		}
		if err := ctx.Err(); err != nil {
			st.Err = err
			return st, err
		}

		events, err := d.step(ctx, st)
		if err != nil {
			// Prompter I/O failure or an authentication failure: abort the
			// run immediately, keep accumulated state.
			st.Err = err
			return st, err
		}

		for _, ev := range events {
			st = Reduce(st, ev)
			d.observe(st)
		}
	}
}

// step is the post-transition side-effect hook for the current step. It
// performs the collaborator call the step suspends on and produces the
// events resuming the reducer.
func (d *Driver) step(ctx context.Context, st State) ([]Event, error) {
	switch st.Step {
	case StepInitialising:
		return []Event{BeginProcessingInputs{}}, nil

	case StepProcessingInputs:
		return []Event{CSVProcessingStarted{}}, nil

	case StepProcessingCSV:
		defer telemetry.Stage(ctx, "process CSV files")()
		txns, err := d.Sources.Load(ctx)
		if err != nil {
			return []Event{CSVFailed{Err: err}}, nil
		}
		return []Event{CSVProcessed{Sources: txns}}, nil

	case StepSelectingAccount:
		accounts, err := d.Fetcher.Accounts(ctx)
		if err != nil {
			return []Event{FetchFailed{Err: err}}, nil
		}
		accountID, err := d.Prompter.SelectAccount(ctx, accounts)
		if err != nil {
			return nil, err
		}
		return []Event{AccountsLoaded{Accounts: accounts}, AccountSelected{AccountID: accountID}}, nil

	case StepFetchingLedger:
		defer telemetry.Stage(ctx, "fetch ledger transactions")()
		window := d.deriveWindow(st.Sources)
		txns, err := d.Fetcher.Transactions(ctx, window, st.AccountID)
		if err != nil {
			return []Event{FetchStarted{Window: window}, FetchFailed{Err: err}}, nil
		}
		return []Event{FetchStarted{Window: window}, LedgerFetched{Transactions: txns}}, nil

	case StepMatching:
		defer telemetry.Stage(ctx, "match transactions")()
		if len(st.Ledger) == 0 {
			return []Event{MatchingFailed{Err: &MatchingError{Reason: "no ledger transactions fetched"}}}, nil
		}
		result := match.Batch(st.Sources, st.Ledger, d.Tolerances)
		return []Event{MatchingFinished{Result: result}}, nil

	case StepInteractiveMatching:
		return d.interactiveStep(ctx, st)

	case StepInteractiveMatchingComplete:
		return []Event{BeginConfirmation{}}, nil

	case StepConfirmingMatches:
		return d.confirmStep(ctx, st)

	default:
		return nil, nil
	}
}

func (d *Driver) interactiveStep(ctx context.Context, st State) ([]Event, error) {
	switch st.Prompt {
	case PromptFoundMatch:
		txn := st.CurrentUnmatched()
		if txn == nil {
			return []Event{OperatorNoMatch{}}, nil
		}
		found, err := d.Prompter.FoundMatch(ctx, *txn, Progress{Index: st.Current, Total: len(st.Unmatched)})
		if err != nil {
			return nil, err
		}
		if found {
			return []Event{OperatorFoundMatch{}}, nil
		}
		return []Event{OperatorNoMatch{}}, nil

	case PromptIdentifier:
		if st.Err != nil {
			// Recoverable validation error from the previous entry; the
			// operator re-enters without losing workflow position.
			d.Prompter.Warn(st.Err.Error())
		}
		ids, err := d.Prompter.Identifiers(ctx, *st.CurrentUnmatched())
		if err != nil {
			return nil, err
		}
		return []Event{IdentifiersEntered{Identifiers: ids}}, nil

	case PromptPayee:
		payee, err := d.Prompter.Payee(ctx, *st.CurrentUnmatched())
		if err != nil {
			return nil, err
		}
		return []Event{PayeeEntered{Payee: payee}}, nil

	case PromptConflict:
		keep, err := d.Prompter.ResolveConflict(ctx, *st.Conflict)
		if err != nil {
			return nil, err
		}
		return []Event{ConflictResolved{KeepExisting: keep}}, nil

	default:
		return nil, nil
	}
}

func (d *Driver) confirmStep(ctx context.Context, st State) ([]Event, error) {
	rec := st.Matches[st.ConfirmIndex]
	accepted, err := d.Prompter.ConfirmMatch(ctx, rec, Progress{Index: st.ConfirmIndex, Total: len(st.Matches)})
	if err != nil {
		return nil, err
	}
	if !accepted {
		return []Event{MatchRejected{}}, nil
	}

	if rec.LedgerID == 0 {
		// Manual record with no ledger binding: nothing to write remotely.
		return []Event{MatchAccepted{}}, nil
	}

	// Exactly one outstanding remote update; the loop advances only on its
	// completion.
	if err := d.Updater.Apply(ctx, rec); err != nil {
		var authErr *ledger.AuthenticationError
		if errors.As(err, &authErr) {
			return nil, err
		}
		return []Event{UpdateFailed{Err: err}}, nil
	}
	return []Event{MatchAccepted{}}, nil
}

// deriveWindow spans the source transaction dates widened by the buffer on
// both sides, with the end clamped to today.
func (d *Driver) deriveWindow(txns []source.Transaction) ledger.Window {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	var window ledger.Window
	for _, txn := range txns {
		if window.Start.IsZero() || txn.Date.Before(window.Start) {
			window.Start = txn.Date
		}
		if window.End.IsZero() || txn.Date.After(window.End) {
			window.End = txn.Date
		}
	}

	buffer := time.Duration(d.BufferDays) * 24 * time.Hour
	window.Start = window.Start.Add(-buffer)
	window.End = window.End.Add(buffer)

	if today := now(); window.End.After(today) {
		window.End = today
	}
	return window
}

func (d *Driver) observe(st State) {
	if d.Observe != nil {
		d.Observe(st)
	}
}
