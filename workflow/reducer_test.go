package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/reconcile/ledger"
	"github.com/robinvdvleuten/reconcile/match"
	"github.com/robinvdvleuten/reconcile/source"
)

func amount(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func cardTxn(id string) source.Transaction {
	return source.Transaction{
		Date:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Amount:    amount("-45.00"),
		Kind:      source.KindCard,
		SourceIDs: []string{id},
	}
}

func marketplaceTxn(id string) source.Transaction {
	return source.Transaction{
		Date:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Amount:    amount("-19.75"),
		Payee:     "Marketplace Store",
		Kind:      source.KindMarketplace,
		SourceIDs: []string{id},
	}
}

// reduceAll folds a sequence of events into the state.
func reduceAll(st State, events ...Event) State {
	for _, ev := range events {
		st = Reduce(st, ev)
	}
	return st
}

func TestReduceCSVStage(t *testing.T) {
	tests := []struct {
		name      string
		sources   []source.Transaction
		wantStep  Step
	}{
		{
			name:     "card-only input skips account selection",
			sources:  []source.Transaction{cardTxn("TX1")},
			wantStep: StepFetchingLedger,
		},
		{
			name:     "marketplace input requires account selection",
			sources:  []source.Transaction{cardTxn("TX1"), marketplaceTxn("ORDER-1")},
			wantStep: StepSelectingAccount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := reduceAll(NewState(),
				BeginProcessingInputs{},
				CSVProcessingStarted{},
				CSVProcessed{Sources: tt.sources},
			)
			assert.Equal(t, tt.wantStep, st.Step)
		})
	}
}

func TestReduceCSVFailed(t *testing.T) {
	loadErr := errors.New("boom")
	st := reduceAll(NewState(),
		BeginProcessingInputs{},
		CSVProcessingStarted{},
		CSVFailed{Err: loadErr},
	)

	assert.Equal(t, StepCSVError, st.Step)
	assert.True(t, st.Step.Terminal())
	assert.Equal(t, loadErr, st.Err)
}

func TestReduceFileSummary(t *testing.T) {
	a := cardTxn("TX1")
	a.OriginFile = "a.csv"
	b := cardTxn("TX2")
	b.OriginFile = "a.csv"
	c := cardTxn("TX3")
	c.OriginFile = "b.csv"

	st := Reduce(NewState(), CSVProcessed{Sources: []source.Transaction{a, b, c}})

	assert.Equal(t, []string{"a.csv", "b.csv"}, st.CSVFiles)
	assert.Equal(t, 2, st.RowsPerFile["a.csv"])
	assert.Equal(t, 1, st.RowsPerFile["b.csv"])
}

func TestReduceMatchingFinished(t *testing.T) {
	t.Run("pairs become automatic match records", func(t *testing.T) {
		st := State{Step: StepMatching, Sources: []source.Transaction{cardTxn("TX1")}}
		st = Reduce(st, MatchingFinished{Result: match.Result{
			Pairs: []match.Pair{{
				Source: cardTxn("TX1"),
				Ledger: ledger.Transaction{ID: 7, Amount: amount("-45.00")},
			}},
		}})

		assert.Equal(t, 1, len(st.Matches))
		assert.False(t, st.Matches[0].Manual)
		assert.Equal(t, int64(7), st.Matches[0].LedgerID)
		assert.Equal(t, int64(7), st.Matches[0].Source.LedgerMatchID)
		// Nothing to review: interactive loop completes immediately.
		assert.Equal(t, StepInteractiveMatchingComplete, st.Step)
	})

	t.Run("unmatched ledger becomes find-a-source items for marketplace runs", func(t *testing.T) {
		st := State{Step: StepMatching, Sources: []source.Transaction{marketplaceTxn("ORDER-1")}}
		st = Reduce(st, MatchingFinished{Result: match.Result{
			UnmatchedSources: []source.Transaction{marketplaceTxn("ORDER-1")},
			UnmatchedLedger: []ledger.Transaction{
				{ID: 9, Date: "2024-03-14", Amount: amount("-12.50"), Payee: "Card Charge"},
			},
		}})

		assert.Equal(t, StepInteractiveMatching, st.Step)
		assert.Equal(t, PromptFoundMatch, st.Prompt)
		assert.Equal(t, 2, len(st.Unmatched))
		assert.Equal(t, int64(9), st.Unmatched[1].LedgerMatchID)
	})

	t.Run("unmatched ledger ignored for card-only runs", func(t *testing.T) {
		st := State{Step: StepMatching, Sources: []source.Transaction{cardTxn("TX1")}}
		st = Reduce(st, MatchingFinished{Result: match.Result{
			UnmatchedSources: []source.Transaction{cardTxn("TX1")},
			UnmatchedLedger:  []ledger.Transaction{{ID: 9, Date: "2024-03-14", Amount: amount("-12.50")}},
		}})

		assert.Equal(t, 1, len(st.Unmatched))
	})
}

func interactiveState(queue ...source.Transaction) State {
	return State{
		Step:      StepInteractiveMatching,
		Prompt:    PromptFoundMatch,
		Unmatched: queue,
	}
}

func TestReduceIdentifiers(t *testing.T) {
	tests := []struct {
		name      string
		queue     []source.Transaction
		entered   []string
		checkFunc func(*testing.T, State)
	}{
		{
			name:    "empty entry is a recoverable error",
			queue:   []source.Transaction{cardTxn("TX1")},
			entered: []string{"", "  "},
			checkFunc: func(t *testing.T, st State) {
				var emptyErr *EmptyIdentifierError
				assert.True(t, errors.As(st.Err, &emptyErr))
				assert.Equal(t, PromptIdentifier, st.Prompt)
				assert.Equal(t, 0, st.Current)
			},
		},
		{
			name:    "duplicate entry is a recoverable error",
			queue:   []source.Transaction{cardTxn("TX1")},
			entered: []string{"A1", "A1"},
			checkFunc: func(t *testing.T, st State) {
				var dupErr *DuplicateIdentifierError
				assert.True(t, errors.As(st.Err, &dupErr))
				assert.Equal(t, "A1", dupErr.Identifier)
				assert.Equal(t, PromptIdentifier, st.Prompt)
			},
		},
		{
			name:    "card source proceeds to payee entry",
			queue:   []source.Transaction{cardTxn("TX1")},
			entered: []string{"A1"},
			checkFunc: func(t *testing.T, st State) {
				assert.NoError(t, st.Err)
				assert.Equal(t, PromptPayee, st.Prompt)
				assert.Equal(t, []string{"A1"}, st.PendingIdentifiers)
			},
		},
		{
			name:    "marketplace source with own payee commits directly",
			queue:   []source.Transaction{marketplaceTxn("ORDER-1")},
			entered: []string{"A1", "A2"},
			checkFunc: func(t *testing.T, st State) {
				assert.Equal(t, 1, len(st.Matches))
				assert.True(t, st.Matches[0].Manual)
				assert.Equal(t, []string{"A1", "A2"}, st.Matches[0].Source.SourceIDs)
				assert.Equal(t, "Marketplace Store", st.Matches[0].Source.Payee)
				assert.Equal(t, 0, len(st.Unmatched))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := interactiveState(tt.queue...)
			st = reduceAll(st, OperatorFoundMatch{}, IdentifiersEntered{Identifiers: tt.entered})
			tt.checkFunc(t, st)
		})
	}
}

func TestReduceIdentifiersForLedgerCharge(t *testing.T) {
	// Find-a-source item: a ledger charge with no identifier of its own.
	charge := source.Transaction{
		Date:          time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
		Amount:        amount("-12.50"),
		Payee:         "Card Charge",
		Kind:          source.KindMarketplace,
		LedgerMatchID: 9,
	}

	st := interactiveState(charge)
	st.Sources = []source.Transaction{marketplaceTxn("ORDER-1")}

	t.Run("unknown identifier is a recoverable error", func(t *testing.T) {
		st := reduceAll(st, OperatorFoundMatch{}, IdentifiersEntered{Identifiers: []string{"ORDER-99"}})

		var unknownErr *UnknownIdentifierError
		assert.True(t, errors.As(st.Err, &unknownErr))
		assert.Equal(t, "ORDER-99", unknownErr.Identifier)
		assert.Equal(t, PromptIdentifier, st.Prompt)
	})

	t.Run("known identifier binds the charge", func(t *testing.T) {
		st := reduceAll(st, OperatorFoundMatch{}, IdentifiersEntered{Identifiers: []string{"ORDER-1"}})

		assert.Equal(t, 1, len(st.Matches))
		assert.Equal(t, int64(9), st.Matches[0].LedgerID)
		assert.Equal(t, []string{"ORDER-1"}, st.Matches[0].Source.SourceIDs)
	})
}

func TestReduceManualMatchViaPayee(t *testing.T) {
	st := interactiveState(cardTxn("TX1"), cardTxn("TX2"))
	st = reduceAll(st,
		OperatorFoundMatch{},
		IdentifiersEntered{Identifiers: []string{"A1"}},
		PayeeEntered{Payee: "  Coffee Shop  "},
	)

	assert.Equal(t, 1, len(st.Matches))
	assert.Equal(t, "Coffee Shop", st.Matches[0].Source.Payee)
	assert.True(t, st.Matches[0].Source.ManuallyMatched)

	// The matched item left the queue; the pointer stays put so the next
	// item slides into position.
	assert.Equal(t, 1, len(st.Unmatched))
	assert.Equal(t, 0, st.Current)
	assert.Equal(t, "TX2", st.Unmatched[0].SourceID())
	assert.Equal(t, PromptFoundMatch, st.Prompt)
}

func TestReduceOperatorNoMatch(t *testing.T) {
	st := interactiveState(cardTxn("TX1"), cardTxn("TX2"))

	st = Reduce(st, OperatorNoMatch{})
	assert.Equal(t, 1, st.Current)
	assert.Equal(t, StepInteractiveMatching, st.Step)

	st = Reduce(st, OperatorNoMatch{})
	assert.Equal(t, StepInteractiveMatchingComplete, st.Step)
	assert.Equal(t, PromptNone, st.Prompt)
	assert.Equal(t, 2, len(st.Unmatched))
}

func TestReduceConflict(t *testing.T) {
	setup := func() State {
		// ORDER-1 is committed manually, then the operator enters the same
		// identifier for the next item.
		st := interactiveState(marketplaceTxn("ORDER-1"), marketplaceTxn("ORDER-2"))
		st = reduceAll(st,
			OperatorFoundMatch{},
			IdentifiersEntered{Identifiers: []string{"SHARED"}},
			OperatorFoundMatch{},
			IdentifiersEntered{Identifiers: []string{"SHARED"}},
		)
		return st
	}

	t.Run("collision pauses on conflict resolution", func(t *testing.T) {
		st := setup()
		assert.Equal(t, PromptConflict, st.Prompt)
		assert.NotZero(t, st.Conflict)
		assert.Equal(t, "SHARED", st.Conflict.Identifier)
		assert.Equal(t, "ORDER-2", st.Conflict.Candidate.SourceID())
	})

	t.Run("keep existing leaves the candidate unmatched", func(t *testing.T) {
		st := setup()
		st = Reduce(st, ConflictResolved{KeepExisting: true})

		assert.Zero(t, st.Conflict)
		assert.Equal(t, 1, len(st.Matches))
		assert.Equal(t, []string{"SHARED"}, st.Matches[0].Source.SourceIDs)
		// Candidate stays in the queue; the loop advanced past it.
		assert.Equal(t, 1, len(st.Unmatched))
		assert.Equal(t, StepInteractiveMatchingComplete, st.Step)
	})

	t.Run("replace destroys the existing record and requeues its source", func(t *testing.T) {
		st := setup()
		existingID := st.Conflict.Existing.ID
		st = Reduce(st, ConflictResolved{KeepExisting: false})

		// Count-neutral: one record destroyed, one committed.
		assert.Equal(t, 1, len(st.Matches))
		assert.NotEqual(t, existingID, st.Matches[0].ID)
		assert.Equal(t, "ORDER-2", st.Matches[0].Source.SourceID())

		// The displaced transaction returns to the tail, cleared for re-entry.
		assert.Equal(t, 1, len(st.Unmatched))
		requeued := st.Unmatched[len(st.Unmatched)-1]
		assert.False(t, requeued.ManuallyMatched)
		assert.Equal(t, StepInteractiveMatching, st.Step)
	})
}

func TestReduceConfirmation(t *testing.T) {
	record := func(manual bool, ledgerID int64) MatchRecord {
		rec := MatchRecord{Source: cardTxn("TX1"), LedgerID: ledgerID, Manual: manual}
		return rec
	}

	t.Run("no matches finalizes immediately", func(t *testing.T) {
		st := State{Step: StepInteractiveMatchingComplete, Ledger: []ledger.Transaction{{ID: 1}}}
		st = Reduce(st, BeginConfirmation{})

		assert.Equal(t, StepProcessingComplete, st.Step)
		assert.NotZero(t, st.Stats)
		assert.Equal(t, 1, st.Stats.TotalLedgerTransactions)
		assert.Equal(t, 0, st.Stats.AutomaticallyMatched)
		assert.Equal(t, 0, st.Stats.ManuallyMatched)
	})

	t.Run("accept and reject are counted separately", func(t *testing.T) {
		st := State{
			Step:    StepInteractiveMatchingComplete,
			Matches: []MatchRecord{record(false, 1), record(true, 2), record(false, 3)},
		}
		st = reduceAll(st, BeginConfirmation{}, MatchAccepted{}, MatchAccepted{}, MatchRejected{})

		assert.Equal(t, StepProcessingComplete, st.Step)
		assert.Equal(t, 1, st.Stats.AutomaticallyMatched)
		assert.Equal(t, 1, st.Stats.ManuallyMatched)
		assert.Equal(t, 1, st.Stats.SkippedDuringConfirmation)
		assert.Equal(t, 1, st.Stats.RemainingUnmatched)
		assert.True(t, st.Stats.Unmatched[0].SkippedDuringConfirmation)
	})

	t.Run("update failure advances without counting a match", func(t *testing.T) {
		st := State{
			Step:    StepInteractiveMatchingComplete,
			Matches: []MatchRecord{record(false, 1)},
		}
		st = reduceAll(st, BeginConfirmation{}, UpdateFailed{Err: errors.New("remote says no")})

		assert.Equal(t, StepProcessingComplete, st.Step)
		assert.Equal(t, 1, len(st.UpdateFailures))
		assert.Equal(t, 0, st.Stats.AutomaticallyMatched)
		assert.Equal(t, 0, st.Stats.SkippedDuringConfirmation)
	})
}

func TestLiveMatchesExcludesRejected(t *testing.T) {
	a := MatchRecord{ID: uuid.New(), Source: cardTxn("TX1"), LedgerID: 1}
	b := MatchRecord{ID: uuid.New(), Source: cardTxn("TX2"), LedgerID: 2}

	st := State{Matches: []MatchRecord{a, b}, Rejected: []MatchRecord{a}}

	live := st.LiveMatches()
	assert.Equal(t, 1, len(live))
	assert.Equal(t, int64(2), live[0].LedgerID)
}
