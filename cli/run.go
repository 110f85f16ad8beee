package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/alecthomas/kong"
	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/reconcile/ledger"
	"github.com/robinvdvleuten/reconcile/match"
	"github.com/robinvdvleuten/reconcile/rates"
	"github.com/robinvdvleuten/reconcile/source"
	"github.com/robinvdvleuten/reconcile/telemetry"
	"github.com/robinvdvleuten/reconcile/workflow"
)

type RunCmd struct {
	Input        string `help:"Directory containing CSV exports." env:"INPUT_CSV_PATH" default:"./data/input" type:"existingdir"`
	BaseCurrency string `help:"Ledger base currency." env:"BASE_CURRENCY" default:"GBP"`

	LedgerURL string `help:"Base URL of the budgeting ledger API." env:"LEDGER_API_URL" required:""`
	LedgerKey string `help:"API key for the budgeting ledger." env:"LEDGER_API_KEY" required:""`
	RatesURL  string `help:"Base URL of the currency rates API." env:"RATES_API_URL" default:"https://api.unirateapi.com"`
	RatesKey  string `help:"API key for the currency rates API." env:"RATES_API_KEY" required:""`

	Search      string `help:"Payee search text for the ledger fetch." env:"LEDGER_SEARCH_TEXT" default:""`
	ActivityURL string `help:"Processor activity search URL shown during manual matching." env:"PROCESSOR_ACTIVITY_URL" default:""`

	DaysTolerance    int     `help:"Maximum date deviation in days for a pairing." env:"DAYS_TOLERANCE" default:"2"`
	BufferDays       int     `help:"Days added on both sides of the fetch window." name:"date-buffer-days" env:"DATE_RANGE_BUFFER_DAYS" default:"5"`
	AmountTolerance  float64 `help:"Relative amount tolerance for same-currency pairings." env:"AMOUNT_TOLERANCE_EXACT" default:"0.01"`
	ForeignTolerance float64 `help:"Relative amount tolerance for foreign-currency pairings." env:"AMOUNT_TOLERANCE_FOREIGN" default:"0.2"`
}

func (cmd *RunCmd) Run(kctx *kong.Context, globals *Globals) error {
	if !isTerminal() {
		return fmt.Errorf("reconciliation is interactive and requires a terminal")
	}

	ctx := context.Background()

	var recorder *telemetry.Recorder
	if globals.Telemetry {
		recorder = telemetry.NewRecorder()
		ctx = telemetry.WithRecorder(ctx, recorder)
	}

	driver := cmd.buildDriver(kctx)

	st, err := driver.Run(ctx)

	if recorder != nil {
		_, _ = fmt.Fprintln(kctx.Stderr)
		recorder.Report(kctx.Stderr)
	}

	if err != nil {
		_, _ = fmt.Fprintln(kctx.Stderr)
		printError(kctx.Stderr, err.Error())
		return NewCommandError(1)
	}

	if st.Stats != nil {
		renderStats(kctx.Stdout, st)
	}
	return nil
}

// buildDriver wires the workflow driver with its collaborators from the
// resolved configuration. Configuration is materialized here, once, into
// immutable values; nothing downstream reads the environment.
func (cmd *RunCmd) buildDriver(kctx *kong.Context) *workflow.Driver {
	ledgerClient := ledger.NewClient(ledger.Config{
		BaseURL: cmd.LedgerURL,
		APIKey:  cmd.LedgerKey,
	})
	ratesClient := rates.NewClient(rates.Config{
		BaseURL: cmd.RatesURL,
		APIKey:  cmd.RatesKey,
	})

	observer := newRunObserver(kctx, cmd.Input)

	return &workflow.Driver{
		Sources: &csvSources{
			rates: ratesClient,
			opts: source.Options{
				Dir:                  cmd.Input,
				BaseCurrency:         cmd.BaseCurrency,
				ExcludedDescriptions: source.DefaultExcludedDescriptions(),
			},
		},
		Fetcher: &apiFetcher{
			client: ledgerClient,
			search: cmd.Search,
		},
		Updater: &apiUpdater{client: ledgerClient},
		Prompter: &termPrompter{
			out:         kctx.Stdout,
			activityURL: cmd.ActivityURL,
		},
		Tolerances: match.Tolerances{
			Days:    cmd.DaysTolerance,
			Exact:   decimal.NewFromFloat(cmd.AmountTolerance),
			Foreign: decimal.NewFromFloat(cmd.ForeignTolerance),
		},
		BufferDays: cmd.BufferDays,
		Observe:    observer.observe,
	}
}

// csvSources loads the rate table and normalizes the CSV input directory.
type csvSources struct {
	rates *rates.Client
	opts  source.Options
}

func (s *csvSources) Load(ctx context.Context) ([]source.Transaction, error) {
	table, err := s.rates.Rates(ctx, s.opts.BaseCurrency)
	if err != nil {
		return nil, err
	}
	opts := s.opts
	opts.Now = time.Now()
	return source.LoadDir(opts, table)
}

// apiFetcher adapts the ledger client, resolving and caching the
// authenticated user once per run.
type apiFetcher struct {
	client *ledger.Client
	search string
	user   *ledger.User
}

func (f *apiFetcher) userID(ctx context.Context) (int64, error) {
	if f.user == nil {
		user, err := f.client.CurrentUser(ctx)
		if err != nil {
			return 0, err
		}
		f.user = user
	}
	return f.user.ID, nil
}

func (f *apiFetcher) Accounts(ctx context.Context) ([]ledger.Account, error) {
	userID, err := f.userID(ctx)
	if err != nil {
		return nil, err
	}
	return f.client.Accounts(ctx, userID)
}

func (f *apiFetcher) Transactions(ctx context.Context, window ledger.Window, accountID int64) ([]ledger.Transaction, error) {
	userID, err := f.userID(ctx)
	if err != nil {
		return nil, err
	}
	return f.client.Transactions(ctx, userID, ledger.FetchParams{
		Window:    window,
		AccountID: accountID,
		Search:    f.search,
	})
}

// apiUpdater applies confirmed matches through the ledger client.
type apiUpdater struct {
	client *ledger.Client
}

func (u *apiUpdater) Apply(ctx context.Context, rec workflow.MatchRecord) error {
	return u.client.UpdateTransaction(ctx, rec.LedgerID, ledger.Update{
		Payee:  rec.Source.Payee,
		Memo:   rec.Source.Note,
		Labels: rec.Source.Labels,
	})
}

// runObserver renders stage progress after each transition. It tracks what
// it already reported so repeated observations stay quiet.
type runObserver struct {
	kctx     *kong.Context
	inputDir string

	lastStep        workflow.Step
	startedCSV      bool
	reportedCSV     bool
	reportedWindow  bool
	reportedMatches bool
	failureCount    int
}

func newRunObserver(kctx *kong.Context, inputDir string) *runObserver {
	return &runObserver{kctx: kctx, inputDir: inputDir, lastStep: -1}
}

func (o *runObserver) observe(st workflow.State) {
	out := o.kctx.Stdout

	if st.Step == workflow.StepProcessingCSV && !o.startedCSV {
		o.startedCSV = true
		printInfof(out, "processing CSV files in %s", pathStyle.Render(o.inputDir))
	}

	if st.Sources != nil && !o.reportedCSV {
		o.reportedCSV = true
		printSuccess(out, fmt.Sprintf("%d transactions from %d file(s)", len(st.Sources), len(st.CSVFiles)))
		for _, file := range st.CSVFiles {
			printInfof(out, "  %s: %d row(s)", pathStyle.Render(file), st.RowsPerFile[file])
		}
	}

	if !st.Window.Start.IsZero() && !o.reportedWindow {
		o.reportedWindow = true
		printInfof(out, "fetching ledger transactions from %s to %s",
			st.Window.Start.Format("2006-01-02"), st.Window.End.Format("2006-01-02"))
	}

	if st.Step == workflow.StepInteractiveMatching || st.Step == workflow.StepInteractiveMatchingComplete {
		if !o.reportedMatches {
			o.reportedMatches = true
			printSuccess(out, fmt.Sprintf("automatically matched %d pairing(s); %d item(s) need manual review",
				len(st.Matches), len(st.Unmatched)))
			for _, skipped := range st.SkippedLedger {
				printWarn(out, fmt.Sprintf("skipped ledger transaction %d: %s", skipped.Ledger.ID, skipped.Reason))
			}
		}
	}

	// Non-auth update failures are logged and the loop continues.
	for ; o.failureCount < len(st.UpdateFailures); o.failureCount++ {
		printError(o.kctx.Stderr, st.UpdateFailures[o.failureCount].Error())
	}

	if st.Step != o.lastStep && st.Step.Terminal() && st.Err != nil {
		printError(o.kctx.Stderr, fmt.Sprintf("%s: %v", st.Step, st.Err))
	}
	o.lastStep = st.Step
}
