package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/robinvdvleuten/reconcile/ledger"
	"github.com/robinvdvleuten/reconcile/source"
	"github.com/robinvdvleuten/reconcile/workflow"
)

// termPrompter implements workflow.Prompter on the terminal with huh forms.
// Every prompt renders its context card first so the operator never answers
// blind.
type termPrompter struct {
	out         io.Writer
	activityURL string
}

func (p *termPrompter) SelectAccount(ctx context.Context, accounts []ledger.Account) (int64, error) {
	options := make([]huh.Option[int64], 0, len(accounts)+1)
	options = append(options, huh.NewOption[int64]("All accounts", 0))
	for _, account := range accounts {
		label := fmt.Sprintf("%s (%s, %s)", account.Name, account.Type, account.CurrencyCode)
		options = append(options, huh.NewOption(label, account.ID))
	}

	var accountID int64
	form := huh.NewSelect[int64]().
		Title("Which account should be searched?").
		Options(options...).
		Value(&accountID)

	if err := form.Run(); err != nil {
		return 0, err
	}
	return accountID, nil
}

func (p *termPrompter) FoundMatch(ctx context.Context, txn source.Transaction, progress workflow.Progress) (bool, error) {
	renderTransaction(p.out, txn)
	if link := activitySearchURL(p.activityURL, txn.Date); link != "" {
		printInfof(p.out, "search processor activity: %s", pathStyle.Render(link))
	}

	var found bool
	form := huh.NewConfirm().
		Title(fmt.Sprintf("Did you find a match? (%d of %d)", progress.Index+1, progress.Total)).
		WithButtonAlignment(lipgloss.Left).
		Value(&found)

	if err := form.Run(); err != nil {
		return false, err
	}
	return found, nil
}

func (p *termPrompter) Identifiers(ctx context.Context, txn source.Transaction) ([]string, error) {
	var entered string
	form := huh.NewInput().
		Title("Transaction identifier").
		Description("Separate multiple identifiers with commas.").
		Value(&entered)

	if err := form.Run(); err != nil {
		return nil, err
	}

	parts := strings.Split(entered, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		ids = append(ids, strings.TrimSpace(part))
	}
	return ids, nil
}

func (p *termPrompter) Payee(ctx context.Context, txn source.Transaction) (string, error) {
	var payee string
	form := huh.NewInput().
		Title("Payee name").
		Value(&payee)

	if err := form.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(payee), nil
}

func (p *termPrompter) ResolveConflict(ctx context.Context, conflict workflow.Conflict) (bool, error) {
	renderConflict(p.out, conflict)

	var keepExisting bool
	form := huh.NewSelect[bool]().
		Title("How should the conflict be resolved?").
		Options(
			huh.NewOption("Keep the existing match", true),
			huh.NewOption("Replace it with this one", false),
		).
		Value(&keepExisting)

	if err := form.Run(); err != nil {
		return false, err
	}
	return keepExisting, nil
}

func (p *termPrompter) ConfirmMatch(ctx context.Context, rec workflow.MatchRecord, progress workflow.Progress) (bool, error) {
	renderMatch(p.out, rec)

	var accepted bool
	form := huh.NewConfirm().
		Title(fmt.Sprintf("Commit this match to the ledger? (%d of %d)", progress.Index+1, progress.Total)).
		WithButtonAlignment(lipgloss.Left).
		Value(&accepted)

	if err := form.Run(); err != nil {
		return false, err
	}
	return accepted, nil
}

func (p *termPrompter) Warn(message string) {
	printWarn(p.out, message)
}
