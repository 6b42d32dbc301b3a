package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/bankflow/internal/cli"
	"github.com/Veraticus/bankflow/internal/common"
	"github.com/Veraticus/bankflow/internal/importer"
	"github.com/Veraticus/bankflow/internal/model"
)

const dateLayout = "2006-01-02"

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import transactions from linked bank accounts",
		Long: `Start a bank import on the backend and follow it until it finishes.

With several accounts the imports run one after another under a single
progress bar. The first failure stops the run; accounts already imported
are kept. Interrupting stops following progress, but jobs already started
keep running on the backend.

Examples:
  bankflow import --account acc-checking
  bankflow import --all --from 2024-01-01 --to 2024-03-31
  bankflow import --all --incremental`,
		RunE: runImport,
	}

	cmd.Flags().StringSlice("account", nil, "account id to import (repeatable)")
	cmd.Flags().Bool("all", false, "import every linked account")
	cmd.Flags().String("from", "", "first day to import (2006-01-02)")
	cmd.Flags().String("to", "", "last day to import (2006-01-02)")
	cmd.Flags().Bool("incremental", false, "only fetch what is new since the last import")

	return cmd
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	rng, err := importRange(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.requireLogin(ctx); err != nil {
		return err
	}

	accounts, err := selectAccounts(cmd, a)
	if err != nil {
		return err
	}

	view := cli.NewImportView(out)
	a.importer.Subscribe(view.Observe)

	handler := cli.NewInterruptHandler(out)
	handler.OnInterrupt(a.importer.Abort)
	ctx = handler.HandleInterrupts(ctx, "Jobs already started keep running on the server.")

	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s Importing %d account(s)", cli.SyncIcon, len(accounts))))

	var summaries []importer.Summary
	if len(accounts) == 1 {
		var sum *importer.Summary
		sum, err = a.importer.ImportAccount(ctx, accounts[0], rng)
		if sum != nil {
			summaries = append(summaries, *sum)
		}
	} else {
		summaries, err = a.importer.ImportAccounts(ctx, accounts, rng)
	}

	if errors.Is(err, importer.ErrAborted) {
		return &reportedError{err: err}
	}
	if err != nil {
		// Terminal states were already shown by the progress view.
		if s := a.importer.Progress().State; s == importer.Failed || s == importer.Idle {
			return &reportedError{err: err}
		}
		return err
	}

	if len(summaries) > 1 {
		printSummaries(cmd, summaries)
	}
	fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d transactions in your ledger", len(a.ledger.Transactions()))))
	return nil
}

func importRange(cmd *cobra.Command) (model.ImportRange, error) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, d); err != nil {
			return model.ImportRange{}, &common.UserError{UserMessage: fmt.Sprintf("Invalid date %q, expected YYYY-MM-DD", d), Err: err}
		}
	}
	if from != "" && to != "" && from > to {
		return model.ImportRange{}, &common.UserError{UserMessage: "--from must not be after --to"}
	}

	rng := model.ImportRange{DateFrom: from, DateTo: to}
	if cmd.Flags().Changed("incremental") {
		inc, _ := cmd.Flags().GetBool("incremental")
		rng.Incremental = &inc
	}
	return rng, nil
}

func selectAccounts(cmd *cobra.Command, a *app) ([]string, error) {
	explicit, _ := cmd.Flags().GetStringSlice("account")
	all, _ := cmd.Flags().GetBool("all")
	if len(explicit) > 0 && all {
		return nil, &common.UserError{UserMessage: "Use either --account or --all"}
	}
	if len(explicit) > 0 {
		return explicit, nil
	}

	linked, err := a.client.Accounts(cmd.Context())
	if err != nil {
		return nil, err
	}
	switch {
	case len(linked) == 0:
		return nil, &common.UserError{UserMessage: "No linked accounts. Link one with 'bankflow institutions link <id>'."}
	case all || len(linked) == 1:
		return linked, nil
	default:
		return nil, &common.UserError{UserMessage: "Several accounts are linked. Choose one with --account or use --all."}
	}
}

func printSummaries(cmd *cobra.Command, summaries []importer.Summary) {
	out := cmd.OutOrStdout()
	for _, s := range summaries {
		line := fmt.Sprintf("  %s: %d new, %d duplicates (%s)", s.AccountID, s.Imported, s.Duplicates, s.Outcome)
		if s.Abandoned {
			fmt.Fprintln(out, cli.FormatWarning(line))
			continue
		}
		fmt.Fprintln(out, line)
	}
}
