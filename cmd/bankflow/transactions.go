package main

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/bankflow/internal/cli"
	"github.com/Veraticus/bankflow/internal/common"
	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/ofx"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "List and edit transactions",
	}

	cmd.AddCommand(transactionsListCmd())
	cmd.AddCommand(transactionsRefreshCmd())
	cmd.AddCommand(transactionsAddCmd())
	cmd.AddCommand(transactionsEditCmd())
	cmd.AddCommand(transactionsDeleteCmd())
	cmd.AddCommand(transactionsCategorizeCmd())
	cmd.AddCommand(transactionsImportOFXCmd())

	return cmd
}

func transactionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Long: `List transactions. A recent local copy is shown at once and refreshed from
the backend in the background; --refresh waits for the backend instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.requireLogin(ctx); err != nil {
				return err
			}
			a.maybeAutoSync(ctx)

			var txns []model.Transaction
			if refresh, _ := cmd.Flags().GetBool("refresh"); refresh {
				if err := a.ledger.ForceRefresh(ctx); err != nil {
					return err
				}
				txns = a.ledger.Transactions()
			} else if txns, err = a.ledger.Fetch(ctx); err != nil {
				return err
			}

			search, _ := cmd.Flags().GetString("search")
			category, _ := cmd.Flags().GetString("category")
			limit, _ := cmd.Flags().GetInt("limit")

			txns = filterTransactions(txns, search, category)
			sortNewestFirst(txns)
			if limit > 0 && len(txns) > limit {
				txns = txns[:limit]
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatTransactions(txns))
			return nil
		},
	}

	cmd.Flags().Bool("refresh", false, "load from the backend before listing")
	cmd.Flags().String("search", "", "only titles containing this text")
	cmd.Flags().String("category", "", "only this category")
	cmd.Flags().IntP("limit", "n", 50, "maximum rows (0 for all)")

	return cmd
}

func filterTransactions(txns []model.Transaction, search, category string) []model.Transaction {
	search = strings.ToLower(search)
	out := make([]model.Transaction, 0, len(txns))
	for _, t := range txns {
		if search != "" && !strings.Contains(strings.ToLower(t.Title), search) {
			continue
		}
		if category != "" && !strings.EqualFold(t.CategoryName(), category) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func sortNewestFirst(txns []model.Transaction) {
	slices.SortStableFunc(txns, func(a, b model.Transaction) int {
		return strings.Compare(b.Date+b.Time, a.Date+a.Time)
	})
}

func transactionsRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Replace the local copy with the backend's transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.ledger.ForceRefresh(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Loaded %d transactions", len(a.ledger.Transactions()))))
			return nil
		},
	}
}

func transactionsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a manual transaction",
		Long: `Add a manual transaction.

Examples:
  bankflow transactions add --title "Farmers market" --amount 23.40
  bankflow transactions add --title Salary --amount 2500 --type income --date 2024-03-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			txn, err := transactionFromFlags(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			created, err := a.ledger.Create(ctx, txn)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Added %s (%s)", created.Title, created.ID)))
			return nil
		},
	}

	addTransactionFlags(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func addTransactionFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "title")
	cmd.Flags().String("amount", "", "amount, always positive")
	cmd.Flags().String("type", "expense", "expense or income")
	cmd.Flags().String("date", "", "date (2006-01-02, default today)")
	cmd.Flags().String("time", "", "time (15:04)")
	cmd.Flags().String("category", "", "category")
	cmd.Flags().String("currency", "EUR", "currency code")
	cmd.Flags().String("notes", "", "notes")
	cmd.Flags().String("description", "", "description")
}

func transactionFromFlags(cmd *cobra.Command) (model.Transaction, error) {
	flags := cmd.Flags()
	title, _ := flags.GetString("title")
	rawAmount, _ := flags.GetString("amount")
	kind, _ := flags.GetString("type")
	date, _ := flags.GetString("date")
	clock, _ := flags.GetString("time")
	category, _ := flags.GetString("category")
	currency, _ := flags.GetString("currency")
	notes, _ := flags.GetString("notes")
	description, _ := flags.GetString("description")

	amount, err := parseAmount(rawAmount)
	if err != nil {
		return model.Transaction{}, err
	}
	if err := validateType(kind); err != nil {
		return model.Transaction{}, err
	}

	now := time.Now()
	if date == "" {
		date = now.Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return model.Transaction{}, &common.UserError{UserMessage: "Invalid --date, expected YYYY-MM-DD", Err: err}
	}
	if clock == "" {
		clock = now.Format("15:04")
	}

	txn := model.Transaction{
		Amount:           amount,
		OriginalAmount:   amount,
		Type:             kind,
		Title:            strings.TrimSpace(title),
		Description:      description,
		Notes:            notes,
		OriginalCurrency: strings.ToUpper(currency),
		Date:             date,
		Time:             clock,
		Source:           model.SourceManual,
	}
	if category != "" {
		txn.Category = &category
		txn.CategorySource = model.CategorySourceManual
	}
	return txn, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, &common.UserError{UserMessage: fmt.Sprintf("Invalid amount %q", raw), Err: err}
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, &common.UserError{UserMessage: "Amounts are positive; use --type income or expense"}
	}
	return amount.Round(2), nil
}

func validateType(kind string) error {
	if kind != "expense" && kind != "income" {
		return &common.UserError{UserMessage: fmt.Sprintf("Invalid --type %q, expected expense or income", kind)}
	}
	return nil
}

func transactionsEditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			patch, err := patchFromFlags(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			updated, err := a.ledger.Update(ctx, args[0], patch)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Updated "+updated.Title))
			return nil
		},
	}

	addTransactionFlags(cmd)
	return cmd
}

// patchFromFlags includes only the flags given on the command line.
func patchFromFlags(cmd *cobra.Command) (model.TransactionPatch, error) {
	var patch model.TransactionPatch
	flags := cmd.Flags()
	str := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}

	patch.Title = str("title")
	patch.Date = str("date")
	patch.Time = str("time")
	patch.Notes = str("notes")
	patch.Description = str("description")
	patch.Category = str("category")
	if patch.Category != nil {
		src := model.CategorySourceManual
		patch.CategorySource = &src
	}
	if kind := str("type"); kind != nil {
		if err := validateType(*kind); err != nil {
			return patch, err
		}
		patch.Type = kind
	}
	if raw := str("amount"); raw != nil {
		amount, err := parseAmount(*raw)
		if err != nil {
			return patch, err
		}
		patch.Amount = &amount
	}
	if patch.Date != nil {
		if _, err := time.Parse(dateLayout, *patch.Date); err != nil {
			return patch, &common.UserError{UserMessage: "Invalid --date, expected YYYY-MM-DD", Err: err}
		}
	}

	if patch == (model.TransactionPatch{}) {
		return patch, &common.UserError{UserMessage: "Nothing to change; pass at least one field flag"}
	}
	return patch, nil
}

func transactionsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				reader := cli.NewLineReader(cmd.InOrStdin(), cmd.OutOrStdout())
				ok, err := reader.Confirm(ctx, fmt.Sprintf("Delete transaction %s?", args[0]))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Nothing deleted"))
					return nil
				}
			}

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.ledger.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted "+args[0]))
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation")
	return cmd
}

func transactionsCategorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize <id> <category>",
		Short: "Set the category of a transaction",
		Long: `Set the category of a transaction. With --similar the backend applies it to
every transaction it considers alike and may remember the choice as a rule.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			apply := model.CategoryApply{Category: args[1], Scope: model.ScopeOne}
			if similar, _ := cmd.Flags().GetBool("similar"); similar {
				apply.Scope = model.ScopeSimilar
			}
			if cmd.Flags().Changed("remember") {
				remember, _ := cmd.Flags().GetBool("remember")
				apply.CreateUserPattern = &remember
			}

			res, err := a.ledger.ApplyCategory(ctx, args[0], apply)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Categorized %d transaction(s) as %s", res.Updated, args[1])))
			return nil
		},
	}
	cmd.Flags().Bool("similar", false, "apply to similar transactions too")
	cmd.Flags().Bool("remember", false, "ask the backend to remember this as a rule")
	return cmd
}

func transactionsImportOFXCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-ofx <file>",
		Short: "Add the entries of an OFX/QFX statement as manual transactions",
		Long: `Read an OFX or QFX statement exported from a bank and add its entries as
manual transactions. Entries already present with the same date, amount and
title are skipped, so importing the same file twice adds nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: runImportOFX,
	}
	cmd.Flags().Bool("dry-run", false, "show what would be added")
	return cmd
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open statement: %w", err)
	}
	defer func() { _ = f.Close() }()

	parsed, err := ofx.NewParser().ParseFile(ctx, f)
	if err != nil {
		return &common.UserError{UserMessage: "Could not read the statement file", Err: err}
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	existing, err := a.ledger.Fetch(ctx)
	if err != nil {
		return err
	}
	missing := ofx.Missing(parsed, existing)
	skipped := len(parsed) - len(missing)

	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		fmt.Fprintln(out, cli.FormatTransactions(missing))
		fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d would be added, %d already present", len(missing), skipped)))
		return nil
	}

	added := 0
	for _, txn := range missing {
		if _, err := a.ledger.Create(ctx, txn); err != nil {
			slog.Warn("Failed to add statement entry", "title", txn.Title, "date", txn.Date, "error", err)
			continue
		}
		added++
	}

	msg := fmt.Sprintf("Added %d transaction(s), skipped %d already present", added, skipped)
	if added < len(missing) {
		fmt.Fprintln(out, cli.FormatWarning(msg))
		return &reportedError{err: fmt.Errorf("%d entries could not be added", len(missing)-added)}
	}
	fmt.Fprintln(out, cli.FormatSuccess(msg))
	return nil
}
