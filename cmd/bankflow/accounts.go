package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/bankflow/internal/cli"
)

func accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List linked bank accounts and today's import allowance",
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

			accounts, err := a.client.Accounts(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(accounts) == 0 {
				fmt.Fprintln(out, cli.FormatWarning("No linked accounts. Link one with 'bankflow institutions link <id>'."))
				return nil
			}

			remaining := map[string]int{}
			quota, err := a.client.Quota(ctx)
			if err != nil {
				slog.Debug("Quota unavailable", "error", err)
			} else {
				for _, acc := range quota.Accounts {
					remaining[acc.AccountID] = acc.Remaining
				}
			}

			fmt.Fprintln(out, cli.FormatTitle(cli.BankIcon+" Linked accounts"))
			for _, id := range accounts {
				left := "?"
				if n, ok := remaining[id]; ok {
					left = strconv.Itoa(n)
				}
				fmt.Fprintf(out, "  %s  %s\n", id, cli.SubtleStyle.Render(left+" imports left today"))
			}
			return nil
		},
	}
}
