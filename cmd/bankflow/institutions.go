package main

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Veraticus/bankflow/internal/cli"
	"github.com/Veraticus/bankflow/internal/model"
)

func institutionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "institutions",
		Short: "Find banks and link accounts",
	}

	cmd.AddCommand(institutionsListCmd())
	cmd.AddCommand(institutionsLinkCmd())
	cmd.AddCommand(institutionsRecentCmd())

	return cmd
}

func institutionsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List banks available for linking",
		Long: `List the banks the backend can link to, optionally for one country.

Examples:
  bankflow institutions list
  bankflow institutions list --country DE`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			country, _ := cmd.Flags().GetString("country")
			insts, err := a.client.Institutions(ctx, country)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInstitutions(insts))
			return nil
		},
	}
	cmd.Flags().String("country", "", "ISO country code")
	return cmd
}

func institutionsLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <institution-id>",
		Short: "Start linking a bank account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			country, _ := cmd.Flags().GetString("country")
			days, _ := cmd.Flags().GetInt("history-days")
			link, err := a.client.StartLink(ctx, model.LinkRequest{
				InstitutionID:     args[0],
				Country:           country,
				MaxHistoricalDays: days,
			})
			if err != nil {
				return err
			}
			if err := a.store.TouchInstitution(ctx, args[0]); err != nil {
				slog.Warn("Failed to remember institution", "error", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess("Open this link to give consent:"))
			fmt.Fprintln(out, "  "+link.Link)
			fmt.Fprintln(out, cli.FormatInfo("Then run 'bankflow import --all' to fetch transactions."))
			return nil
		},
	}
	cmd.Flags().String("country", "", "ISO country code")
	cmd.Flags().Int("history-days", 0, "days of history to request (backend default when 0)")
	return cmd
}

func institutionsRecentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "Show recently linked banks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			recent, err := a.store.RecentInstitutions(ctx)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.SubtleStyle.Render("No recently used banks."))
				return nil
			}

			// Names come from the catalog; ids the backend no longer lists still show.
			all, err := a.client.Institutions(ctx, "")
			if err != nil {
				slog.Debug("Institution catalog unavailable", "error", err)
			}
			insts := make([]model.Institution, 0, len(recent))
			for _, id := range recent {
				i := slices.IndexFunc(all, func(inst model.Institution) bool { return inst.ID == id })
				if i >= 0 {
					insts = append(insts, all[i])
					continue
				}
				insts = append(insts, model.Institution{ID: id})
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInstitutions(insts))
			return nil
		},
	}
}
