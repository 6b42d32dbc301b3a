package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/bankflow/internal/cli"
	"github.com/Veraticus/bankflow/internal/common"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage custom categories",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List custom categories",
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
			cats, err := a.ledger.Categories(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatCategories(cats))
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a custom category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			name := strings.TrimSpace(args[0])
			if name == "" {
				return &common.UserError{UserMessage: "Category name cannot be empty"}
			}
			icon, _ := cmd.Flags().GetString("icon")

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			cat, err := a.ledger.CreateCategory(ctx, name, icon)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created category %s (%s)", cat.Name, cat.ID)))
			return nil
		},
	}
	add.Flags().String("icon", "", "icon path shown next to the category")

	del := &cobra.Command{
		Use:   "delete <name-or-id>",
		Short: "Delete a custom category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			cats, err := a.ledger.Categories(ctx)
			if err != nil {
				return err
			}
			id := ""
			for _, c := range cats {
				if c.ID == args[0] || strings.EqualFold(c.Name, args[0]) {
					id = c.ID
					break
				}
			}
			if id == "" {
				return &common.UserError{UserMessage: fmt.Sprintf("No custom category named %q", args[0])}
			}

			if err := a.ledger.DeleteCategory(ctx, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted category "+args[0]))
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}
