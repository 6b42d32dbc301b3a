package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Veraticus/bankflow/internal/api"
	"github.com/Veraticus/bankflow/internal/cli"
	"github.com/Veraticus/bankflow/internal/common"
	"github.com/Veraticus/bankflow/internal/model"
)

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the finance backend",
		Long: `Log in with your email and password. After logging in, bankflow loads your
transactions and categories and asks the backend to sync stale bank accounts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuth(cmd, false)
		},
	}
	addCredentialFlags(cmd)
	return cmd
}

func registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAuth(cmd, true)
		},
	}
	addCredentialFlags(cmd)
	return cmd
}

func addCredentialFlags(cmd *cobra.Command) {
	cmd.Flags().String("email", "", "account email (prompted when empty)")
	cmd.Flags().Bool("password-stdin", false, "read the password from stdin")
}

func runAuth(cmd *cobra.Command, register bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	email, _ := cmd.Flags().GetString("email")
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")

	reader := cli.NewLineReader(cmd.InOrStdin(), out)
	if email == "" {
		var err error
		if email, err = reader.Prompt(ctx, "Email", ""); err != nil {
			return err
		}
	}
	password, err := readPassword(ctx, cmd.InOrStdin(), out, reader, fromStdin)
	if err != nil {
		return err
	}
	if email == "" || password == "" {
		return &common.UserError{UserMessage: "Email and password are required"}
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var profile *model.UserProfile
	if register {
		profile, err = a.session.Register(ctx, email, password)
	} else {
		profile, err = a.session.Login(ctx, email, password)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out, cli.FormatSuccess("Logged in as "+profile.Email))
	fmt.Fprintln(out, cli.FormatInfo("Loading your transactions..."))
	a.session.Wait()

	count := len(a.ledger.Transactions())
	fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d transactions available offline", count)))
	return nil
}

// readPassword reads without echo from a terminal, otherwise one line.
func readPassword(ctx context.Context, in io.Reader, out io.Writer, reader *cli.LineReader, fromStdin bool) (string, error) {
	if f, ok := in.(*os.File); ok && !fromStdin && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(out, cli.FormatPrompt("Password"))
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	if !fromStdin {
		fmt.Fprint(out, cli.FormatPrompt("Password"))
	}
	return reader.ReadLine(ctx)
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget local data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.session.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Logged out"))
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Verify the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			profile, err := a.session.Restore(ctx)
			if errors.Is(err, api.ErrUnauthorized) {
				return &common.UserError{
					UserMessage: "Your session has expired. Run 'bankflow login' again.",
					Err:         err,
				}
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Logged in as "+profile.Email))
			if created := profile.CreatedAt; created != "" {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Member since "+created))
			}
			return nil
		},
	}
}
