package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/bankflow/internal/cli"
	"github.com/Veraticus/bankflow/internal/common"
	"github.com/Veraticus/bankflow/internal/cooldown"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync cooldown, cache age and the last auto sync",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			var lines []string
			row := func(label, value string) {
				lines = append(lines, fmt.Sprintf("%-15s %s", label+":", value))
			}

			// Read the age first; loading the profile drops an expired snapshot.
			age, cached, err := a.cache.Age(ctx)
			if err != nil {
				return err
			}

			loggedIn := true
			if err := a.requireLogin(ctx); err != nil {
				if !errors.Is(err, common.ErrNotLoggedIn) {
					return err
				}
				loggedIn = false
			}
			if loggedIn {
				a.maybeAutoSync(ctx)
			}

			switch profile, _ := a.session.Profile(ctx); {
			case !loggedIn:
				row("Account", "not logged in")
			case profile != nil:
				row("Account", profile.Email)
			default:
				row("Account", "logged in")
			}

			remaining, cooling, err := a.guard.Remaining(ctx)
			if err != nil {
				return err
			}
			if cooling {
				row("Bank sync", cli.FormatCooldown("cooling down, "+cooldown.FormatRemaining(remaining)+" left"))
			} else {
				row("Bank sync", "available")
			}

			switch {
			case !cached:
				row("Local copy", "none")
			case age > a.cache.TTL():
				row("Local copy", "expired, updated "+cli.FormatAge(age))
			default:
				row("Local copy", "updated "+cli.FormatAge(age))
			}

			last, ok, err := a.session.LastAutoSync(ctx)
			if err != nil {
				return err
			}
			if ok {
				row("Last auto sync", cli.FormatAge(time.Since(last)))
			} else {
				row("Last auto sync", "never")
			}

			if loggedIn {
				if quota, err := a.client.Quota(ctx); err != nil {
					slog.Debug("Quota unavailable", "error", err)
				} else if left := quota.Remaining(); left >= 0 {
					row("Imports left", fmt.Sprintf("%d of %d today", left, quota.SoftLimit))
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(cli.SyncIcon+" bankflow status", strings.Join(lines, "\n")))
			return nil
		},
	}
}
