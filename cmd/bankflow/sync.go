package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/bankflow/internal/cli"
	"github.com/Veraticus/bankflow/internal/importer"
	"github.com/Veraticus/bankflow/internal/tui"
	"github.com/Veraticus/bankflow/internal/tui/themes"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ask the backend to sync every stale bank account",
		Long: `Ask the backend to import every account that has not been synced recently.

Auto syncs are throttled locally; --force skips the throttle. With --watch
the started jobs are followed in a live view until they finish. Leaving the
view does not stop the jobs.`,
		RunE: runSync,
	}

	cmd.Flags().Bool("watch", false, "follow the started jobs")
	cmd.Flags().Bool("force", false, "sync even if a sync ran recently")
	cmd.Flags().String("theme", "default", "color theme for --watch (default, catppuccin-mocha)")

	_ = viper.BindPFlag("tui.theme", cmd.Flags().Lookup("theme"))

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.requireLogin(ctx); err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")
	watch, _ := cmd.Flags().GetBool("watch")

	res, err := a.session.Sync(ctx, force)
	if err != nil {
		return err
	}
	if res.Count == 0 {
		fmt.Fprintln(out, cli.FormatInfo("All accounts are up to date."))
		return nil
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Started %d import job(s)", res.Count)))

	if !watch {
		for _, job := range res.Started {
			fmt.Fprintf(out, "  %s  job %s (%d transactions)\n", job.AccountID, job.JobID, job.Total)
		}
		fmt.Fprintln(out, cli.FormatInfo("Run 'bankflow sync --watch' next time to follow them."))
		return nil
	}

	theme := themes.ByName(viper.GetString("tui.theme"))
	statuses, err := tui.RunSyncWatch(ctx, tui.WatchConfig{
		Watcher: a.importer,
		Theme:   &theme,
		Jobs:    res.Started,
	})
	if err != nil {
		return err
	}
	if failed := countFailed(statuses); failed > 0 {
		fmt.Fprintln(os.Stderr, cli.FormatWarning(fmt.Sprintf("%d job(s) did not complete", failed)))
	}
	return nil
}

func countFailed(statuses []importer.JobStatus) int {
	n := 0
	for _, s := range statuses {
		if s.Finished() && s.Err != nil {
			n++
		}
	}
	return n
}
