package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dnac-sync/internal/cache"
	"dnac-sync/internal/database"
	"dnac-sync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync inventory once and exit",
	Long: `Syncs every enabled tenant, or a single tenant with --tenant, and
prints a summary of each run. A tenant selected with --tenant is synced even
when it is disabled.`,
	RunE: runSync,
}

var syncTenantID int64

func init() {
	syncCmd.Flags().Int64Var(&syncTenantID, "tenant", 0, "only sync the tenant with this id")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.Close()

	c, err := cache.New(env.cfg)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := syncer.New(env.db, env.dnacOptions(c), nil, env.logger)

	var runs []*database.SyncRun
	if syncTenantID != 0 {
		run, err := s.SyncTenant(ctx, syncTenantID)
		if err != nil {
			return err
		}
		runs = []*database.SyncRun{run}
	} else {
		if runs, err = s.SyncAll(ctx); err != nil {
			return err
		}
	}

	printRuns(cmd.OutOrStdout(), runs)

	for _, run := range runs {
		if run.Status != database.SyncStatusSuccess {
			return fmt.Errorf("%d of %d syncs failed", countFailed(runs), len(runs))
		}
	}
	return nil
}

func printRuns(out io.Writer, runs []*database.SyncRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tRUN\tSTATUS\tSITES\tDEVICES\tMAPPED\tERROR")
	for _, run := range runs {
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%d\t%d\t%s\n",
			run.TenantID, run.ID, run.Status, run.Sites, run.Devices, run.Mapped, run.Error)
	}
	w.Flush()
}

func countFailed(runs []*database.SyncRun) int {
	failed := 0
	for _, run := range runs {
		if run.Status != database.SyncStatusSuccess {
			failed++
		}
	}
	return failed
}
