package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dnac-sync/internal/ciscodnac"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Authenticate every tenant and print the result",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Status always talks to the controllers, so no cache
	client, err := ciscodnac.New(ctx, env.db, env.dnacOptions(nil))
	if err != nil {
		return err
	}
	defer client.Close()

	status := client.Status()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TENANT\tSTATUS\tSITES")
	for _, host := range client.Hostnames() {
		sites := "-"
		if status[host] == ciscodnac.StatusSuccess {
			if count, err := client.SitesCount(ctx, host); err == nil {
				sites = fmt.Sprint(count)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", host, status[host], sites)
	}
	return w.Flush()
}
