package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dnac-sync/internal/database"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage DNA Center tenants",
}

var tenantAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a tenant",
	Long: `Adds a tenant. The password is read from --password or, when that is
empty, from the DNACSYNC_TENANT_PASSWORD environment variable.`,
	RunE: runTenantAdd,
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	RunE:  runTenantList,
}

var tenantRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a tenant and its stored inventory",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantRemove,
}

var tenantEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTenantEnabled(cmd, args[0], true)
	},
}

var tenantDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTenantEnabled(cmd, args[0], false)
	},
}

var tenantFlags struct {
	hostname string
	username string
	password string
	noVerify bool
	disabled bool
}

func init() {
	tenantAddCmd.Flags().StringVar(&tenantFlags.hostname, "hostname", "", "controller hostname or URL (required)")
	tenantAddCmd.Flags().StringVar(&tenantFlags.username, "username", "", "controller username (required)")
	tenantAddCmd.Flags().StringVar(&tenantFlags.password, "password", "", "controller password")
	tenantAddCmd.Flags().BoolVar(&tenantFlags.noVerify, "insecure", false, "skip TLS certificate verification")
	tenantAddCmd.Flags().BoolVar(&tenantFlags.disabled, "disabled", false, "add the tenant disabled")
	tenantAddCmd.MarkFlagRequired("hostname")
	tenantAddCmd.MarkFlagRequired("username")

	tenantCmd.AddCommand(tenantAddCmd, tenantListCmd, tenantRemoveCmd, tenantEnableCmd, tenantDisableCmd)
	rootCmd.AddCommand(tenantCmd)
}

func runTenantAdd(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.Close()

	password := tenantFlags.password
	if password == "" {
		password = os.Getenv("DNACSYNC_TENANT_PASSWORD")
	}

	tenant, err := env.db.CreateTenant(context.Background(), &database.Tenant{
		Hostname: tenantFlags.hostname,
		Username: tenantFlags.username,
		Password: password,
		Verify:   !tenantFlags.noVerify,
		Enabled:  !tenantFlags.disabled,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added tenant %d (%s)\n", tenant.ID, tenant.Hostname)
	return nil
}

func runTenantList(cmd *cobra.Command, args []string) error {
	env, err := setup()
	if err != nil {
		return err
	}
	defer env.Close()

	tenants, err := env.db.ListTenants(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHOSTNAME\tUSERNAME\tVERIFY\tENABLED")
	for _, t := range tenants {
		fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\n", t.ID, t.Hostname, t.Username, t.Verify, t.Enabled)
	}
	return w.Flush()
}

func runTenantRemove(cmd *cobra.Command, args []string) error {
	id, err := parseTenantID(args[0])
	if err != nil {
		return err
	}

	env, err := setup()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.db.DeleteTenant(context.Background(), id); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed tenant %d\n", id)
	return nil
}

func setTenantEnabled(cmd *cobra.Command, arg string, enabled bool) error {
	id, err := parseTenantID(arg)
	if err != nil {
		return err
	}

	env, err := setup()
	if err != nil {
		return err
	}
	defer env.Close()

	tenant, err := env.db.SetTenantEnabled(context.Background(), id, enabled)
	if err != nil {
		return err
	}

	state := "disabled"
	if tenant.Enabled {
		state = "enabled"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Tenant %d (%s) %s\n", tenant.ID, tenant.Hostname, state)
	return nil
}

func parseTenantID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid tenant id %q", arg)
	}
	return id, nil
}
