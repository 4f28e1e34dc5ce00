package main

import (
	"bytes"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dnac-sync/internal/dnac"
	"dnac-sync/internal/dnac/dnactest"
)

func setupCLI(t *testing.T) {
	t.Helper()

	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	t.Setenv("DNACSYNC_DATABASE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("DNACSYNC_ENCRYPTION_KEY", key)
	t.Setenv("DNACSYNC_API_SERVER_AUTH_ENABLED", "false")
	t.Setenv("DNACSYNC_LOG_LEVEL", "error")
	t.Setenv("DNACSYNC_TENANT_PASSWORD", "")

	configFile, logLevel = "", ""
	syncTenantID = 0
	tenantFlags.hostname, tenantFlags.username, tenantFlags.password = "", "", ""
	tenantFlags.noVerify, tenantFlags.disabled = false, false
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	return out.String(), err
}

func TestTenantCommands(t *testing.T) {
	setupCLI(t)

	out, err := execute(t, "tenant", "add", "--hostname", "dnac.example.com", "--username", "admin", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Added tenant 1 (dnac.example.com)")

	out, err = execute(t, "tenant", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "dnac.example.com")
	assert.Contains(t, lines[1], "true")

	out, err = execute(t, "tenant", "disable", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "disabled")

	out, err = execute(t, "tenant", "enable", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "enabled")

	_, err = execute(t, "tenant", "remove", "nope")
	assert.Error(t, err)

	out, err = execute(t, "tenant", "remove", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed tenant 1")

	out, err = execute(t, "tenant", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "dnac.example.com")
}

func TestTenantAddRequiresPassword(t *testing.T) {
	setupCLI(t)

	_, err := execute(t, "tenant", "add", "--hostname", "dnac.example.com", "--username", "admin")
	assert.Error(t, err)
}

func TestSyncAndStatusCommands(t *testing.T) {
	setupCLI(t)

	controller := dnactest.NewServer("admin", "secret")
	defer controller.Close()
	controller.SetSites([]dnac.Site{{ID: "s-1", Name: "HQ", SiteNameHierarchy: "Global/HQ"}})
	controller.SetDevices([]dnac.Device{{ID: "d-1", Hostname: "core-1", SerialNumber: "FOC1"}})
	controller.SetMembership("s-1", "FOC1")

	t.Setenv("DNACSYNC_TENANT_PASSWORD", "secret")
	_, err := execute(t, "tenant", "add", "--hostname", controller.Hostname(), "--username", "admin", "--insecure")
	require.NoError(t, err)

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, controller.Hostname())
	assert.Contains(t, out, "success")

	out, err = execute(t, "sync")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^1\s+\d+\s+success\s+1\s+1\s+1`, lines[1])

	out, err = execute(t, "sync", "--tenant", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "success")
}

func TestSyncReportsFailures(t *testing.T) {
	setupCLI(t)

	controller := dnactest.NewServer("admin", "secret")
	defer controller.Close()

	_, err := execute(t, "tenant", "add", "--hostname", controller.Hostname(), "--username", "admin", "--insecure", "--password", "wrong")
	require.NoError(t, err)

	out, err := execute(t, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 syncs failed")
	assert.Contains(t, out, "failed")
}
