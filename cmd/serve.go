package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dnac-sync/internal/api"
	"dnac-sync/internal/cache"
	"dnac-sync/internal/logging"
	"dnac-sync/internal/syncer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and the periodic sync",
	Long: `Serves the management API. When sync_interval is set, every enabled
tenant is also synced on that period.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	opts := env.dnacOptions(c)
	ws := api.NewWebSocketManager(env.logger)
	s := syncer.New(env.db, opts, ws, env.logger)

	server, err := api.NewServer(env.cfg, env.logger, api.Dependencies{
		Store:     env.db,
		Syncer:    s,
		DNAC:      opts,
		WebSocket: ws,
		Version:   logging.Version,
	})
	if err != nil {
		return err
	}

	go s.Run(ctx, env.cfg.SyncIntervalDuration())

	env.logger.WithField("cache_backend", env.cfg.CacheBackend).Info("DNA Center sync service starting")
	return server.Start(ctx)
}
