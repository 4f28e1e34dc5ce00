package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"dnac-sync/internal/cache"
	"dnac-sync/internal/ciscodnac"
	"dnac-sync/internal/config"
	"dnac-sync/internal/database"
	"dnac-sync/internal/logging"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dnac-sync",
	Short: "Cisco DNA Center inventory sync service",
	Long: `Keeps a local inventory of devices and sites for every configured
Cisco DNA Center tenant. Tenants are authenticated independently, inventory
is read page by page, and devices are mapped to the site they belong to.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// environment is what every command needs: configuration, a logger and the database
type environment struct {
	cfg    *config.Config
	logger *logrus.Logger
	db     *database.DB
}

func setup() (*environment, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := logging.Initialize(cfg.LogLevel)
	if cfg.LogFile != "" {
		if err := logging.SetupFileLogging(logger, cfg.LogFile); err != nil {
			return nil, fmt.Errorf("failed to set up file logging: %w", err)
		}
	}

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		return nil, err
	}

	db, err := database.NewDB(database.Config{
		Driver:        cfg.DatabaseDriver,
		DatabasePath:  cfg.DatabasePath,
		DSN:           cfg.DatabaseDSN,
		EncryptionKey: key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &environment{cfg: cfg, logger: logger, db: db}, nil
}

func (e *environment) Close() {
	e.db.Close()
}

// dnacOptions builds the controller access options from the configuration
func (e *environment) dnacOptions(c cache.Cache) ciscodnac.Options {
	return ciscodnac.Options{
		Cache:          c,
		CacheTTL:       e.cfg.CacheTTLDuration(),
		PageSize:       e.cfg.PageSize,
		Workers:        e.cfg.MembershipWorkers,
		Parallel:       e.cfg.ParallelMembership,
		RequestTimeout: e.cfg.RequestTimeoutDuration(),
		Logger:         e.logger,
	}
}
