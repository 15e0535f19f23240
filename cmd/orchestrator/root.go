package main

import (
	"github.com/distcalc/orchestrator/internal/config"
	"github.com/distcalc/orchestrator/pkg/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:          "orchestrator",
	Short:        "Distributes arithmetic calculations over a fleet of calculator workers",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(runCmd)
}

// setup reads the environment configuration and installs the global logger.
func setup() (*config.Config, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	_, flush, err := log.Setup(cfg.Service.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		flush()
		return nil, nil, err
	}
	zap.S().Debugw("configuration loaded", "database", cfg.Database.Type, "workers", cfg.Fleet.Workers, "auth", cfg.Service.Auth.AuthenticationType)

	return cfg, flush, nil
}
