package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"capnls/internal/config"
)

// loadEnvFile applies --env-file before any configuration is read.
func loadEnvFile(cmd *cobra.Command) error {
	path, err := cmd.Root().PersistentFlags().GetString("env-file")
	if err != nil {
		return fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if path == "" {
		return nil
	}
	return config.LoadEnvFile(path)
}

// loadConfig resolves --config or discovers capnls.toml upward from startDir,
// then overlays CAPNLS_* variables and --max-diagnostics.
func loadConfig(cmd *cobra.Command, startDir string) (config.Config, error) {
	if err := loadEnvFile(cmd); err != nil {
		return config.Config{}, err
	}
	root := cmd.Root().PersistentFlags()
	path, err := root.GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	var cfg config.Config
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Discover(startDir)
	}
	if err != nil {
		return config.Config{}, err
	}
	cfg, err = cfg.ApplyEnv(os.LookupEnv)
	if err != nil {
		return config.Config{}, err
	}
	maxDiagnostics, err := root.GetInt("max-diagnostics")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	if maxDiagnostics > 0 {
		cfg.Diagnostics.Max = maxDiagnostics
	}
	return cfg, nil
}
