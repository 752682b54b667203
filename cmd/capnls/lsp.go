package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"capnls/internal/lsp"
	"capnls/internal/trace"
	"capnls/internal/version"
)

var lspCmd = &cobra.Command{
	Use:          "lsp",
	Short:        "Run the capnls language server over stdio",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runLSP,
}

func runLSP(cmd *cobra.Command, _ []string) error {
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()
	tracer := trace.FromContext(cmd.Context())
	defer dumpTraceOnPanic(tracer)

	opts := lsp.ServerOptions{
		Version: version.Version,
		Log:     os.Stderr,
		Tracer:  tracer,
	}
	root := cmd.Root().PersistentFlags()
	configPath, err := root.GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	if configPath != "" {
		cfg, err := loadConfig(cmd, "")
		if err != nil {
			return err
		}
		opts.Config = &cfg
	} else if err := loadEnvFile(cmd); err != nil {
		return err
	}
	if opts.MaxDiagnostics, err = root.GetInt("max-diagnostics"); err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}

	server := lsp.NewServer(os.Stdin, os.Stdout, opts)
	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("lsp exit without shutdown")
		}
		return err
	}
	return nil
}
