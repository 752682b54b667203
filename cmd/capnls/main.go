package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"capnls/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "capnls",
	Short: "Cap'n Proto language server",
	Long: `capnls runs the capnp compiler on schema files and reports its errors as
diagnostics, to an editor over the Language Server Protocol or on the command line.
Without a subcommand it serves LSP over stdio.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runLSP,
}

// errCheckFailed is returned by check after its report has been printed.
var errCheckFailed = errors.New("check found errors")

// main registers subcommands and persistent flags, then executes the root
// command. Any error exits with status 1.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(lspCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.String("config", "", "path to capnls.toml (default: search upward from the working directory)")
	pf.String("env-file", "", "load CAPNLS_* variables from a dotenv file")
	pf.Int("max-diagnostics", 0, "maximum number of diagnostics per file (0 = from config)")
	pf.String("trace", "", "trace output file (- for stderr)")
	pf.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	pf.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	pf.Int("trace-ring-size", 4096, "events kept by the ring buffer")
	pf.Duration("trace-heartbeat", 0, "emit heartbeat events at this interval (0 = off)")
	pf.String("cpu-profile", "", "write a CPU profile to this file")
	pf.String("mem-profile", "", "write a heap profile to this file on exit")
	pf.String("runtime-trace", "", "write a Go runtime trace to this file")

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errCheckFailed) {
			fmt.Fprintf(os.Stderr, "capnls: %v\n", err)
		}
		os.Exit(1)
	}
}

// isTerminal reports whether w is a file attached to a terminal. Buffers and
// pipes installed through cmd.SetOut never are.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// useColor resolves the --color flag against the writer output goes to.
func useColor(cmd *cobra.Command, out io.Writer) (bool, error) {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return false, fmt.Errorf("failed to get color flag: %w", err)
	}
	switch mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "auto":
		return isTerminal(out), nil
	default:
		return false, fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
}
