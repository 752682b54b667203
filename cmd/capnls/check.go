package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"capnls/internal/capnp"
	"capnls/internal/config"
	"capnls/internal/diag"
	"capnls/internal/diagfmt"
	"capnls/internal/observ"
	"capnls/internal/trace"
	"capnls/internal/version"
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] <file.capnp>...",
	Short: "Compile schema files and report diagnostics",
	Long: `Run capnp compile on each file and print the diagnostics it reports.
The exit status is 1 when any file fails to run or reports an error.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("format", "pretty", "output format (pretty|json|sarif|msgpack)")
	checkCmd.Flags().Int("jobs", 0, "max files checked in parallel (0=auto)")
	checkCmd.Flags().StringSliceP("import-path", "I", nil, "add a capnp search path (repeatable)")
	checkCmd.Flags().Bool("warnings", false, "also report compiler warning lines")
	checkCmd.Flags().String("tool", "", "capnp executable (default from config)")
	checkCmd.Flags().Duration("timeout", 0, "per-file compiler timeout (default from config; 0 or negative disables)")
	checkCmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
	checkCmd.Flags().Bool("no-context", false, "do not print source lines under pretty diagnostics")
	checkCmd.Flags().Bool("timings", false, "print per-file compiler timings to stderr")
}

type checkOptions struct {
	format      string
	jobs        int
	searchPaths []string
	fullPath    bool
	showContext bool
	timer       *observ.Timer
}

// runCheck compiles every argument through one shared Invoker, renders the
// collected reports, and returns errCheckFailed when any file failed or
// reported an error.
func runCheck(cmd *cobra.Command, args []string) error {
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

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	cfg, err := loadConfig(cmd, cwd)
	if err != nil {
		return err
	}
	opts, err := readCheckFlags(cmd, &cfg)
	if err != nil {
		return err
	}
	timeout, err := checkTimeout(cmd, cfg)
	if err != nil {
		return err
	}

	inv := capnp.NewInvoker(capnp.Options{
		Tool:    cfg.Compiler.Tool,
		Timeout: timeout,
		Parse:   capnp.ParseOptions{Warnings: cfg.Diagnostics.Warnings},
		Log:     cmd.ErrOrStderr(),
		Tracer:  tracer,
	})

	span := trace.Begin(tracer, trace.ScopeSession, "check", 0).
		WithExtra("files", strconv.Itoa(len(args))).
		WithExtra("jobs", strconv.Itoa(opts.jobs))
	ctx := trace.WithSpanContext(cmd.Context(), trace.SpanContext{SpanID: span.ID()})
	reports := checkFiles(ctx, inv, args, opts)
	counts := diagfmt.Count(reports)
	span.WithExtra("errors", strconv.Itoa(counts.Errors))
	span.End("")

	if opts.timer != nil {
		fmt.Fprint(cmd.ErrOrStderr(), opts.timer.Summary())
	}

	out := cmd.OutOrStdout()
	if err := renderReports(cmd, out, reports, cfg, opts, cwd); err != nil {
		return err
	}
	if counts.Errors > 0 || counts.Failed > 0 {
		return errCheckFailed
	}
	return nil
}

func readCheckFlags(cmd *cobra.Command, cfg *config.Config) (checkOptions, error) {
	var opts checkOptions
	var err error
	flags := cmd.Flags()
	if opts.format, err = flags.GetString("format"); err != nil {
		return opts, fmt.Errorf("failed to get format flag: %w", err)
	}
	opts.format = strings.ToLower(opts.format)
	switch opts.format {
	case "pretty", "json", "sarif", "msgpack":
	default:
		return opts, fmt.Errorf("unknown format: %s", opts.format)
	}
	if opts.jobs, err = flags.GetInt("jobs"); err != nil {
		return opts, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if opts.jobs <= 0 {
		opts.jobs = runtime.GOMAXPROCS(0)
	}
	if opts.fullPath, err = flags.GetBool("fullpath"); err != nil {
		return opts, fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	noContext, err := flags.GetBool("no-context")
	if err != nil {
		return opts, fmt.Errorf("failed to get no-context flag: %w", err)
	}
	opts.showContext = !noContext
	timings, err := flags.GetBool("timings")
	if err != nil {
		return opts, fmt.Errorf("failed to get timings flag: %w", err)
	}
	if timings {
		opts.timer = observ.NewTimer()
	}

	if flags.Changed("warnings") {
		if cfg.Diagnostics.Warnings, err = flags.GetBool("warnings"); err != nil {
			return opts, fmt.Errorf("failed to get warnings flag: %w", err)
		}
	}
	tool, err := flags.GetString("tool")
	if err != nil {
		return opts, fmt.Errorf("failed to get tool flag: %w", err)
	}
	if tool != "" {
		cfg.Compiler.Tool = tool
	}

	includes, err := flags.GetStringSlice("import-path")
	if err != nil {
		return opts, fmt.Errorf("failed to get import-path flag: %w", err)
	}
	for _, dir := range includes {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		opts.searchPaths = append(opts.searchPaths, dir)
	}
	opts.searchPaths = append(opts.searchPaths, cfg.Imports.Paths...)
	return opts, nil
}

// checkTimeout applies --timeout over [compiler].timeout. As in the config
// file, an explicit zero disables the limit; only an unset value falls back
// to capnp.DefaultTimeout.
func checkTimeout(cmd *cobra.Command, cfg config.Config) (time.Duration, error) {
	if !cmd.Flags().Changed("timeout") {
		return cfg.Timeout()
	}
	d, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return 0, fmt.Errorf("failed to get timeout flag: %w", err)
	}
	if d <= 0 {
		return -1, nil
	}
	return d, nil
}

// checkFiles runs at most opts.jobs compilers at once. A failing file is
// recorded in its report and does not stop the others.
func checkFiles(ctx context.Context, inv *capnp.Invoker, paths []string, opts checkOptions) []diagfmt.FileReport {
	reports := make([]diagfmt.FileReport, len(paths))
	var g errgroup.Group
	g.SetLimit(opts.jobs)
	for i, path := range paths {
		g.Go(func() error {
			if opts.timer == nil {
				reports[i] = checkFile(ctx, inv, path, opts.searchPaths)
				return nil
			}
			opts.timer.Time(path, func() string {
				reports[i] = checkFile(ctx, inv, path, opts.searchPaths)
				return reportNote(reports[i])
			})
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func checkFile(ctx context.Context, inv *capnp.Invoker, path string, searchPaths []string) diagfmt.FileReport {
	report := diagfmt.FileReport{Path: path}
	abs, err := filepath.Abs(path)
	if err != nil {
		report.Err = fmt.Errorf("failed to resolve %q: %w", path, err)
		return report
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		report.Err = err
		return report
	}
	report.Path = abs
	report.Source = src
	report.Diagnostics, report.Err = inv.Diagnostics(ctx, capnp.FileURI(abs), searchPaths)
	return report
}

func reportNote(r diagfmt.FileReport) string {
	if r.Err != nil {
		return "failed"
	}
	return fmt.Sprintf("%d diagnostic(s)", len(r.Diagnostics))
}

func renderReports(cmd *cobra.Command, out io.Writer, reports []diagfmt.FileReport, cfg config.Config, opts checkOptions, cwd string) error {
	pathMode := diagfmt.PathModeAuto
	if opts.fullPath {
		pathMode = diagfmt.PathModeAbsolute
	}
	switch opts.format {
	case "pretty":
		colored, err := useColor(cmd, out)
		if err != nil {
			return err
		}
		shown, omitted := limitReports(reports, cfg.Diagnostics.Max)
		if err := diagfmt.Pretty(out, shown, diagfmt.PrettyOpts{
			Color:    colored,
			PathMode: pathMode,
			BaseDir:  cwd,
			Context:  opts.showContext,
		}); err != nil {
			return err
		}
		if omitted > 0 {
			fmt.Fprintf(out, "%d more diagnostic(s) not shown (see --max-diagnostics)\n", omitted)
		}
		return diagfmt.Summary(out, diagfmt.Count(reports), colored)
	case "json", "msgpack":
		jsonOpts := diagfmt.JSONOpts{
			PathMode: pathMode,
			BaseDir:  cwd,
			Max:      cfg.Diagnostics.Max,
		}
		if opts.format == "msgpack" {
			return diagfmt.Msgpack(out, reports, jsonOpts)
		}
		return diagfmt.JSON(out, reports, jsonOpts)
	case "sarif":
		return diagfmt.Sarif(out, reports, diagfmt.SarifRunMeta{
			ToolName:       diag.Source,
			ToolVersion:    version.Version,
			InvocationArgs: os.Args[1:],
			BaseDir:        cwd,
		})
	default:
		return fmt.Errorf("unknown format: %s", opts.format)
	}
}

// limitReports caps each report at max diagnostics through a diag.Bag and
// returns how many were dropped in total.
func limitReports(reports []diagfmt.FileReport, max int) ([]diagfmt.FileReport, int) {
	if max <= 0 {
		return reports, 0
	}
	out := make([]diagfmt.FileReport, len(reports))
	omitted := 0
	for i, r := range reports {
		bag := diag.NewBag(max)
		bag.AddAll(r.Diagnostics)
		r.Diagnostics = bag.Items()
		omitted += bag.Dropped()
		out[i] = r
	}
	return out, omitted
}
