package capnp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"capnls/internal/diag"
	"capnls/internal/trace"
)

const (
	// DefaultTool is the compiler executable looked up in PATH.
	DefaultTool = "capnp"
	// DefaultTimeout bounds a single compiler run.
	DefaultTimeout = 30 * time.Second
)

// Options configures an Invoker. The zero value runs "capnp" with
// DefaultTimeout and logs warnings to stderr.
type Options struct {
	// Tool is the compiler executable. Empty means DefaultTool.
	Tool string
	// Timeout bounds each run. Negative disables it. Zero is the unset value
	// and means DefaultTimeout; callers map an explicit "0" setting to a
	// negative duration, as config.Config.Timeout does.
	Timeout time.Duration
	// Parse controls how stderr lines become diagnostics.
	Parse ParseOptions
	// Log receives warnings such as skipped search paths. Nil means os.Stderr.
	Log io.Writer
	// Tracer overrides the tracer carried by the call context.
	Tracer trace.Tracer
}

// Invoker runs the compiler for one document at a time.
// It holds no per-call state and is safe for concurrent use.
type Invoker struct {
	tool    string
	timeout time.Duration
	parse   ParseOptions
	log     io.Writer
	tracer  trace.Tracer
}

// NewInvoker builds an Invoker from opts.
func NewInvoker(opts Options) *Invoker {
	tool := strings.TrimSpace(opts.Tool)
	if tool == "" {
		tool = DefaultTool
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	log := opts.Log
	if log == nil {
		log = os.Stderr
	}
	return &Invoker{
		tool:    tool,
		timeout: timeout,
		parse:   opts.Parse,
		log:     log,
		tracer:  opts.Tracer,
	}
}

// Tool returns the compiler executable this invoker runs.
func (inv *Invoker) Tool() string {
	return inv.tool
}

// Diagnostics compiles the document at uri and returns its diagnostics in
// compiler order.
func (inv *Invoker) Diagnostics(ctx context.Context, uri string, searchPaths []string) ([]diag.Diagnostic, error) {
	stderr, err := inv.Run(ctx, uri, searchPaths)
	if err != nil {
		return nil, err
	}
	list := Parse(stderr, inv.parse)

	tr := inv.tracerFor(ctx)
	if tr.Level() >= trace.LevelDebug {
		parent := trace.CurrentSpan(ctx).SpanID
		for _, d := range list {
			trace.Point(tr, trace.ScopeLine, "diagnostic", d.String(), parent)
		}
	}
	return list, nil
}

// Run executes `<tool> compile [-I<dir>]... <path>` and returns its stderr.
// The exit status is ignored.
func (inv *Invoker) Run(ctx context.Context, uri string, searchPaths []string) (string, error) {
	path, err := DocumentPath(uri)
	if err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tr := inv.tracerFor(ctx)
	args := inv.commandArgs(ctx, path, searchPaths)
	span := trace.Begin(tr, trace.ScopeProcess, "capnp.compile", trace.CurrentSpan(ctx).SpanID).Watch(path)
	span.WithExtra("tool", inv.tool).WithExtra("args", strings.Join(args, " "))

	runCtx := ctx
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, inv.tool, args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	runErr := cmd.Run()
	if cmd.ProcessState != nil {
		span.WithExtra("exit", strconv.Itoa(cmd.ProcessState.ExitCode()))
	}
	span.WithExtra("stderr_bytes", strconv.Itoa(stderr.Len()))

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			span.End("canceled")
			return "", fmt.Errorf("%s compile %s: %w", inv.tool, path, ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			span.End("timeout")
			return "", fmt.Errorf("%w after %s: %s", ErrTimeout, inv.timeout, path)
		case errors.As(runErr, &exitErr):
			// Findings are read from stderr regardless of the exit status.
		default:
			span.End("spawn failed")
			return "", fmt.Errorf("run %s: %w", inv.tool, runErr)
		}
	}

	raw := stderr.Bytes()
	if _, _, err := transform.Bytes(encoding.UTF8Validator, raw); err != nil {
		span.End("invalid output")
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidOutput, path, err)
	}
	span.End("")
	return string(raw), nil
}

// commandArgs builds the compiler arguments. Search paths that are not valid
// UTF-8 are logged and left out; empty entries are dropped.
func (inv *Invoker) commandArgs(ctx context.Context, path string, searchPaths []string) []string {
	args := make([]string, 0, len(searchPaths)+2)
	args = append(args, "compile")
	for _, dir := range searchPaths {
		if dir == "" {
			continue
		}
		if !utf8.ValidString(dir) {
			inv.logf("skipping non-UTF-8 search path %q", dir)
			trace.Point(inv.tracerFor(ctx), trace.ScopeProcess, "search path skipped", strconv.Quote(dir), trace.CurrentSpan(ctx).SpanID)
			continue
		}
		args = append(args, "-I"+dir)
	}
	return append(args, path)
}

func (inv *Invoker) tracerFor(ctx context.Context) trace.Tracer {
	if inv.tracer != nil {
		return inv.tracer
	}
	return trace.FromContext(ctx)
}

func (inv *Invoker) logf(format string, args ...any) {
	fmt.Fprintf(inv.log, "capnp: "+format+"\n", args...)
}

// DocumentPath resolves a document URI to a local path. Only file URIs are
// accepted and the resulting path must be valid UTF-8.
func DocumentPath(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrUnsupportedScheme, uri, err)
	}
	if parsed.Scheme != "file" {
		return "", fmt.Errorf("%w %q", ErrUnsupportedScheme, uri)
	}
	if parsed.Host != "" && parsed.Host != "localhost" {
		return "", fmt.Errorf("%w %q: remote host %q", ErrUnsupportedScheme, uri, parsed.Host)
	}
	path := parsed.Path
	if path == "" {
		path = parsed.Opaque
	}
	if path == "" {
		return "", fmt.Errorf("%w %q: empty path", ErrUnsupportedScheme, uri)
	}
	if runtime.GOOS == "windows" && len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	if !utf8.ValidString(path) {
		return "", fmt.Errorf("%w: %q", ErrNonTextPath, path)
	}
	return filepath.FromSlash(path), nil
}

// FileURI converts a local path to a file URI.
func FileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := url.URL{Scheme: "file", Path: slashed}
	return u.String()
}
