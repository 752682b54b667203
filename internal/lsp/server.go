package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"capnls/internal/capnp"
	"capnls/internal/config"
	"capnls/internal/diag"
	"capnls/internal/trace"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// DiagnoseRequest describes one compiler run for one document.
type DiagnoseRequest struct {
	URI         string
	SearchPaths []string
	Tool        string
	Timeout     time.Duration
	Warnings    bool
}

// DiagnoseFunc computes the diagnostics of one document.
type DiagnoseFunc func(ctx context.Context, req DiagnoseRequest) ([]diag.Diagnostic, error)

// CompilerDiagnose returns a DiagnoseFunc backed by the capnp compiler.
// Invoker warnings go to log.
func CompilerDiagnose(log io.Writer) DiagnoseFunc {
	return func(ctx context.Context, req DiagnoseRequest) ([]diag.Diagnostic, error) {
		inv := capnp.NewInvoker(capnp.Options{
			Tool:    req.Tool,
			Timeout: req.Timeout,
			Parse:   capnp.ParseOptions{Warnings: req.Warnings},
			Log:     log,
		})
		return inv.Diagnostics(ctx, req.URI, req.SearchPaths)
	}
}

// ServerOptions configures LSP server behavior.
type ServerOptions struct {
	Debounce time.Duration
	Diagnose DiagnoseFunc
	// Config is used as given when set. Otherwise capnls.toml is discovered
	// from the workspace root during initialize.
	Config *config.Config
	// MaxDiagnostics overrides the configured per-document cap when positive.
	MaxDiagnostics int
	// Log receives server log lines. Nil means os.Stderr.
	Log io.Writer
	// Tracer overrides the tracer carried by the Run context.
	Tracer trace.Tracer
	// Version is reported in serverInfo.
	Version string
}

type docState struct {
	version int
	// generation changes on open and save; didChange leaves it alone
	// because the compiler reads the file from disk.
	generation uint64
}

type diagnosticRun struct {
	cancel context.CancelFunc
}

// Server handles stdio JSON-RPC for capnls.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex
	mu     sync.Mutex

	docs      map[string]*docState
	published map[string]struct{}
	timers    map[string]*time.Timer
	runs      map[string]*diagnosticRun
	nextGen   uint64

	workspaceRoot     string
	folders           []string
	cfg               config.Config
	cfgFixed          bool
	settings          capnlsSettings
	shutdownRequested bool

	debounce       time.Duration
	diagnose       DiagnoseFunc
	maxDiagnostics int
	baseCtx        context.Context
	log            io.Writer
	tracer         trace.Tracer
	traceLSP       bool
	version        string
}

// NewServer constructs a new LSP server.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	logw := opts.Log
	if logw == nil {
		logw = os.Stderr
	}
	diagnoseFn := opts.Diagnose
	if diagnoseFn == nil {
		diagnoseFn = CompilerDiagnose(logw)
	}
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	return &Server{
		in:             bufio.NewReader(in),
		out:            bufio.NewWriter(out),
		docs:           make(map[string]*docState),
		published:      make(map[string]struct{}),
		timers:         make(map[string]*time.Timer),
		runs:           make(map[string]*diagnosticRun),
		cfg:            cfg,
		cfgFixed:       opts.Config != nil,
		debounce:       debounce,
		diagnose:       diagnoseFn,
		maxDiagnostics: opts.MaxDiagnostics,
		baseCtx:        context.Background(),
		log:            logw,
		tracer:         opts.Tracer,
		version:        opts.Version,
	}
}

// Run serves LSP requests until exit or end of input.
func (s *Server) Run(ctx context.Context) error {
	tracer := s.tracer
	if tracer == nil {
		tracer = trace.FromContext(ctx)
	}
	ctx = trace.WithTracer(ctx, tracer)
	span := trace.Begin(tracer, trace.ScopeSession, "lsp.session", 0)
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})

	s.mu.Lock()
	s.baseCtx = ctx
	s.tracer = tracer
	s.mu.Unlock()
	defer s.stopAll()

	for {
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				span.End("eof")
				return nil
			}
			span.End("error")
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logf("failed to parse message: %v", err)
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(&msg); err != nil {
			span.End(err.Error())
			return err
		}
	}
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	s.mu.Lock()
	shuttingDown := s.shutdownRequested
	traceLSP := s.traceLSP
	s.mu.Unlock()
	if traceLSP {
		s.logf("<- %s", msg.Method)
	}
	if shuttingDown && msg.Method != "exit" {
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeInvalidRequest, "server is shutting down")
		}
		return nil
	}

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		if shuttingDown {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg)
	case "workspace/didChangeWorkspaceFolders":
		return s.handleDidChangeWorkspaceFolders(msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeMethodNotFound, "method not found")
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
	}
	root := ""
	if params.RootURI != "" {
		root = uriToPath(params.RootURI)
	}
	if root == "" && params.RootPath != "" {
		root = params.RootPath
	}
	folders := make([]string, 0, len(params.WorkspaceFolders))
	for _, f := range params.WorkspaceFolders {
		if path := uriToPath(f.URI); path != "" {
			folders = append(folders, path)
		}
	}
	if root == "" && len(folders) > 0 {
		root = folders[0]
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		if len(folders) == 0 {
			folders = append(folders, root)
		}
	}

	s.mu.Lock()
	s.workspaceRoot = root
	s.folders = folders
	discover := !s.cfgFixed && root != ""
	s.mu.Unlock()

	if discover {
		s.loadConfig(root)
	}
	if len(params.InitializationOptions) > 0 {
		var opts capnlsSettings
		if err := json.Unmarshal(params.InitializationOptions, &opts); err != nil {
			s.logf("ignoring initializationOptions: %v", err)
		} else {
			s.mergeSettings(opts)
		}
	}

	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    syncIncremental,
			},
			Workspace: &workspaceServerCapabilities{
				WorkspaceFolders: workspaceFoldersServerCapabilities{
					Supported:           true,
					ChangeNotifications: true,
				},
			},
		},
		ServerInfo: &serverInfo{Name: diag.Source, Version: s.version},
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) loadConfig(root string) {
	cfg, err := config.Discover(root)
	if err == nil {
		cfg, err = cfg.ApplyEnv(os.LookupEnv)
	}
	if err != nil {
		s.logf("config: %v", err)
		return
	}
	if cfg.Path != "" {
		s.logf("config: using %s", cfg.Path)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	s.stopAll()
	s.clearPublishedDiagnostics()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didOpen: %v", err)
		return nil
	}
	uri := params.TextDocument.URI
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	s.nextGen++
	s.docs[uri] = &docState{version: params.TextDocument.Version, generation: s.nextGen}
	s.mu.Unlock()
	s.scheduleDiagnostics(uri)
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didChange: %v", err)
		return nil
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	if doc, ok := s.docs[uri]; ok {
		doc.version = params.TextDocument.Version
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) handleDidSave(msg *rpcMessage) error {
	var params didSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didSave: %v", err)
		return nil
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if ok {
		s.nextGen++
		doc.generation = s.nextGen
	}
	s.mu.Unlock()
	if ok {
		s.scheduleDiagnostics(uri)
	}
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didClose: %v", err)
		return nil
	}
	uri := params.TextDocument.URI
	s.mu.Lock()
	delete(s.docs, uri)
	s.stopDocumentLocked(uri)
	_, hadDiagnostics := s.published[uri]
	delete(s.published, uri)
	s.mu.Unlock()
	if hadDiagnostics {
		if err := s.sendPublish(uri, nil, nil); err != nil {
			s.logf("failed to clear diagnostics: %v", err)
		}
	}
	return nil
}

func (s *Server) handleDidChangeWorkspaceFolders(msg *rpcMessage) error {
	var params didChangeWorkspaceFoldersParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didChangeWorkspaceFolders: %v", err)
		return nil
	}
	removed := make(map[string]struct{}, len(params.Event.Removed))
	for _, f := range params.Event.Removed {
		if path := uriToPath(f.URI); path != "" {
			removed[path] = struct{}{}
		}
	}
	s.mu.Lock()
	folders := make([]string, 0, len(s.folders)+len(params.Event.Added))
	for _, f := range s.folders {
		if _, gone := removed[f]; !gone {
			folders = append(folders, f)
		}
	}
	for _, f := range params.Event.Added {
		if path := uriToPath(f.URI); path != "" {
			folders = append(folders, path)
		}
	}
	s.folders = folders
	s.mu.Unlock()
	s.rescheduleAll()
	return nil
}

// stopAll cancels pending and running diagnostics for every document.
func (s *Server) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uri := range s.timers {
		s.stopDocumentLocked(uri)
	}
	for uri := range s.runs {
		s.stopDocumentLocked(uri)
	}
}

func (s *Server) stopDocumentLocked(uri string) {
	if t := s.timers[uri]; t != nil {
		t.Stop()
		delete(s.timers, uri)
	}
	if r := s.runs[uri]; r != nil {
		r.cancel()
		delete(s.runs, uri)
	}
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": rpcError{
			Code:    code,
			Message: message,
		},
	}
	return s.send(msg)
}

func (s *Server) sendPublish(uri string, version *int, list []lspDiagnostic) error {
	if list == nil {
		list = []lspDiagnostic{}
	}
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  "textDocument/publishDiagnostics",
		"params": publishDiagnosticsParams{
			URI:         uri,
			Version:     version,
			Diagnostics: list,
		},
	}
	return s.send(msg)
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) logf(format string, args ...any) {
	fmt.Fprintf(s.log, "lsp: "+format+"\n", args...)
}
