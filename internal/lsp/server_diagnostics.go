package lsp

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"capnls/internal/diag"
	"capnls/internal/trace"
)

func (s *Server) scheduleDiagnostics(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	if !ok || s.shutdownRequested {
		return
	}
	s.stopDocumentLocked(uri)
	gen := doc.generation
	s.timers[uri] = time.AfterFunc(s.debounce, func() {
		s.runDiagnostics(uri, gen)
	})
}

// rescheduleAll re-runs every open document, discarding in-flight results
// computed with the previous settings.
func (s *Server) rescheduleAll() {
	s.mu.Lock()
	uris := make([]string, 0, len(s.docs))
	for uri, doc := range s.docs {
		s.nextGen++
		doc.generation = s.nextGen
		uris = append(uris, uri)
	}
	s.mu.Unlock()
	sort.Strings(uris)
	for _, uri := range uris {
		s.scheduleDiagnostics(uri)
	}
}

func (s *Server) runDiagnostics(uri string, gen uint64) {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	if !ok || doc.generation != gen || s.shutdownRequested {
		s.mu.Unlock()
		return
	}
	delete(s.timers, uri)
	if prev := s.runs[uri]; prev != nil {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	run := &diagnosticRun{cancel: cancel}
	s.runs[uri] = run
	req := s.requestLocked(uri)
	version := doc.version
	limit := s.limitLocked()
	traceLSP := s.traceLSP
	tracer := s.tracer
	s.mu.Unlock()
	defer cancel()

	span := trace.Begin(tracer, trace.ScopeDocument, "lsp.diagnostics", trace.CurrentSpan(ctx).SpanID).
		WithExtra("uri", uri).
		WithExtra("version", strconv.Itoa(version))
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: span.ID()})
	if traceLSP {
		s.logf("diagnostics start: uri=%s version=%d gen=%d search=%v", uri, version, gen, req.SearchPaths)
	}

	list, err := s.diagnose(ctx, req)
	canceled := ctx.Err() != nil || errors.Is(err, context.Canceled)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runs[uri] == run {
		delete(s.runs, uri)
	}
	current, ok := s.docs[uri]
	stale := !ok || current.generation != gen || s.shutdownRequested
	switch {
	case canceled:
		span.End("canceled")
		return
	case err != nil:
		s.logf("diagnostics failed for %s: %v", uri, err)
		span.End("error")
		return
	case stale:
		if traceLSP {
			s.logf("diagnostics discard: uri=%s gen=%d reason=stale", uri, gen)
		}
		span.End("stale")
		return
	}

	// Publishing under s.mu orders this send against the clear sent by didClose.
	out := toLSPDiagnostics(uri, list, limit)
	s.published[uri] = struct{}{}
	if err := s.sendPublish(uri, &version, out); err != nil {
		s.logf("failed to publish diagnostics: %v", err)
	}
	span.WithExtra("count", strconv.Itoa(len(out)))
	span.End("")
	if traceLSP {
		s.logf("diagnostics publish: uri=%s version=%d count=%d", uri, version, len(out))
	}
}

func (s *Server) requestLocked(uri string) DiagnoseRequest {
	timeout, err := s.cfg.Timeout()
	if err != nil {
		timeout = 0
	}
	warnings := s.cfg.Diagnostics.Warnings
	if s.settings.Warnings != nil {
		warnings = *s.settings.Warnings
	}
	return DiagnoseRequest{
		URI:         uri,
		SearchPaths: s.searchPathsLocked(),
		Tool:        s.cfg.Compiler.Tool,
		Timeout:     timeout,
		Warnings:    warnings,
	}
}

// searchPathsLocked orders client settings first, then capnls.toml entries,
// then workspace folders, dropping duplicates.
func (s *Server) searchPathsLocked() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range s.settings.ImportPaths {
		p = filepath.FromSlash(p)
		if !filepath.IsAbs(p) && s.workspaceRoot != "" {
			p = filepath.Join(s.workspaceRoot, p)
		}
		add(filepath.Clean(p))
	}
	for _, p := range s.cfg.Imports.Paths {
		add(p)
	}
	for _, p := range s.folders {
		add(p)
	}
	return out
}

func (s *Server) limitLocked() int {
	if s.settings.MaxDiagnostics != nil {
		return *s.settings.MaxDiagnostics
	}
	if s.maxDiagnostics > 0 {
		return s.maxDiagnostics
	}
	return s.cfg.Diagnostics.Max
}

func (s *Server) clearPublishedDiagnostics() {
	s.mu.Lock()
	uris := make([]string, 0, len(s.published))
	for uri := range s.published {
		uris = append(uris, uri)
	}
	s.published = make(map[string]struct{})
	s.mu.Unlock()
	sort.Strings(uris)
	for _, uri := range uris {
		if err := s.sendPublish(uri, nil, nil); err != nil {
			s.logf("failed to clear diagnostics: %v", err)
		}
	}
}

// toLSPDiagnostics keeps the compiler's order. Each hint is also attached to
// the diagnostic it follows as relatedInformation.
func toLSPDiagnostics(uri string, list []diag.Diagnostic, limit int) []lspDiagnostic {
	bag := diag.NewBag(limit)
	bag.AddAll(list)
	groups := diag.GroupRelated(bag.Items())
	out := make([]lspDiagnostic, 0, bag.Len())
	for _, g := range groups {
		primary := lspDiagnostic{
			Range:    toLSPRange(g.Primary.Range),
			Severity: g.Primary.Severity.LSP(),
			Source:   g.Primary.Source,
			Message:  g.Primary.Message,
		}
		for _, r := range g.Related {
			primary.RelatedInformation = append(primary.RelatedInformation, diagnosticRelatedInformation{
				Location: location{URI: uri, Range: toLSPRange(r.Range)},
				Message:  r.Message,
			})
		}
		out = append(out, primary)
		for _, r := range g.Related {
			out = append(out, lspDiagnostic{
				Range:    toLSPRange(r.Range),
				Severity: diag.SevHint.LSP(),
				Source:   g.Primary.Source,
				Message:  r.Message,
			})
		}
	}
	return out
}

func toLSPRange(r diag.Range) lspRange {
	return lspRange{
		Start: position{Line: r.Start.Line, Character: r.Start.Character},
		End:   position{Line: r.End.Line, Character: r.End.Character},
	}
}
