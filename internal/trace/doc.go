// Package trace provides tracing and logging for capnls.
//
// Tracing follows a request from the editor down to the capnp subprocess so
// slow or hung compiler runs can be spotted without attaching a debugger.
//
// # Usage
//
//	capnls check --trace=- --trace-level=detail foo.capnp
//	capnls lsp --trace=/tmp/capnls.ndjson --trace-level=debug
//
// # Tracers
//
//   - Nop: zero-overhead tracer used when tracing is off
//   - StreamTracer: writes each event immediately (file or stderr)
//   - RingTracer: keeps the last N events for post-mortem dumps
//   - MultiTracer: fans out to several tracers
//
// # Levels
//
//   - LevelOff: nothing
//   - LevelError: only ring dumps
//   - LevelPhase: session and document boundaries
//   - LevelDetail: compiler subprocess runs
//   - LevelDebug: everything, including individual stderr lines
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeProcess, "capnp.compile", 0)
//	defer span.End("")
package trace
