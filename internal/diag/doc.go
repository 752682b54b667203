// Package diag defines the diagnostic record produced by the capnp bridge.
//
// # Data model
//
// Diagnostic is the central record. It contains:
//
//   - Range – zero-indexed start/end positions in the checked document.
//   - Severity – Hint, Info, Warning or Error, defined in severity.go.
//   - Source – fixed tag naming capnls as the origin of the report.
//   - Message – compiler text with trailing punctuation normalised away.
//
// Records are plain values. Producers build them once and never mutate them;
// the returned slice is owned by the caller.
//
// # Related hints
//
// The compiler prints secondary annotations ("... originally used here")
// directly after the error they belong to. The flat, ordered slice is the
// primary output. Group makes the adjacency explicit for consumers that want
// to nest hints under their parent, e.g. LSP relatedInformation.
//
// # Scope
//
// Package diag performs no IO and no formatting. Rendering lives in
// internal/diagfmt, protocol mapping in internal/lsp.
package diag
