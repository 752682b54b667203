// Package capnp runs the Cap'n Proto compiler and turns its stderr report
// into diagnostics.
//
// The package has two halves that only meet through plain text:
//
//   - Invoker builds `capnp compile [-I<dir>]... <file>`, runs it once and
//     returns stderr. The exit status is ignored; findings come from stderr.
//   - Parse reads that text line by line. Lines that do not look like
//     `<file>:<line>:<col>[-<col>]: error: <message>.` are skipped, so the
//     parser never fails.
//
// Compiler positions are 1-indexed; diagnostics are 0-indexed with saturating
// conversion, so a reported line or column of 0 stays at 0.
package capnp
