// Package diagfmt renders capnp diagnostics for the command line.
package diagfmt

import (
	"os"
	"path/filepath"
	"strings"

	"capnls/internal/diag"
)

// FileReport is the outcome of checking one schema file.
type FileReport struct {
	Path        string
	Source      []byte
	Diagnostics []diag.Diagnostic
	Err         error
}

// Counts tallies diagnostics by severity.
type Counts struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Hints    int `json:"hints"`
	Failed   int `json:"failed"`
}

// Count tallies severities over all reports; reports with Err count as failed.
func Count(reports []FileReport) Counts {
	var c Counts
	for _, r := range reports {
		if r.Err != nil {
			c.Failed++
		}
		for _, d := range r.Diagnostics {
			switch d.Severity {
			case diag.SevError:
				c.Errors++
			case diag.SevWarning:
				c.Warnings++
			default:
				c.Hints++
			}
		}
	}
	return c
}

func displayPath(path string, mode PathMode, base string) string {
	if path == "" {
		return path
	}
	abs := path
	if a, err := filepath.Abs(path); err == nil {
		abs = a
	}
	switch mode {
	case PathModeAbsolute:
		return abs
	case PathModeBasename:
		return filepath.Base(abs)
	}
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		}
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return abs
	}
	if mode == PathModeAuto && (rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return abs
	}
	return rel
}

// sourceLine returns the zero-indexed line of src without its terminator.
func sourceLine(src []byte, line uint32) (string, bool) {
	if len(src) == 0 {
		return "", false
	}
	current := uint32(0)
	for l := range strings.Lines(string(src)) {
		if current == line {
			return strings.TrimRight(l, "\r\n"), true
		}
		current++
	}
	return "", false
}
