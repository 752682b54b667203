package capnp

import (
	"strconv"
	"strings"

	"fortio.org/safecast"

	"capnls/internal/diag"
)

const (
	errorMarker   = " error: "
	warningMarker = " warning: "
)

// ParseOptions tunes which compiler lines become diagnostics.
type ParseOptions struct {
	// Warnings also accepts " warning: " lines as SevWarning.
	// Off by default: only " error: " lines are reported.
	Warnings bool
}

// Parse converts compiler stderr into diagnostics in input line order.
// Lines that do not match the diagnostic grammar are skipped.
func Parse(text string, opts ParseOptions) []diag.Diagnostic {
	out := make([]diag.Diagnostic, 0, 4)
	for line := range strings.Lines(text) {
		if d, ok := ParseLine(line, opts); ok {
			out = append(out, d)
		}
	}
	return out
}

// ParseLine parses a single compiler line such as
//
//	foo.capnp:3:9-12: error: Parse error.
func ParseLine(line string, opts ParseOptions) (diag.Diagnostic, bool) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, ":", 4)
	if len(parts) < 4 {
		return diag.Diagnostic{}, false
	}
	lineSpec, colSpec, rest := parts[1], parts[2], parts[3]

	var msg string
	warning := false
	switch {
	case strings.HasPrefix(rest, errorMarker):
		msg = rest[len(errorMarker):]
	case opts.Warnings && strings.HasPrefix(rest, warningMarker):
		msg = rest[len(warningMarker):]
		warning = true
	default:
		return diag.Diagnostic{}, false
	}
	msg = strings.TrimSpace(msg)
	msg = strings.TrimSpace(strings.TrimSuffix(msg, "."))

	lineNo, ok := parsePosition(lineSpec)
	if !ok {
		return diag.Diagnostic{}, false
	}
	startCol, endCol, ok := parseColumns(colSpec)
	if !ok {
		return diag.Diagnostic{}, false
	}

	sev := Classify(msg)
	if warning && sev == diag.SevError {
		sev = diag.SevWarning
	}
	rng := diag.Range{
		Start: diag.Position{Line: lineNo, Character: startCol},
		End:   diag.Position{Line: lineNo, Character: endCol},
	}
	return diag.New(rng, sev, msg), true
}

// parseColumns reads "C" or "C1-C2".
func parseColumns(spec string) (start, end uint32, ok bool) {
	if from, to, ranged := strings.Cut(spec, "-"); ranged {
		if start, ok = parsePosition(from); !ok {
			return 0, 0, false
		}
		if end, ok = parsePosition(to); !ok {
			return 0, 0, false
		}
		return start, end, true
	}
	start, ok = parsePosition(spec)
	return start, start, ok
}

// parsePosition converts a 1-indexed compiler number to a 0-indexed position,
// saturating at zero. Values that do not fit uint32 are rejected.
func parsePosition(s string) (uint32, bool) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return 0, false
	}
	if v == 0 {
		return 0, true
	}
	return v - 1, true
}
