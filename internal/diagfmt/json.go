package diagfmt

import (
	"encoding/json"
	"io"

	"capnls/internal/diag"
)

// PositionJSON is a zero-indexed position.
type PositionJSON struct {
	Line      uint32 `json:"line"`
	Character uint32 `json:"character"`
}

// RangeJSON is a zero-indexed half-open range.
type RangeJSON struct {
	Start PositionJSON `json:"start"`
	End   PositionJSON `json:"end"`
}

// DiagnosticJSON is one diagnostic in JSON output.
type DiagnosticJSON struct {
	Severity string    `json:"severity"`
	Source   string    `json:"source"`
	Message  string    `json:"message"`
	Range    RangeJSON `json:"range"`
}

// FileJSON groups diagnostics for one file.
type FileJSON struct {
	File        string           `json:"file"`
	Error       string           `json:"error,omitempty"`
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Truncated   int              `json:"truncated,omitempty"`
}

// DiagnosticsOutput is the root of JSON and msgpack output.
type DiagnosticsOutput struct {
	Files   []FileJSON `json:"files"`
	Summary Counts     `json:"summary"`
}

// BuildOutput converts reports to the serialisable output model.
func BuildOutput(reports []FileReport, opts JSONOpts) DiagnosticsOutput {
	out := DiagnosticsOutput{
		Files:   make([]FileJSON, 0, len(reports)),
		Summary: Count(reports),
	}
	for _, r := range reports {
		f := FileJSON{
			File:        displayPath(r.Path, opts.PathMode, opts.BaseDir),
			Diagnostics: make([]DiagnosticJSON, 0, len(r.Diagnostics)),
		}
		if r.Err != nil {
			f.Error = r.Err.Error()
		}
		for i, d := range r.Diagnostics {
			if opts.Max > 0 && i >= opts.Max {
				f.Truncated = len(r.Diagnostics) - opts.Max
				break
			}
			f.Diagnostics = append(f.Diagnostics, diagnosticJSON(d))
		}
		out.Files = append(out.Files, f)
	}
	return out
}

func diagnosticJSON(d diag.Diagnostic) DiagnosticJSON {
	return DiagnosticJSON{
		Severity: d.Severity.String(),
		Source:   d.Source,
		Message:  d.Message,
		Range: RangeJSON{
			Start: PositionJSON{Line: d.Range.Start.Line, Character: d.Range.Start.Character},
			End:   PositionJSON{Line: d.Range.End.Line, Character: d.Range.End.Character},
		},
	}
}

// JSON writes reports as indented JSON.
func JSON(w io.Writer, reports []FileReport, opts JSONOpts) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildOutput(reports, opts))
}
