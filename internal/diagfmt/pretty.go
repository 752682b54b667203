package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"capnls/internal/diag"
)

// Pretty writes one block per diagnostic:
//
//	<path>:<line>:<col>: <severity>: <message>
//	   4 |   u @0 :UInt32;
//	     |     ^~
//
// Lines and columns are printed 1-indexed, matching the compiler.
func Pretty(w io.Writer, reports []FileReport, opts PrettyOpts) error {
	p := newPalette(opts.Color)
	for _, r := range reports {
		path := displayPath(r.Path, opts.PathMode, opts.BaseDir)
		if r.Err != nil {
			if _, err := fmt.Fprintf(w, "%s: %s: %v\n", p.path.Sprint(path), p.err.Sprint("failed"), r.Err); err != nil {
				return err
			}
			continue
		}
		for _, d := range r.Diagnostics {
			start := d.Range.Start
			if _, err := fmt.Fprintf(w, "%s:%d:%d: %s: %s\n",
				p.path.Sprint(path), start.Line+1, start.Character+1,
				p.severity(d.Severity), d.Message); err != nil {
				return err
			}
			if !opts.Context {
				continue
			}
			if err := writeContext(w, p, r.Source, d.Range); err != nil {
				return err
			}
		}
	}
	return nil
}

// Summary writes a one-line tally.
func Summary(w io.Writer, c Counts, useColor bool) error {
	p := newPalette(useColor)
	parts := []string{
		p.err.Sprintf("%d error(s)", c.Errors),
		p.warn.Sprintf("%d warning(s)", c.Warnings),
		p.hint.Sprintf("%d hint(s)", c.Hints),
	}
	if c.Failed > 0 {
		parts = append(parts, p.err.Sprintf("%d file(s) failed", c.Failed))
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, ", "))
	return err
}

func writeContext(w io.Writer, p palette, src []byte, rng diag.Range) error {
	text, ok := sourceLine(src, rng.Start.Line)
	if !ok {
		return nil
	}
	text = expandTabs(text)
	gutter := fmt.Sprintf("%4d", rng.Start.Line+1)
	blank := strings.Repeat(" ", len(gutter))

	start := clamp(int(rng.Start.Character), len(text))
	end := start
	if rng.End.Line == rng.Start.Line {
		end = clamp(int(rng.End.Character), len(text))
	}
	if end < start {
		end = start
	}
	pad := strings.Repeat(" ", runewidth.StringWidth(text[:start]))
	width := runewidth.StringWidth(text[start:end])
	marker := "^"
	if width > 1 {
		marker += strings.Repeat("~", width-1)
	}

	if _, err := fmt.Fprintf(w, "%s | %s\n", p.gutter.Sprint(gutter), text); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s | %s%s\n", p.gutter.Sprint(blank), pad, p.caret.Sprint(marker))
	return err
}

// expandTabs keeps byte offsets stable so columns still index into the line.
func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", " ")
}

func clamp(v, limit int) int {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}

type palette struct {
	path   *color.Color
	err    *color.Color
	warn   *color.Color
	hint   *color.Color
	gutter *color.Color
	caret  *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		path:   color.New(color.Bold),
		err:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow, color.Bold),
		hint:   color.New(color.FgCyan),
		gutter: color.New(color.FgBlue),
		caret:  color.New(color.FgGreen, color.Bold),
	}
	for _, c := range []*color.Color{p.path, p.err, p.warn, p.hint, p.gutter, p.caret} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(sev diag.Severity) string {
	label := strings.ToLower(sev.String())
	switch sev {
	case diag.SevError:
		return p.err.Sprint(label)
	case diag.SevWarning:
		return p.warn.Sprint(label)
	default:
		return p.hint.Sprint(label)
	}
}
