package diag

import "fmt"

// Source is the tag attached to every diagnostic produced by capnls.
const Source = "capnls"

// Position is a zero-indexed line/character pair.
type Position struct {
	Line      uint32 `msgpack:"line" json:"line"`
	Character uint32 `msgpack:"character" json:"character"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Character)
}

// Range is a half-open span between two positions on the same document.
type Range struct {
	Start Position `msgpack:"start" json:"start"`
	End   Position `msgpack:"end" json:"end"`
}

// Point returns a zero-width range at p.
func Point(p Position) Range {
	return Range{Start: p, End: p}
}

func (r Range) String() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + "-" + r.End.String()
}

// Diagnostic is one compiler finding.
type Diagnostic struct {
	Range    Range
	Severity Severity
	Source   string
	Message  string
}

// New builds a diagnostic tagged with Source.
func New(rng Range, sev Severity, msg string) Diagnostic {
	return Diagnostic{
		Range:    rng,
		Severity: sev,
		Source:   Source,
		Message:  msg,
	}
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Range, d.Severity, d.Message)
}
