// Package observ collects wall-clock timings for the check command.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is one timed unit of work, usually a single compiler run.
type Phase struct {
	Name string
	Dur  time.Duration
	Note string
}

// Timer collects phases from concurrent workers. The zero value is not usable;
// call NewTimer.
type Timer struct {
	mu      sync.Mutex
	started time.Time
	phases  []Phase
}

// NewTimer starts a wall clock for the whole run.
func NewTimer() *Timer {
	return &Timer{started: time.Now(), phases: make([]Phase, 0, 8)}
}

// Record appends a finished phase.
func (t *Timer) Record(name string, dur time.Duration, note string) {
	t.mu.Lock()
	t.phases = append(t.phases, Phase{Name: name, Dur: dur, Note: note})
	t.mu.Unlock()
}

// Time runs fn and records its duration under name.
func (t *Timer) Time(name string, fn func() string) {
	start := time.Now()
	note := fn()
	t.Record(name, time.Since(start), note)
}

// PhaseReport is the serialisable form of a phase.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report aggregates the recorded phases. WallMS is elapsed time since
// NewTimer and is smaller than the phase sum when work ran in parallel.
type Report struct {
	WallMS float64       `json:"wall_ms"`
	SumMS  float64       `json:"sum_ms"`
	Phases []PhaseReport `json:"phases"`
}

// Report snapshots the phases in recording order.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	report := Report{
		WallMS: durationToMillis(time.Since(t.started)),
		Phases: make([]PhaseReport, len(t.phases)),
	}
	var sum time.Duration
	for i, p := range t.phases {
		sum += p.Dur
		report.Phases[i] = PhaseReport{
			Name:       p.Name,
			DurationMS: durationToMillis(p.Dur),
			Note:       p.Note,
		}
	}
	report.SumMS = durationToMillis(sum)
	return report
}

// Summary renders the report as an aligned table.
func (t *Timer) Summary() string {
	report := t.Report()
	width := len("total")
	for _, p := range report.Phases {
		width = max(width, len(p.Name))
	}
	var b strings.Builder
	b.WriteString("timings:\n")
	for _, p := range report.Phases {
		fmt.Fprintf(&b, "  %-*s %9.2f ms", width, p.Name, p.DurationMS)
		if p.Note != "" {
			b.WriteString("  // " + p.Note)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "  %-*s %9.2f ms\n", width, "sum", report.SumMS)
	fmt.Fprintf(&b, "  %-*s %9.2f ms\n", width, "wall", report.WallMS)
	return b.String()
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
