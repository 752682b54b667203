package observ

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTimerConcurrentRecord(t *testing.T) {
	timer := NewTimer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer.Record("compile", time.Millisecond, "")
		}()
	}
	wg.Wait()

	report := timer.Report()
	if len(report.Phases) != 8 {
		t.Fatalf("expected 8 phases, got %d", len(report.Phases))
	}
	if report.SumMS != 8 {
		t.Fatalf("sum = %v ms, want 8", report.SumMS)
	}
}

func TestTimerSummary(t *testing.T) {
	timer := NewTimer()
	timer.Record("schemas/foo.capnp", 1500*time.Microsecond, "2 diagnostics")
	timer.Time("bar.capnp", func() string { return "" })

	out := timer.Summary()
	if !strings.HasPrefix(out, "timings:\n") {
		t.Fatalf("missing header: %q", out)
	}
	if !strings.Contains(out, "  schemas/foo.capnp      1.50 ms  // 2 diagnostics\n") {
		t.Fatalf("unexpected phase line: %q", out)
	}
	for _, want := range []string{"bar.capnp", "sum", "wall"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q: %q", want, out)
		}
	}
}
