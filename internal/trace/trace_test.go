package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"off", "error", "phase", "detail", "debug", "DEBUG"} {
		lvl, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", name, err)
		}
		if !strings.EqualFold(lvl.String(), name) {
			t.Fatalf("ParseLevel(%q) = %s", name, lvl)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestLevelScopes(t *testing.T) {
	if LevelPhase.ShouldEmit(ScopeProcess) {
		t.Fatal("phase level must not emit process spans")
	}
	if !LevelDetail.ShouldEmit(ScopeProcess) {
		t.Fatal("detail level must emit process spans")
	}
	if LevelDetail.ShouldEmit(ScopeLine) || !LevelDebug.ShouldEmit(ScopeLine) {
		t.Fatal("line events are debug-only")
	}
}

func TestStreamTracerWritesSpan(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)

	span := Begin(tr, ScopeProcess, "capnp.compile", 0)
	span.WithExtra("exit", "1").End("ok")
	Point(tr, ScopeLine, "stderr", "ignored at detail level", span.ID())

	out := buf.String()
	if !strings.Contains(out, "→ capnp.compile") || !strings.Contains(out, "← capnp.compile (ok) {exit=1}") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "stderr") {
		t.Fatalf("line event leaked at detail level:\n%s", out)
	}
}

func TestRingTracerWraps(t *testing.T) {
	ring := NewRingTracer(2, LevelPhase)
	for _, name := range []string{"a", "b", "c"} {
		Point(ring, ScopeSession, name, "", 0)
	}
	events := ring.Snapshot()
	if len(events) != 2 || events[0].Name != "b" || events[1].Name != "c" {
		t.Fatalf("unexpected snapshot: %+v", events)
	}

	var buf bytes.Buffer
	if err := ring.Dump(&buf, FormatNDJSON); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if got := strings.Count(buf.String(), "\n"); got != 2 {
		t.Fatalf("expected 2 ndjson lines, got %d", got)
	}
}

func TestNewOffReturnsNop(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr.Enabled() {
		t.Fatal("off tracer must be disabled")
	}
}

func TestContextRoundTrip(t *testing.T) {
	if FromContext(context.Background()) != Nop {
		t.Fatal("expected Nop without tracer")
	}
	ring := NewRingTracer(4, LevelDebug)
	ctx := WithTracer(context.Background(), ring)
	if FromContext(ctx) != Tracer(ring) {
		t.Fatal("tracer not propagated")
	}
	if RingOf(NewMultiTracer(LevelDebug, Nop, ring)) != ring {
		t.Fatal("RingOf must find ring behind MultiTracer")
	}
}

func TestHeartbeatNamesOpenProcess(t *testing.T) {
	ring := NewRingTracer(16, LevelDebug)
	span := Begin(ring, ScopeProcess, "capnp.compile", 0).Watch("/tmp/hang.capnp")

	var mine []OpenSpan
	for _, sp := range OpenSpans() {
		if sp.ID == span.ID() {
			mine = append(mine, sp)
		}
	}
	if len(mine) != 1 || mine[0].Name != "capnp.compile" {
		t.Fatalf("watched span not listed: %+v", mine)
	}

	ev := heartbeatEvent(3, mine[0].Started.Add(2*time.Second), mine)
	if !strings.Contains(ev.Detail, "capnp.compile /tmp/hang.capnp 2s") {
		t.Fatalf("unexpected detail: %q", ev.Detail)
	}
	if ev.ParentID != span.ID() || ev.Extra["open"] != "1" || ev.Extra["oldest"] != "/tmp/hang.capnp" {
		t.Fatalf("unexpected heartbeat: %+v", ev)
	}

	span.End("")
	for _, sp := range OpenSpans() {
		if sp.ID == span.ID() {
			t.Fatal("ended span still listed as open")
		}
	}
	if idle := heartbeatEvent(4, time.Now(), nil); idle.Detail != "#4 idle" || idle.Extra != nil {
		t.Fatalf("unexpected idle heartbeat: %+v", idle)
	}
}

func TestHeartbeatEmitsAndStops(t *testing.T) {
	ring := NewRingTracer(64, LevelPhase)
	h := StartHeartbeat(ring, time.Millisecond)
	if h == nil {
		t.Fatal("expected a running heartbeat")
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(ring.Snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no heartbeat emitted")
		}
		time.Sleep(time.Millisecond)
	}
	h.Stop()
	h.Stop()

	if ev := ring.Snapshot()[0]; ev.Kind != KindHeartbeat {
		t.Fatalf("unexpected event kind %s", ev.Kind)
	}
	if StartHeartbeat(Nop, time.Millisecond) != nil {
		t.Fatal("disabled tracer must not start a heartbeat")
	}
	var none *Heartbeat
	none.Stop()
}
