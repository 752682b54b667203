package trace

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// OpenSpan describes a watched span that has begun but not ended.
type OpenSpan struct {
	ID      uint64
	Name    string
	Label   string
	Started time.Time
}

var watched = struct {
	sync.Mutex
	spans map[uint64]OpenSpan
}{spans: make(map[uint64]OpenSpan)}

// Watch registers s with the heartbeat until End is called. label names the
// work, e.g. the schema path a compiler child is running on.
func (s *Span) Watch(label string) *Span {
	if s == nil || s.id == 0 {
		return s
	}
	s.watched = true
	watched.Lock()
	watched.spans[s.id] = OpenSpan{ID: s.id, Name: s.name, Label: label, Started: s.started}
	watched.Unlock()
	return s
}

func unwatch(id uint64) {
	watched.Lock()
	delete(watched.spans, id)
	watched.Unlock()
}

// OpenSpans returns the watched spans still running, oldest first.
func OpenSpans() []OpenSpan {
	watched.Lock()
	out := make([]OpenSpan, 0, len(watched.spans))
	for _, sp := range watched.spans {
		out = append(out, sp)
	}
	watched.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Started.Equal(out[j].Started) {
			return out[i].Started.Before(out[j].Started)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Heartbeat emits a periodic event naming every watched span still open, so
// a hung capnp child shows up in the trace with its path and age.
type Heartbeat struct {
	tracer   Tracer
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

// StartHeartbeat returns nil when tracing is off or interval is not positive.
func StartHeartbeat(tracer Tracer, interval time.Duration) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer:   tracer,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Heartbeat) run() {
	defer close(h.done)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case now := <-ticker.C:
			seq++
			h.tracer.Emit(heartbeatEvent(seq, now, OpenSpans()))
		case <-h.stop:
			return
		}
	}
}

func heartbeatEvent(seq uint64, now time.Time, open []OpenSpan) *Event {
	ev := &Event{
		Time:   now,
		Kind:   KindHeartbeat,
		Scope:  ScopeSession,
		GID:    goroutineID(),
		Name:   "heartbeat",
		Detail: fmt.Sprintf("#%d idle", seq),
	}
	if len(open) == 0 {
		return ev
	}
	parts := make([]string, 0, len(open))
	for _, sp := range open {
		age := now.Sub(sp.Started).Round(time.Millisecond)
		parts = append(parts, fmt.Sprintf("%s %s %s", sp.Name, sp.Label, age))
	}
	oldest := open[0]
	ev.Detail = fmt.Sprintf("#%d open: %s", seq, strings.Join(parts, "; "))
	ev.ParentID = oldest.ID
	ev.Extra = map[string]string{
		"open":   strconv.Itoa(len(open)),
		"oldest": oldest.Label,
	}
	return ev
}

// Stop ends the heartbeat goroutine and waits for it. Safe on nil and when
// called more than once.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stop) })
	<-h.done
}
