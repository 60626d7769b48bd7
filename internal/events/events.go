// Package events carries diagnostic facts of a run (selector attempts,
// screenshots, table inventory, row counts) as values instead of log text.
//
// Components emit to a Sink. The command wires a LogSink so the facts end up
// in the structured log, tests wire a Recorder and assert on what was emitted.
package events

import (
	"context"
	"log/slog"
	"sync"
)

// Kind classifies an event.
type Kind string

const (
	KindNavigate   Kind = "navigate"   // URL loaded
	KindProbe      Kind = "probe"      // selector candidate tried and missed
	KindMatch      Kind = "match"      // selector candidate used for a role
	KindScreenshot Kind = "screenshot" // diagnostic capture written
	KindTable      Kind = "table"      // one table of the detail page inventory
	KindRows       Kind = "rows"       // rows read or records built
	KindArtifact   Kind = "artifact"   // report file written
	KindDelivery   Kind = "delivery"   // mail sent or skipped
)

// Event is one diagnostic fact. Only the fields relevant to Kind are set.
type Event struct {
	Kind     Kind
	Role     string // login role, "search", "table"
	Selector string
	URL      string
	Path     string
	Count    int
	Detail   string
	Err      error
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Discard drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(context.Context, Event) {}

// Tee fans each event out to every sink.
func Tee(sinks ...Sink) Sink {
	return tee(sinks)
}

type tee []Sink

func (t tee) Emit(ctx context.Context, e Event) {
	for _, s := range t {
		s.Emit(ctx, e)
	}
}

// LogSink writes events to a structured logger.
//
// Missed probes are logged at debug level, everything else at info, and
// failures carry the error attribute.
type LogSink struct {
	Logger *slog.Logger
}

// NewLogSink returns a sink writing to logger, or to slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	attrs := []slog.Attr{slog.String("event", string(e.Kind))}
	if e.Role != "" {
		attrs = append(attrs, slog.String("role", e.Role))
	}
	if e.Selector != "" {
		attrs = append(attrs, slog.String("selector", e.Selector))
	}
	if e.URL != "" {
		attrs = append(attrs, slog.String("url", e.URL))
	}
	if e.Path != "" {
		attrs = append(attrs, slog.String("path", e.Path))
	}
	if e.Kind == KindRows || e.Kind == KindTable {
		attrs = append(attrs, slog.Int("count", e.Count))
	}
	if e.Detail != "" {
		attrs = append(attrs, slog.String("detail", e.Detail))
	}

	level := slog.LevelInfo
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
		level = slog.LevelWarn
	}
	if e.Kind == KindProbe || e.Kind == KindTable {
		level = slog.LevelDebug
	}

	s.Logger.LogAttrs(ctx, level, message(e), attrs...)
}

func message(e Event) string {
	switch e.Kind {
	case KindNavigate:
		return "  → navigated"
	case KindProbe:
		return "  · selector missed"
	case KindMatch:
		return "  ✓ selector matched"
	case KindScreenshot:
		return "  📸 screenshot saved"
	case KindTable:
		return "  · table on page"
	case KindRows:
		return "  ✓ rows collected"
	case KindArtifact:
		return "  💾 file written"
	case KindDelivery:
		if e.Err != nil {
			return "  ✗ delivery failed"
		}
		return "  ✉ delivery"
	}
	return string(e.Kind)
}

// Recorder keeps every event in memory.
//
// Thread-safety:
//   - All fields are protected by RWMutex
type Recorder struct {
	mu     sync.RWMutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of kind k in emission order.
func (r *Recorder) OfKind(k Kind) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
