// Package instrument records workflow action events (translate, accept,
// schema save, test run) with durations and statuses, buffered in memory and
// flushed to the journal's _events table in batches.
package instrument

import (
	"context"
	"time"
)

// Event is one recorded workflow action.
type Event struct {
	SessionID  string
	Component  string
	Action     string
	Status     string
	DurationMs float64
	Metadata   map[string]any
}

// Instrumenter records events and spans.
type Instrumenter interface {
	// StartSpan begins a timed span for an action. End the span to record it.
	StartSpan(ctx context.Context, sessionID, component, action string) *Span

	// Emit records a standalone event.
	Emit(ctx context.Context, e Event)

	// Stop flushes anything buffered and halts background work.
	Stop()
}

// Span is a timed action in progress.
type Span struct {
	inst      Instrumenter
	ctx       context.Context
	event     Event
	started   time.Time
	completed bool
}

// SetStatus sets the span's terminal status ("ok" or "error"). Safe on a nil
// span so callers never branch on whether instrumentation is enabled.
func (s *Span) SetStatus(status string) {
	if s == nil {
		return
	}
	s.event.Status = status
}

// SetMetadata attaches a key/value to the span's event.
func (s *Span) SetMetadata(key string, value any) {
	if s == nil {
		return
	}
	if s.event.Metadata == nil {
		s.event.Metadata = make(map[string]any)
	}
	s.event.Metadata[key] = value
}

// End records the span. Safe to call once; a span with no explicit status is
// recorded as ok.
func (s *Span) End() {
	if s == nil || s.completed {
		return
	}
	s.completed = true
	s.event.DurationMs = float64(time.Since(s.started).Microseconds()) / 1000.0
	if s.event.Status == "" {
		s.event.Status = "ok"
	}
	s.inst.Emit(s.ctx, s.event)
}

// Noop discards all events. Used when instrumentation is disabled.
type Noop struct{}

func (Noop) StartSpan(ctx context.Context, sessionID, component, action string) *Span {
	return nil
}
func (Noop) Emit(ctx context.Context, e Event) {}
func (Noop) Stop()                             {}
