package instrument

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"rulemaker-backend/internal/store"
)

// DBInstrumenter buffers events in memory and periodically flushes them to
// the journal's _events table in a batch insert.
type DBInstrumenter struct {
	mu      sync.Mutex
	events  []Event
	st      *store.Store
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
}

// NewDBInstrumenter creates an instrumenter that flushes on a timer or when
// the buffer fills.
func NewDBInstrumenter(st *store.Store, maxSize int, flushIntervalMs int) *DBInstrumenter {
	di := &DBInstrumenter{
		st:      st,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	di.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go di.run()
	return di
}

func (di *DBInstrumenter) run() {
	for {
		select {
		case <-di.done:
			return
		case <-di.ticker.C:
			di.Flush()
		}
	}
}

// StartSpan begins a timed span for an action.
func (di *DBInstrumenter) StartSpan(ctx context.Context, sessionID, component, action string) *Span {
	return &Span{
		inst:    di,
		ctx:     ctx,
		started: time.Now(),
		event:   Event{SessionID: sessionID, Component: component, Action: action},
	}
}

// Emit adds an event to the buffer. If the buffer is full, a flush is
// triggered asynchronously.
func (di *DBInstrumenter) Emit(ctx context.Context, e Event) {
	di.mu.Lock()
	di.events = append(di.events, e)
	shouldFlush := len(di.events) >= di.maxSize
	di.mu.Unlock()
	if shouldFlush {
		go di.Flush()
	}
}

// Flush writes all buffered events to the database in a single batch insert.
func (di *DBInstrumenter) Flush() {
	di.mu.Lock()
	if len(di.events) == 0 {
		di.mu.Unlock()
		return
	}
	batch := di.events
	di.events = nil
	di.mu.Unlock()

	d := di.st.Dialect
	cols := []string{"session_id", "component", "action", "status", "duration_ms", "metadata"}
	var placeholders []string
	var args []any
	for i, e := range batch {
		offset := i * len(cols)
		ph := make([]string, len(cols))
		for j := range cols {
			ph[j] = d.Placeholder(offset + j + 1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")

		var metaJSON any
		if e.Metadata != nil {
			b, _ := json.Marshal(e.Metadata)
			metaJSON = string(b)
		}
		args = append(args, e.SessionID, e.Component, e.Action, e.Status, e.DurationMs, metaJSON)
	}

	q := fmt.Sprintf("INSERT INTO _events (%s) VALUES %s",
		strings.Join(cols, ","), strings.Join(placeholders, ","))
	if _, err := di.st.DB.ExecContext(context.Background(), q, args...); err != nil {
		log.Printf("ERROR: event buffer insert: %v", err)
	}
}

// Stop halts the background ticker and flushes remaining events.
func (di *DBInstrumenter) Stop() {
	if di.ticker != nil {
		di.ticker.Stop()
	}
	close(di.done)
	di.Flush()
}
