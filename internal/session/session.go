// Package session holds the per-user authoring state the gateway keeps
// between requests: the conversation thread, builder form, schema-model
// cache, open negotiations, the test console and the session-scoped LLM
// credential cache.
package session

import (
	"sync"
	"time"

	"rulemaker-backend/internal/builder"
	"rulemaker-backend/internal/collab"
	"rulemaker-backend/internal/negotiate"
	"rulemaker-backend/internal/schema"
	"rulemaker-backend/internal/thread"
)

// TestConsole is the armed test-execution state: the rule under test, the
// raw (uncoerced) input map and exactly one live result or error.
type TestConsole struct {
	Rule        *collab.CreatedRule
	Description string
	Raw         map[string]string
	Result      *collab.TestResult
	Error       string
}

// Session is one authoring session. All access goes through Lock/Unlock;
// workflow actions release the lock during collaborator I/O and re-take it to
// apply results, mirroring the single-threaded event loop this state was
// designed for.
type Session struct {
	mu sync.Mutex

	ID      string
	GroupID string

	Schema  *schema.Model
	Thread  *thread.Thread
	Builder *builder.State

	// Negotiations keyed by the id of their schema-negotiation thread entry.
	Negotiations map[int]*negotiate.Flow

	// Credentials are set only after a successful connection check and are
	// never journaled; they die with the session.
	Credentials *collab.Credentials

	Test TestConsole

	actions  map[Action]*machine
	lastSeen time.Time
}

// New creates an empty session for the given group (which may be "").
func New(id, groupID string) *Session {
	return &Session{
		ID:           id,
		GroupID:      groupID,
		Schema:       schema.NewModel(nil),
		Thread:       thread.New(),
		Builder:      builder.New(),
		Negotiations: make(map[int]*negotiate.Flow),
		actions:      make(map[Action]*machine),
		lastSeen:     time.Now(),
	}
}

// Lock takes the session lock and refreshes the idle timer.
func (s *Session) Lock() {
	s.mu.Lock()
	s.lastSeen = time.Now()
}

// Unlock releases the session lock.
func (s *Session) Unlock() {
	s.mu.Unlock()
}

// BeginAction starts an action if it is not already in flight. Callers must
// hold the lock.
func (s *Session) BeginAction(a Action) bool {
	m, ok := s.actions[a]
	if !ok {
		m = &machine{}
		s.actions[a] = m
	}
	return m.begin()
}

// FinishAction moves an action to its terminal state. Callers must hold the
// lock.
func (s *Session) FinishAction(a Action, err error) {
	if m, ok := s.actions[a]; ok {
		m.finish(err)
	}
}

// ActionState reports the current state of an action. Callers must hold the
// lock.
func (s *Session) ActionState(a Action) ActionState {
	if m, ok := s.actions[a]; ok {
		return m.state
	}
	return Idle
}

// Busy reports whether any conversation-blocking action is outstanding:
// drives the thinking indicator.
func (s *Session) Busy() bool {
	for _, a := range []Action{ActionTranslate, ActionAcceptRule, ActionSchemaSave} {
		if s.ActionState(a) == InFlight {
			return true
		}
	}
	return false
}

// IdleSince reports the last time the session was touched.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// ArmTest points the test console at a freshly saved rule, discarding any
// previous console state.
func (s *Session) ArmTest(rule *collab.CreatedRule) {
	s.Test = TestConsole{Rule: rule, Raw: make(map[string]string)}
}
