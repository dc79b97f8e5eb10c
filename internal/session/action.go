package session

// Action names one guarded asynchronous workflow operation. Each action has
// its own state machine so a translate in flight never blocks, say, a test
// run.
type Action string

const (
	ActionTranslate  Action = "translate"
	ActionAcceptRule Action = "accept_rule"
	ActionSchemaSave Action = "schema_save"
	ActionTestRun    Action = "test_run"
)

// ActionState is the per-action machine. Modelling the busy flag as explicit
// states makes "ignore re-entrant submits" and "always finish" structural
// rather than convention.
type ActionState int

const (
	Idle ActionState = iota
	InFlight
	Succeeded
	Failed
)

func (s ActionState) String() string {
	switch s {
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// machine tracks one action's state.
type machine struct {
	state ActionState
}

// begin transitions to InFlight. If the action is already in flight it
// returns false and changes nothing, which makes duplicate submission a
// no-op rather than a queued second request.
func (m *machine) begin() bool {
	if m.state == InFlight {
		return false
	}
	m.state = InFlight
	return true
}

// finish moves to a terminal state. It runs on success and failure alike, so
// no path can leave the machine stuck in flight.
func (m *machine) finish(err error) {
	if err != nil {
		m.state = Failed
		return
	}
	m.state = Succeeded
}
