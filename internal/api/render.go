package api

import (
	"rulemaker-backend/internal/collab"
	"rulemaker-backend/internal/literal"
	"rulemaker-backend/internal/negotiate"
	"rulemaker-backend/internal/session"
	"rulemaker-backend/internal/testrun"
	"rulemaker-backend/internal/thread"
)

// TurnView is one rendered thread entry. Kind discriminates which of the
// optional payloads is set.
type TurnView struct {
	ID          int              `json:"id"`
	Kind        string           `json:"kind"`
	Text        string           `json:"text,omitempty"`
	Proposal    *ProposalView    `json:"proposal,omitempty"`
	Negotiation *NegotiationView `json:"negotiation,omitempty"`
}

// ProposalView is a rule proposal with its logic pre-split into literal and
// non-literal spans so clients can highlight risky exact matches inline.
type ProposalView struct {
	Name       string         `json:"name"`
	RuleLogic  string         `json:"rule_logic"`
	LogicSpans []literal.Span `json:"logic_spans"`
	EdgeCases  []EdgeCaseView `json:"edge_cases"`
	Datapoints []string       `json:"datapoints"`
}

type EdgeCaseView struct {
	Text  string         `json:"text"`
	Spans []literal.Span `json:"spans"`
}

// NegotiationView is a negotiation turn plus its live editing state.
type NegotiationView struct {
	PendingNames []string        `json:"pending_names"`
	Rows         []negotiate.Row `json:"rows"`
	Saved        bool            `json:"saved"`
	CanSave      bool            `json:"can_save"`
}

// ThreadView is the whole conversation plus the thinking indicator.
type ThreadView struct {
	Turns []TurnView `json:"turns"`
	Busy  bool       `json:"busy"`
}

// TestConsoleView is the armed test console. Inputs describe the widgets;
// Fields holds the raw values typed so far.
type TestConsoleView struct {
	Armed       bool               `json:"armed"`
	RuleName    string             `json:"rule_name,omitempty"`
	Description string             `json:"description,omitempty"`
	Inputs      []testrun.Input    `json:"inputs,omitempty"`
	Fields      map[string]string  `json:"fields,omitempty"`
	Result      *collab.TestResult `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	Running     bool               `json:"running"`
}

// renderThread snapshots the thread. Callers must hold the session lock.
func renderThread(sess *session.Session) ThreadView {
	entries := sess.Thread.Entries()
	view := ThreadView{Turns: make([]TurnView, 0, len(entries)), Busy: sess.Busy()}
	for _, e := range entries {
		tv := TurnView{ID: e.ID, Kind: e.Turn.Kind()}
		switch turn := e.Turn.(type) {
		case thread.Assistant:
			tv.Text = turn.Text
		case thread.User:
			tv.Text = turn.Text
		case thread.RuleProposal:
			tv.Proposal = renderProposal(turn.Proposal)
		case thread.SchemaNegotiation:
			tv.Negotiation = renderNegotiation(turn, sess.Negotiations[e.ID])
		}
		view.Turns = append(view.Turns, tv)
	}
	return view
}

func renderProposal(p thread.Proposal) *ProposalView {
	view := &ProposalView{
		Name:       p.Name,
		RuleLogic:  p.RuleLogic,
		LogicSpans: literal.Split(p.RuleLogic),
		EdgeCases:  make([]EdgeCaseView, 0, len(p.EdgeCases)),
		Datapoints: p.Datapoints,
	}
	for _, ec := range p.EdgeCases {
		view.EdgeCases = append(view.EdgeCases, EdgeCaseView{Text: ec, Spans: literal.Split(ec)})
	}
	return view
}

// renderNegotiation joins the immutable turn with its live flow. A nil flow
// means the negotiation was resolved before this process saw it (for
// example, restored from the journal after a save).
func renderNegotiation(turn thread.SchemaNegotiation, flow *negotiate.Flow) *NegotiationView {
	view := &NegotiationView{PendingNames: turn.PendingNames, Saved: true}
	if flow != nil {
		view.Rows = flow.Rows()
		view.Saved = flow.Saved()
		view.CanSave = flow.CanSave()
	}
	return view
}

// renderTest snapshots the test console. Callers must hold the session lock.
func renderTest(sess *session.Session) TestConsoleView {
	if sess.Test.Rule == nil {
		return TestConsoleView{}
	}
	return TestConsoleView{
		Armed:       true,
		RuleName:    sess.Test.Rule.Name,
		Description: sess.Test.Description,
		Inputs:      testrun.Inputs(sess.Test.Rule.Datapoints, sess.Schema),
		Fields:      sess.Test.Raw,
		Result:      sess.Test.Result,
		Error:       sess.Test.Error,
		Running:     sess.ActionState(session.ActionTestRun) == session.InFlight,
	}
}
