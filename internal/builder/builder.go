// Package builder holds the structured condition/outcome form the user edits
// before asking for a translation.
package builder

import (
	"fmt"
	"strings"
)

// Outcome is a rule decision.
type Outcome string

const (
	OutcomeApprove        Outcome = "APPROVE"
	OutcomeAskForApproval Outcome = "ASK_FOR_APPROVAL"
	OutcomeReject         Outcome = "REJECT"
)

// Valid returns true for one of the three decision outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeApprove, OutcomeAskForApproval, OutcomeReject:
		return true
	}
	return false
}

// EdgeCase is a subordinate condition/outcome pair attached to the main rule.
type EdgeCase struct {
	Condition string  `json:"condition"`
	Outcome   Outcome `json:"outcome"`
}

// State is the builder form. Mutate it only through its methods; Clear resets
// every field to its default.
type State struct {
	Condition string     `json:"condition"`
	Then      Outcome    `json:"then_outcome"`
	Else      Outcome    `json:"else_outcome"` // empty means no ELSE branch
	EdgeCases []EdgeCase `json:"edge_cases"`
}

// New returns a builder state with defaults: empty condition, THEN
// ASK_FOR_APPROVAL, no ELSE, no edge cases.
func New() *State {
	return &State{Then: OutcomeAskForApproval}
}

func (s *State) SetCondition(cond string) {
	s.Condition = cond
}

func (s *State) SetThen(o Outcome) error {
	if !o.Valid() {
		return fmt.Errorf("invalid outcome %q", o)
	}
	s.Then = o
	return nil
}

// SetElse sets the ELSE branch; the empty outcome removes it.
func (s *State) SetElse(o Outcome) error {
	if o != "" && !o.Valid() {
		return fmt.Errorf("invalid outcome %q", o)
	}
	s.Else = o
	return nil
}

// AddEdgeCase appends a row with an empty condition and a default outcome of
// REJECT, returning its index.
func (s *State) AddEdgeCase() int {
	s.EdgeCases = append(s.EdgeCases, EdgeCase{Outcome: OutcomeReject})
	return len(s.EdgeCases) - 1
}

// UpdateEdgeCase sets one field ("condition" or "outcome") on the row at i.
func (s *State) UpdateEdgeCase(i int, field, value string) error {
	if i < 0 || i >= len(s.EdgeCases) {
		return fmt.Errorf("edge case index %d out of range", i)
	}
	switch field {
	case "condition":
		s.EdgeCases[i].Condition = value
	case "outcome":
		o := Outcome(value)
		if !o.Valid() {
			return fmt.Errorf("invalid outcome %q", value)
		}
		s.EdgeCases[i].Outcome = o
	default:
		return fmt.Errorf("unknown edge case field %q", field)
	}
	return nil
}

// RemoveEdgeCase deletes the row at i, preserving the order of the rest.
func (s *State) RemoveEdgeCase(i int) error {
	if i < 0 || i >= len(s.EdgeCases) {
		return fmt.Errorf("edge case index %d out of range", i)
	}
	s.EdgeCases = append(s.EdgeCases[:i], s.EdgeCases[i+1:]...)
	return nil
}

// Clear resets all fields to defaults. Called after a proposal is accepted or
// saved-for-test, and on explicit refusal.
func (s *State) Clear() {
	s.Condition = ""
	s.Then = OutcomeAskForApproval
	s.Else = ""
	s.EdgeCases = nil
}

// CanTranslate returns false while the condition is empty or whitespace-only.
func (s *State) CanTranslate() bool {
	return strings.TrimSpace(s.Condition) != ""
}

// mainClause renders "IF <cond> THEN <then>[ ELSE <else>]". An empty
// condition is shown as an ellipsis in the preview only.
func (s *State) mainClause(placeholder bool) string {
	cond := s.Condition
	if placeholder && cond == "" {
		cond = "…"
	}
	clause := fmt.Sprintf("IF %s THEN %s", cond, s.Then)
	if s.Else != "" {
		clause += fmt.Sprintf(" ELSE %s", s.Else)
	}
	return clause
}

// Preview renders the human-readable form of the builder: the main rule
// followed by one subordinate line per edge case.
func (s *State) Preview() string {
	var b strings.Builder
	b.WriteString(s.mainClause(true))
	for _, ec := range s.EdgeCases {
		cond := ec.Condition
		if cond == "" {
			cond = "…"
		}
		fmt.Fprintf(&b, "\n↳ EDGE  IF %s THEN %s", cond, ec.Outcome)
	}
	return b.String()
}

// Instruction renders the machine-directed translation request. It encodes
// exactly the same condition and outcome values as Preview: both derive from
// the same state snapshot.
func (s *State) Instruction() string {
	var b strings.Builder
	b.WriteString("Translate this structured rule into JSON Logic format.\n")
	b.WriteString("Main rule: ")
	b.WriteString(s.mainClause(false))
	if len(s.EdgeCases) > 0 {
		b.WriteString("\nEdge cases (each a separate entry in edge_cases):")
		for _, ec := range s.EdgeCases {
			fmt.Fprintf(&b, "\n- IF %s THEN %s", ec.Condition, ec.Outcome)
		}
	}
	return b.String()
}
