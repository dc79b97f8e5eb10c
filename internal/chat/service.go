// Package chat orchestrates the authoring workflow over a session: it turns
// builder submissions into translation calls, reviews proposals for missing
// datapoints and risky literals, and drives the accept / negotiate / test
// paths. Every outcome the user should see lands on the conversation thread;
// collaborator failures become turns, never panics or dropped state.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"rulemaker-backend/internal/collab"
	"rulemaker-backend/internal/instrument"
	"rulemaker-backend/internal/literal"
	"rulemaker-backend/internal/negotiate"
	"rulemaker-backend/internal/schema"
	"rulemaker-backend/internal/session"
	"rulemaker-backend/internal/store"
	"rulemaker-backend/internal/testrun"
	"rulemaker-backend/internal/thread"
)

// feature labels every rule this gateway creates; the engine groups rules by
// it.
const feature = "authoring"

var (
	ErrNoCredentials         = errors.New("no LLM connection: check a provider first")
	ErrEmptyCondition        = errors.New("the main condition is empty")
	ErrNoGroup               = errors.New("no rule group selected")
	ErrUnknownProposal       = errors.New("no such proposal")
	ErrUnknownNegotiation    = errors.New("no such negotiation")
	ErrNegotiationSaved      = errors.New("negotiation already saved")
	ErrNegotiationIncomplete = errors.New("every datapoint needs a type, and enums need at least one value")
	ErrNoArmedRule           = errors.New("no rule armed for testing: save a proposal with save-and-test first")
)

// Journal is the slice of the store the workflow writes through. The session
// thread and schema cache are journaled so a session survives a restart;
// journal failures are logged and never fail the user-visible action.
type Journal interface {
	CreateSession(ctx context.Context, id, groupID string) error
	SetSessionGroup(ctx context.Context, id, groupID string) error
	DeleteSession(ctx context.Context, id string) error
	GetSession(ctx context.Context, id string) (*store.SessionRecord, error)
	AppendTurn(ctx context.Context, sessionID string, e thread.Entry) error
	LoadTurns(ctx context.Context, sessionID string) ([]thread.Entry, error)
	ReplaceDatapoints(ctx context.Context, sessionID string, defs []schema.Definition) error
	LoadDatapoints(ctx context.Context, sessionID string) ([]schema.Definition, error)
}

// Service is the workflow orchestrator. It owns no state of its own; all
// mutable state lives on the session it is handed.
type Service struct {
	reg      *session.Registry
	engine   collab.RuleEngine
	decision collab.Decision
	journal  Journal
	inst     instrument.Instrumenter
}

func NewService(reg *session.Registry, engine collab.RuleEngine, decision collab.Decision, journal Journal, inst instrument.Instrumenter) *Service {
	return &Service{reg: reg, engine: engine, decision: decision, journal: journal, inst: inst}
}

// appendTurn appends to the thread and journals the entry. Callers must hold
// the session lock.
func (s *Service) appendTurn(ctx context.Context, sess *session.Session, turn thread.Turn) thread.Entry {
	e := sess.Thread.Append(turn)
	if err := s.journal.AppendTurn(ctx, sess.ID, e); err != nil {
		log.Printf("journal: append turn %d for session %s: %v", e.ID, sess.ID, err)
	}
	return e
}

// StartSession creates a session, optionally bound to a group. A group-bound
// session starts with the group's datapoint definitions as its schema model.
func (s *Service) StartSession(ctx context.Context, groupID string) (*session.Session, error) {
	var defs []schema.Definition
	if groupID != "" {
		group, err := s.engine.GetGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		groupID = group.ID
		defs = group.DatapointDefinitions
	}

	sess := s.reg.Create(groupID)
	sess.Schema = schema.NewModel(defs)
	if err := s.journal.CreateSession(ctx, sess.ID, groupID); err != nil {
		log.Printf("journal: create session %s: %v", sess.ID, err)
	} else if len(defs) > 0 {
		if err := s.journal.ReplaceDatapoints(ctx, sess.ID, defs); err != nil {
			log.Printf("journal: seed datapoints for session %s: %v", sess.ID, err)
		}
	}
	return sess, nil
}

// EndSession drops the session from the registry and the journal.
func (s *Service) EndSession(ctx context.Context, sess *session.Session) {
	s.reg.Delete(sess.ID)
	if err := s.journal.DeleteSession(ctx, sess.ID); err != nil {
		log.Printf("journal: delete session %s: %v", sess.ID, err)
	}
}

// ResolveSession returns the live session with the given id, rehydrating it
// from the journal after a restart. Rehydration restores the thread and the
// schema cache; credentials, busy states and the test console are
// deliberately not journaled and come back empty.
func (s *Service) ResolveSession(ctx context.Context, id string) (*session.Session, error) {
	if sess := s.reg.Get(id); sess != nil {
		return sess, nil
	}

	rec, err := s.journal.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	sess := session.New(rec.ID, rec.GroupID)

	if defs, err := s.journal.LoadDatapoints(ctx, id); err != nil {
		log.Printf("journal: load datapoints for session %s: %v", id, err)
	} else {
		sess.Schema = schema.NewModel(defs)
	}

	entries, err := s.journal.LoadTurns(ctx, id)
	if err != nil {
		log.Printf("journal: load turns for session %s: %v", id, err)
	}
	for _, e := range entries {
		sess.Thread.Restore(e)
		// A negotiation whose names all made it into the restored model was
		// saved before the restart; anything else reopens.
		if sn, ok := e.Turn.(thread.SchemaNegotiation); ok {
			if missing := sess.Schema.Missing(sn.PendingNames); len(missing) > 0 {
				sess.Negotiations[e.ID] = negotiate.NewFlow(sn.PendingNames)
			}
		}
	}

	s.reg.Adopt(sess)
	return sess, nil
}

// ConnectLLM checks the provider credentials against the decision service
// and, only on success, caches them on the session.
func (s *Service) ConnectLLM(ctx context.Context, sess *session.Session, creds collab.Credentials) error {
	span := s.inst.StartSpan(ctx, sess.ID, "chat", "llm_connection")
	err := s.decision.CheckConnection(ctx, creds)
	if err != nil {
		span.SetStatus("error")
		span.End()
		return err
	}
	span.End()

	sess.Lock()
	sess.Credentials = &creds
	sess.Unlock()
	return nil
}

// ListGroups proxies the engine's group list.
func (s *Service) ListGroups(ctx context.Context) ([]collab.RuleGroup, error) {
	return s.engine.ListGroups(ctx)
}

// CreateGroup proxies group creation.
func (s *Service) CreateGroup(ctx context.Context, name, description string) (*collab.RuleGroup, error) {
	return s.engine.CreateGroup(ctx, name, description)
}

// SwitchGroup points the session at a group and replaces the schema model
// with the group's definitions.
func (s *Service) SwitchGroup(ctx context.Context, sess *session.Session, groupID string) error {
	group, err := s.engine.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}

	sess.Lock()
	defer sess.Unlock()
	sess.GroupID = group.ID
	sess.Schema = schema.NewModel(group.DatapointDefinitions)
	if err := s.journal.SetSessionGroup(ctx, sess.ID, group.ID); err != nil {
		log.Printf("journal: set group for session %s: %v", sess.ID, err)
	}
	if err := s.journal.ReplaceDatapoints(ctx, sess.ID, sess.Schema.All()); err != nil {
		log.Printf("journal: replace datapoints for session %s: %v", sess.ID, err)
	}
	return nil
}

// SubmitForTranslation snapshots the builder into a user turn and asks the
// decision service for a proposal. A submit while a translation is already in
// flight is a no-op. Translation failures land on the thread as an assistant
// turn; the builder keeps its content either way.
func (s *Service) SubmitForTranslation(ctx context.Context, sess *session.Session) error {
	sess.Lock()
	if sess.Credentials == nil {
		sess.Unlock()
		return ErrNoCredentials
	}
	if !sess.Builder.CanTranslate() {
		sess.Unlock()
		return ErrEmptyCondition
	}
	if !sess.BeginAction(session.ActionTranslate) {
		sess.Unlock()
		return nil
	}
	req := collab.TranslateRequest{
		NaturalLanguage:      sess.Builder.Instruction(),
		Feature:              feature,
		Name:                 "rule_" + uuid.New().String()[:8],
		Provider:             sess.Credentials.Provider,
		Model:                sess.Credentials.Model,
		APIKey:               sess.Credentials.APIKey,
		DatapointDefinitions: sess.Schema.All(),
	}
	s.appendTurn(ctx, sess, thread.User{Text: sess.Builder.Preview()})
	sess.Unlock()

	span := s.inst.StartSpan(ctx, sess.ID, "chat", "translate")
	proposal, err := s.decision.Translate(ctx, req)

	sess.Lock()
	defer sess.Unlock()
	sess.FinishAction(session.ActionTranslate, err)
	if err != nil {
		span.SetStatus("error")
		span.End()
		s.appendTurn(ctx, sess, thread.Assistant{
			Text: "Translation failed: " + err.Error() + " Your rule is untouched; adjust it or try again.",
		})
		return nil
	}
	span.End()

	s.appendTurn(ctx, sess, thread.RuleProposal{Proposal: *proposal})
	s.reviewProposal(ctx, sess, proposal)
	return nil
}

// reviewProposal runs the post-proposal checks. Missing datapoints open a
// negotiation and pre-empt the literal scan; otherwise risky literals and a
// logic lint failure each surface as one advisory turn. Callers must hold the
// session lock.
func (s *Service) reviewProposal(ctx context.Context, sess *session.Session, p *thread.Proposal) {
	pending := sess.Schema.Missing(p.Datapoints)
	if len(pending) > 0 {
		neg := s.appendTurn(ctx, sess, thread.SchemaNegotiation{PendingNames: pending})
		sess.Negotiations[neg.ID] = negotiate.NewFlow(pending)
		return
	}

	if lits := literal.ExtractFromRule(p.RuleLogic, p.EdgeCases); len(lits) > 0 {
		quoted := make([]string, len(lits))
		for i, l := range lits {
			quoted[i] = fmt.Sprintf("%q", l)
		}
		s.appendTurn(ctx, sess, thread.Assistant{
			Text: "This rule matches exact text values: " + strings.Join(quoted, ", ") +
				". Exact matches are case-sensitive and easy to get wrong; double-check them before accepting.",
		})
	}
	if err := lintRuleLogic(p.RuleLogic, sess.Schema); err != nil {
		s.appendTurn(ctx, sess, thread.Assistant{
			Text: "The proposed logic did not pass a syntax check against the current datapoints: " + err.Error(),
		})
	}
}

// AcceptProposal persists a proposed rule through the engine. On success the
// builder resets; on failure the proposal stays reviewable and the error
// lands on the thread.
func (s *Service) AcceptProposal(ctx context.Context, sess *session.Session, entryID int) error {
	return s.acceptProposal(ctx, sess, entryID, false)
}

// SaveAndTest persists the rule like AcceptProposal and then arms the test
// console with the created rule's datapoints.
func (s *Service) SaveAndTest(ctx context.Context, sess *session.Session, entryID int) error {
	return s.acceptProposal(ctx, sess, entryID, true)
}

func (s *Service) acceptProposal(ctx context.Context, sess *session.Session, entryID int, arm bool) error {
	sess.Lock()
	entry, ok := sess.Thread.Get(entryID)
	if !ok {
		sess.Unlock()
		return ErrUnknownProposal
	}
	rp, ok := entry.Turn.(thread.RuleProposal)
	if !ok {
		sess.Unlock()
		return ErrUnknownProposal
	}
	if sess.GroupID == "" {
		sess.Unlock()
		return ErrNoGroup
	}
	if !sess.BeginAction(session.ActionAcceptRule) {
		sess.Unlock()
		return nil
	}
	p := rp.Proposal
	req := collab.CreateRuleRequest{
		Name:       p.Name,
		Feature:    feature,
		RuleLogic:  p.RuleLogic,
		EdgeCases:  p.EdgeCases,
		Datapoints: p.Datapoints,
	}
	groupID := sess.GroupID
	sess.Unlock()

	span := s.inst.StartSpan(ctx, sess.ID, "chat", "accept_rule")
	rule, err := s.engine.CreateRule(ctx, groupID, req)

	sess.Lock()
	defer sess.Unlock()
	sess.FinishAction(session.ActionAcceptRule, err)
	if err != nil {
		span.SetStatus("error")
		span.End()
		s.appendTurn(ctx, sess, thread.Assistant{
			Text: "Saving the rule failed: " + err.Error() + " The proposal is still here; try again or discard it.",
		})
		return nil
	}
	span.End()

	sess.Builder.Clear()
	if arm {
		sess.ArmTest(rule)
		s.appendTurn(ctx, sess, thread.Assistant{
			Text: fmt.Sprintf("Rule %q saved. The test console is armed with its datapoints; describe a request and run it.", rule.Name),
		})
	} else {
		s.appendTurn(ctx, sess, thread.Assistant{
			Text: fmt.Sprintf("Rule %q saved to the group.", rule.Name),
		})
	}
	return nil
}

// RefuseProposal discards the pending proposal and resets the builder.
func (s *Service) RefuseProposal(ctx context.Context, sess *session.Session) {
	sess.Lock()
	defer sess.Unlock()
	sess.Builder.Clear()
	s.appendTurn(ctx, sess, thread.Assistant{Text: "Proposal discarded. The builder has been reset."})
}

// SaveNegotiation persists the typed-up datapoint definitions through the
// engine, then merges them into the session's schema model and marks the
// negotiation saved. On failure the flow stays open and re-saveable and the
// model is untouched.
func (s *Service) SaveNegotiation(ctx context.Context, sess *session.Session, entryID int) error {
	sess.Lock()
	flow, ok := sess.Negotiations[entryID]
	if !ok {
		sess.Unlock()
		return ErrUnknownNegotiation
	}
	if flow.Saved() {
		sess.Unlock()
		return ErrNegotiationSaved
	}
	if !flow.CanSave() {
		sess.Unlock()
		return ErrNegotiationIncomplete
	}
	if sess.GroupID == "" {
		sess.Unlock()
		return ErrNoGroup
	}
	if !sess.BeginAction(session.ActionSchemaSave) {
		sess.Unlock()
		return nil
	}
	defs, err := flow.Definitions()
	if err != nil {
		sess.FinishAction(session.ActionSchemaSave, err)
		sess.Unlock()
		return err
	}
	// The engine takes the group's full definition set, so merge into a copy;
	// the session model only changes after the engine accepts.
	combined := schema.NewModel(sess.Schema.All())
	combined.Merge(defs)
	payload := combined.All()
	groupID := sess.GroupID
	sess.Unlock()

	span := s.inst.StartSpan(ctx, sess.ID, "chat", "schema_save")
	err = s.engine.UpdateDatapoints(ctx, groupID, payload)

	sess.Lock()
	defer sess.Unlock()
	sess.FinishAction(session.ActionSchemaSave, err)
	if err != nil {
		span.SetStatus("error")
		span.End()
		s.appendTurn(ctx, sess, thread.Assistant{
			Text: "Saving datapoint definitions failed: " + err.Error() + " Nothing was applied; adjust and save again.",
		})
		return nil
	}
	span.End()

	sess.Schema.Merge(defs)
	flow.MarkSaved()
	if err := s.journal.ReplaceDatapoints(ctx, sess.ID, sess.Schema.All()); err != nil {
		log.Printf("journal: replace datapoints for session %s: %v", sess.ID, err)
	}
	s.appendTurn(ctx, sess, thread.Assistant{
		Text: "Datapoint definitions saved. The proposal can be accepted now.",
	})
	return nil
}

// RunTest coerces the test console's raw inputs and runs the armed rule's
// group against the decision service. Validation failures stay inline on the
// console and never reach the collaborator; a run replaces the previous
// result or error wholesale.
func (s *Service) RunTest(ctx context.Context, sess *session.Session, description string) error {
	sess.Lock()
	if sess.Test.Rule == nil {
		sess.Unlock()
		return ErrNoArmedRule
	}
	if !sess.BeginAction(session.ActionTestRun) {
		sess.Unlock()
		return nil
	}
	sess.Test.Description = description
	sess.Test.Result = nil
	sess.Test.Error = ""

	typed, err := testrun.BuildContext(sess.Test.Rule.Datapoints, sess.Test.Raw, sess.Schema)
	if err != nil {
		sess.FinishAction(session.ActionTestRun, err)
		sess.Test.Error = err.Error()
		sess.Unlock()
		return nil
	}
	groupID := sess.GroupID
	sess.Unlock()

	span := s.inst.StartSpan(ctx, sess.ID, "chat", "test_run")
	result, err := s.decision.ExecuteTest(ctx, groupID, description, typed)

	sess.Lock()
	defer sess.Unlock()
	sess.FinishAction(session.ActionTestRun, err)
	if err != nil {
		span.SetStatus("error")
		span.End()
		sess.Test.Result = nil
		sess.Test.Error = err.Error()
		return nil
	}
	span.End()
	sess.Test.Error = ""
	sess.Test.Result = result
	return nil
}
