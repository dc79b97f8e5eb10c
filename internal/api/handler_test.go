package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"rulemaker-backend/internal/chat"
	"rulemaker-backend/internal/collab"
	"rulemaker-backend/internal/instrument"
	"rulemaker-backend/internal/schema"
	"rulemaker-backend/internal/session"
	"rulemaker-backend/internal/store"
	"rulemaker-backend/internal/thread"
)

const testSecret = "test-secret"

type stubEngine struct {
	group *collab.RuleGroup
}

func (s *stubEngine) ListGroups(ctx context.Context) ([]collab.RuleGroup, error) {
	return []collab.RuleGroup{*s.group}, nil
}

func (s *stubEngine) CreateGroup(ctx context.Context, name, description string) (*collab.RuleGroup, error) {
	return &collab.RuleGroup{ID: "g_new", Name: name, Description: description}, nil
}

func (s *stubEngine) GetGroup(ctx context.Context, id string) (*collab.RuleGroup, error) {
	if id != s.group.ID {
		return nil, &collab.ServiceError{Service: "rule engine", Status: 404, Message: "group not found"}
	}
	return s.group, nil
}

func (s *stubEngine) UpdateDatapoints(ctx context.Context, groupID string, defs []schema.Definition) error {
	s.group.DatapointDefinitions = defs
	return nil
}

func (s *stubEngine) CreateRule(ctx context.Context, groupID string, req collab.CreateRuleRequest) (*collab.CreatedRule, error) {
	return &collab.CreatedRule{ID: "r1", Name: req.Name, RuleLogic: req.RuleLogic, Datapoints: req.Datapoints}, nil
}

type stubDecision struct {
	proposal thread.Proposal
}

func (s *stubDecision) CheckConnection(ctx context.Context, creds collab.Credentials) error {
	return nil
}

func (s *stubDecision) Translate(ctx context.Context, req collab.TranslateRequest) (*thread.Proposal, error) {
	p := s.proposal
	return &p, nil
}

func (s *stubDecision) ExecuteTest(ctx context.Context, groupID, description string, context map[string]any) (*collab.TestResult, error) {
	return &collab.TestResult{Outcome: "APPROVE", RequestID: "req-1"}, nil
}

type nullJournal struct{}

func (nullJournal) CreateSession(ctx context.Context, id, groupID string) error     { return nil }
func (nullJournal) SetSessionGroup(ctx context.Context, id, groupID string) error   { return nil }
func (nullJournal) DeleteSession(ctx context.Context, id string) error              { return nil }
func (nullJournal) AppendTurn(ctx context.Context, sid string, e thread.Entry) error { return nil }
func (nullJournal) LoadTurns(ctx context.Context, sid string) ([]thread.Entry, error) {
	return nil, nil
}
func (nullJournal) ReplaceDatapoints(ctx context.Context, sid string, defs []schema.Definition) error {
	return nil
}
func (nullJournal) LoadDatapoints(ctx context.Context, sid string) ([]schema.Definition, error) {
	return nil, nil
}
func (nullJournal) GetSession(ctx context.Context, id string) (*store.SessionRecord, error) {
	return nil, store.ErrNotFound
}

func testApp(t *testing.T, proposal thread.Proposal) *fiber.App {
	t.Helper()
	engine := &stubEngine{group: &collab.RuleGroup{
		ID:   "g1",
		Name: "payments",
		DatapointDefinitions: []schema.Definition{
			{Name: "amount", Kind: schema.KindNumber},
		},
	}}
	reg := session.NewRegistry(time.Hour)
	t.Cleanup(reg.Stop)
	svc := chat.NewService(reg, engine, &stubDecision{proposal: proposal}, nullJournal{}, instrument.Noop{})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, NewHandler(svc, testSecret, time.Hour))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any, out any) int {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func openSession(t *testing.T, app *fiber.App) string {
	t.Helper()
	var created struct {
		SessionID string `json:"session_id"`
		Token     string `json:"token"`
	}
	status := doJSON(t, app, http.MethodPost, "/v1/sessions", "", map[string]string{"group_id": "g1"}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create session status = %d", status)
	}
	if created.Token == "" {
		t.Fatal("no token issued")
	}
	return created.Token
}

func TestSessionTokenRoundTrip(t *testing.T) {
	token, err := GenerateSessionToken("s1", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id, err := ParseSessionToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != "s1" {
		t.Fatalf("subject = %q, want s1", id)
	}

	if _, err := ParseSessionToken(token, "other-secret"); err == nil {
		t.Fatal("wrong secret must not validate")
	}
	expired, err := GenerateSessionToken("s1", testSecret, -time.Minute)
	if err != nil {
		t.Fatalf("generate expired: %v", err)
	}
	if _, err := ParseSessionToken(expired, testSecret); err == nil {
		t.Fatal("expired token must not validate")
	}
}

func TestSessionRoutesRequireToken(t *testing.T) {
	app := testApp(t, thread.Proposal{})
	status := doJSON(t, app, http.MethodGet, "/v1/session/thread", "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	status = doJSON(t, app, http.MethodGet, "/v1/session/thread", "not-a-token", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
}

func TestBuilderToThreadFlow(t *testing.T) {
	app := testApp(t, thread.Proposal{
		Name:       "rule_x",
		RuleLogic:  `status == "gold"`,
		Datapoints: []string{"status"},
	})
	token := openSession(t, app)

	var llm struct {
		Connected bool `json:"connected"`
	}
	status := doJSON(t, app, http.MethodPost, "/v1/session/llm", token,
		map[string]string{"provider": "openai", "model": "gpt-4o", "api_key": "k"}, &llm)
	if status != http.StatusOK || !llm.Connected {
		t.Fatalf("llm connect: status=%d connected=%v", status, llm.Connected)
	}

	// Translating before a condition exists is a 400.
	status = doJSON(t, app, http.MethodPost, "/v1/session/translate", token, nil, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("translate with empty condition: status = %d, want 400", status)
	}

	var bv struct {
		CanTranslate bool `json:"can_translate"`
	}
	status = doJSON(t, app, http.MethodPost, "/v1/session/builder/condition", token,
		map[string]string{"condition": "status is gold"}, &bv)
	if status != http.StatusOK || !bv.CanTranslate {
		t.Fatalf("set condition: status=%d can_translate=%v", status, bv.CanTranslate)
	}

	var tv ThreadView
	status = doJSON(t, app, http.MethodPost, "/v1/session/translate", token, nil, &tv)
	if status != http.StatusOK {
		t.Fatalf("translate status = %d", status)
	}
	// "status" is undefined in the group, so a negotiation turn follows the
	// proposal.
	if len(tv.Turns) != 3 {
		t.Fatalf("turns = %d, want 3: %+v", len(tv.Turns), tv.Turns)
	}
	if tv.Turns[1].Kind != "rule_proposal" || tv.Turns[1].Proposal == nil {
		t.Fatalf("turn 2 should carry a proposal: %+v", tv.Turns[1])
	}
	if tv.Turns[2].Kind != "schema_negotiation" || tv.Turns[2].Negotiation == nil {
		t.Fatalf("turn 3 should carry a negotiation: %+v", tv.Turns[2])
	}
	if tv.Turns[2].Negotiation.Saved {
		t.Fatal("fresh negotiation must not report saved")
	}

	// Proposal logic spans mark the quoted literal.
	var sawLiteral bool
	for _, span := range tv.Turns[1].Proposal.LogicSpans {
		if span.Literal && span.Text == `"gold"` {
			sawLiteral = true
		}
	}
	if !sawLiteral {
		t.Fatalf("logic spans should mark the gold literal: %+v", tv.Turns[1].Proposal.LogicSpans)
	}

	negID := tv.Turns[2].ID
	var nv NegotiationView
	status = doJSON(t, app, http.MethodPost,
		fmt.Sprintf("/v1/session/negotiations/%d/rows/0/kind", negID), token,
		map[string]string{"type": "enum"}, &nv)
	if status != http.StatusOK {
		t.Fatalf("set kind status = %d", status)
	}
	status = doJSON(t, app, http.MethodPost,
		fmt.Sprintf("/v1/session/negotiations/%d/rows/0/values", negID), token,
		map[string]string{"input": "gold, silver"}, &nv)
	if status != http.StatusOK || !nv.CanSave {
		t.Fatalf("add values: status=%d can_save=%v rows=%+v", status, nv.CanSave, nv.Rows)
	}

	status = doJSON(t, app, http.MethodPost,
		fmt.Sprintf("/v1/session/negotiations/%d/save", negID), token, nil, &tv)
	if status != http.StatusOK {
		t.Fatalf("save negotiation status = %d", status)
	}
	if !tv.Turns[2].Negotiation.Saved {
		t.Fatal("negotiation should report saved after save")
	}

	propID := tv.Turns[1].ID
	status = doJSON(t, app, http.MethodPost,
		fmt.Sprintf("/v1/session/proposals/%d/save-and-test", propID), token, nil, &tv)
	if status != http.StatusOK {
		t.Fatalf("save-and-test status = %d", status)
	}

	var console TestConsoleView
	status = doJSON(t, app, http.MethodGet, "/v1/session/test", token, nil, &console)
	if status != http.StatusOK || !console.Armed {
		t.Fatalf("console: status=%d armed=%v", status, console.Armed)
	}
	if len(console.Inputs) != 1 || console.Inputs[0].Name != "status" {
		t.Fatalf("console inputs = %+v", console.Inputs)
	}

	status = doJSON(t, app, http.MethodPut, "/v1/session/test/fields/status", token,
		map[string]string{"value": "gold"}, &console)
	if status != http.StatusOK {
		t.Fatalf("put field status = %d", status)
	}
	status = doJSON(t, app, http.MethodPost, "/v1/session/test/run", token,
		map[string]string{"request_description": "gold member order"}, &console)
	if status != http.StatusOK {
		t.Fatalf("run status = %d", status)
	}
	if console.Result == nil || console.Result.Outcome != "APPROVE" {
		t.Fatalf("run result = %+v", console.Result)
	}
}

func TestUnknownNegotiationIs404(t *testing.T) {
	app := testApp(t, thread.Proposal{})
	token := openSession(t, app)
	status := doJSON(t, app, http.MethodPost, "/v1/session/negotiations/99/save", token, nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}
