package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rulemaker-backend/internal/schema"
)

func TestRuleEngineCreateRule(t *testing.T) {
	var gotPath string
	var gotBody CreateRuleRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(CreatedRule{ID: "r1", Name: gotBody.Name, Datapoints: gotBody.Datapoints})
	}))
	defer srv.Close()

	c := NewRuleEngineClient(srv.URL, time.Second)
	rule, err := c.CreateRule(context.Background(), "g1", CreateRuleRequest{
		Name:       "rule_x",
		RuleLogic:  "amount > 5",
		Datapoints: []string{"amount"},
	})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if gotPath != "/v1/groups/g1/rules" {
		t.Fatalf("path = %s", gotPath)
	}
	if rule.Name != "rule_x" || len(rule.Datapoints) != 1 {
		t.Fatalf("unexpected created rule: %+v", rule)
	}
}

func TestRuleEngineErrorBodyDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(422)
		w.Write([]byte(`{"detail":"duplicate rule name"}`))
	}))
	defer srv.Close()

	c := NewRuleEngineClient(srv.URL, time.Second)
	_, err := c.CreateRule(context.Background(), "g1", CreateRuleRequest{Name: "x"})

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.Status != 422 || svcErr.Message != "duplicate rule name" {
		t.Fatalf("unexpected error: %+v", svcErr)
	}
}

func TestRuleEngineErrorBodyNested(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		w.Write([]byte(`{"error":{"message":"engine down"}}`))
	}))
	defer srv.Close()

	c := NewRuleEngineClient(srv.URL, time.Second)
	_, err := c.ListGroups(context.Background())

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.Message != "engine down" {
		t.Fatalf("unexpected message: %q", svcErr.Message)
	}
}

func TestUpdateDatapointsSendsFullList(t *testing.T) {
	var gotMethod string
	var gotDefs []schema.Definition
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotDefs)
		w.WriteHeader(200)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewRuleEngineClient(srv.URL, time.Second)
	defs := []schema.Definition{
		{Name: "amount", Kind: schema.KindNumber},
		{Name: "tier", Kind: schema.KindEnum, Values: []string{"gold"}},
	}
	if err := c.UpdateDatapoints(context.Background(), "g1", defs); err != nil {
		t.Fatalf("UpdateDatapoints: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Fatalf("method = %s, want PATCH", gotMethod)
	}
	if len(gotDefs) != 2 || gotDefs[1].Values[0] != "gold" {
		t.Fatalf("unexpected payload: %+v", gotDefs)
	}
}

func TestDecisionTranslateTimesOut(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewDecisionClient(srv.URL, time.Second, 20*time.Millisecond)
	_, err := c.Translate(context.Background(), TranslateRequest{NaturalLanguage: "x"})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestDecisionExecuteTestEncodesContext(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"request_description": q.Get("request_description"),
			"context":             q.Get("context"),
			"group_id":            q.Get("group_id"),
		}
		json.NewEncoder(w).Encode(TestResult{
			Outcome:   "APPROVE",
			RequestID: "req-1",
			MatchedDetails: []MatchedDetail{
				{RuleName: "rule_x", HitType: "main", TriggerExpression: "amount > 5"},
			},
		})
	}))
	defer srv.Close()

	c := NewDecisionClient(srv.URL, time.Second, time.Second)
	result, err := c.ExecuteTest(context.Background(), "g1", "large order", map[string]any{"amount": 12.0, "vip": true})
	if err != nil {
		t.Fatalf("ExecuteTest: %v", err)
	}
	if gotQuery["request_description"] != "large order" || gotQuery["group_id"] != "g1" {
		t.Fatalf("unexpected query: %+v", gotQuery)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(gotQuery["context"]), &decoded); err != nil {
		t.Fatalf("context is not valid JSON: %v", err)
	}
	if decoded["amount"] != 12.0 || decoded["vip"] != true {
		t.Fatalf("context lost typing over the wire: %#v", decoded)
	}
	if result.Outcome != "APPROVE" || len(result.MatchedDetails) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCheckConnectionPassesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer srv.Close()

	c := NewDecisionClient(srv.URL, time.Second, time.Second)
	err := c.CheckConnection(context.Background(), Credentials{Provider: "openai", APIKey: "bad"})
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.Message != "invalid api key" {
		t.Fatalf("expected upstream message, got %v", err)
	}
}
