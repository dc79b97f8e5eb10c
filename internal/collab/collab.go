// Package collab holds the HTTP clients for the three external services the
// gateway orchestrates: the rule-group persistence service, the LLM
// translation (decision) service and its test-execution endpoint. The gateway
// only ever talks to them through the request/response contracts here.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"rulemaker-backend/internal/schema"
	"rulemaker-backend/internal/thread"
)

// RuleGroup is a persisted group of rules sharing datapoint definitions.
type RuleGroup struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	Description          string              `json:"description"`
	DatapointDefinitions []schema.Definition `json:"datapoint_definitions"`
}

// CreatedRule is the persistence service's response to a create-rule call.
type CreatedRule struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	RuleLogic  string   `json:"rule_logic"`
	Datapoints []string `json:"datapoints"`
}

// Credentials identify the LLM provider for a translation request. They are
// session-scoped and never persisted.
type Credentials struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
}

// MatchedDetail names one rule hit in a test evaluation.
type MatchedDetail struct {
	RuleName          string `json:"rule_name"`
	HitType           string `json:"hit_type"`
	TriggerExpression string `json:"trigger_expression"`
}

// TestResult is the evaluation service's verdict for one test run.
type TestResult struct {
	Outcome        string          `json:"outcome"`
	MatchedDetails []MatchedDetail `json:"matched_details"`
	RequestID      string          `json:"request_id"`
}

// RuleEngine is the persistence collaborator contract.
type RuleEngine interface {
	ListGroups(ctx context.Context) ([]RuleGroup, error)
	CreateGroup(ctx context.Context, name, description string) (*RuleGroup, error)
	GetGroup(ctx context.Context, id string) (*RuleGroup, error)
	UpdateDatapoints(ctx context.Context, groupID string, defs []schema.Definition) error
	CreateRule(ctx context.Context, groupID string, req CreateRuleRequest) (*CreatedRule, error)
}

// Decision is the translation/evaluation collaborator contract.
type Decision interface {
	CheckConnection(ctx context.Context, creds Credentials) error
	Translate(ctx context.Context, req TranslateRequest) (*thread.Proposal, error)
	ExecuteTest(ctx context.Context, groupID, description string, context map[string]any) (*TestResult, error)
}

// CreateRuleRequest carries the full accepted proposal to the persistence
// service.
type CreateRuleRequest struct {
	Name       string   `json:"name"`
	Feature    string   `json:"feature"`
	RuleLogic  string   `json:"rule_logic"`
	EdgeCases  []string `json:"edge_cases"`
	Datapoints []string `json:"datapoints"`
}

// TranslateRequest carries one natural-language instruction plus everything
// the translation service needs to ground it.
type TranslateRequest struct {
	NaturalLanguage      string              `json:"natural_language"`
	Feature              string              `json:"feature"`
	Name                 string              `json:"name"`
	Provider             string              `json:"provider"`
	Model                string              `json:"model"`
	APIKey               string              `json:"api_key"`
	DatapointDefinitions []schema.Definition `json:"datapoint_definitions"`
}

// ServiceError is a non-2xx collaborator response. Status is the upstream
// HTTP status; Message is the upstream body's error message when one can be
// decoded, otherwise a generic description.
type ServiceError struct {
	Service string
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.Status, e.Message)
}

// decodeInto reads a JSON response body into out, mapping failures to a
// ServiceError so callers can surface a readable message.
func decodeInto(service string, resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ServiceError{Service: service, Status: resp.StatusCode, Message: errorMessage(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse %s response: %w", service, err)
	}
	return nil
}

// errorMessage pulls a human-readable message out of an error body. Both
// collaborators use either {"detail": "..."} or {"error": {"message": "..."}}.
func errorMessage(body []byte) string {
	var detail struct {
		Detail string `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &detail) == nil {
		if detail.Detail != "" {
			return detail.Detail
		}
		if detail.Error.Message != "" {
			return detail.Error.Message
		}
	}
	if len(body) == 0 {
		return "no response body"
	}
	return string(body)
}
