package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rulemaker-backend/internal/schema"
)

// RuleEngineClient talks to the rule-group persistence service.
type RuleEngineClient struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewRuleEngineClient creates a client for the persistence service at
// baseURL. timeout bounds every call.
func NewRuleEngineClient(baseURL string, timeout time.Duration) *RuleEngineClient {
	return &RuleEngineClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

func (c *RuleEngineClient) do(ctx context.Context, method, path string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal rule engine request: %w", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create rule engine request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("rule engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	return decodeInto("rule engine", resp, out)
}

// ListGroups fetches all rule groups in service order.
func (c *RuleEngineClient) ListGroups(ctx context.Context) ([]RuleGroup, error) {
	var groups []RuleGroup
	if err := c.do(ctx, http.MethodGet, "/v1/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// CreateGroup creates a named rule group.
func (c *RuleEngineClient) CreateGroup(ctx context.Context, name, description string) (*RuleGroup, error) {
	payload := map[string]string{"name": name, "description": description}
	var g RuleGroup
	if err := c.do(ctx, http.MethodPost, "/v1/groups", payload, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGroup fetches one group including its datapoint definitions. Used to
// hydrate the session's schema model on group switch.
func (c *RuleEngineClient) GetGroup(ctx context.Context, id string) (*RuleGroup, error) {
	var g RuleGroup
	if err := c.do(ctx, http.MethodGet, "/v1/groups/"+url.PathEscape(id), nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// UpdateDatapoints persists datapoint definitions for a group. The call is
// idempotent: the service overlays by name, so retrying a failed save is safe.
func (c *RuleEngineClient) UpdateDatapoints(ctx context.Context, groupID string, defs []schema.Definition) error {
	path := "/v1/groups/" + url.PathEscape(groupID) + "/datapoints"
	return c.do(ctx, http.MethodPatch, path, defs, nil)
}

// CreateRule persists an accepted proposal as a rule in the group.
func (c *RuleEngineClient) CreateRule(ctx context.Context, groupID string, req CreateRuleRequest) (*CreatedRule, error) {
	path := "/v1/groups/" + url.PathEscape(groupID) + "/rules"
	var created CreatedRule
	if err := c.do(ctx, http.MethodPost, path, req, &created); err != nil {
		return nil, err
	}
	return &created, nil
}
