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

	"rulemaker-backend/internal/thread"
)

// DecisionClient talks to the decision service: LLM connection checks, rule
// translation and sandboxed test execution.
type DecisionClient struct {
	baseURL          string
	client           *http.Client
	requestTimeout   time.Duration
	translateTimeout time.Duration
}

// NewDecisionClient creates a client for the decision service at baseURL.
// Translation gets its own, longer timeout since it waits on an LLM.
func NewDecisionClient(baseURL string, requestTimeout, translateTimeout time.Duration) *DecisionClient {
	return &DecisionClient{
		baseURL:          strings.TrimRight(baseURL, "/"),
		client:           &http.Client{},
		requestTimeout:   requestTimeout,
		translateTimeout: translateTimeout,
	}
}

func (c *DecisionClient) post(ctx context.Context, path string, timeout time.Duration, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal decision request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create decision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("decision service unreachable: %w", err)
	}
	defer resp.Body.Close()

	return decodeInto("decision service", resp, out)
}

// CheckConnection verifies the provider credentials with a cheap round trip.
// A nil return means the credentials can be cached for the session.
func (c *DecisionClient) CheckConnection(ctx context.Context, creds Credentials) error {
	return c.post(ctx, "/v1/llm/connection", c.requestTimeout, creds, nil)
}

// Translate converts a natural-language instruction into a rule proposal.
func (c *DecisionClient) Translate(ctx context.Context, req TranslateRequest) (*thread.Proposal, error) {
	var p thread.Proposal
	if err := c.post(ctx, "/v1/llm/translate", c.translateTimeout, req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ExecuteTest runs the group's rules against a typed context in the sandbox.
// The service takes the context as URL-encoded JSON on a GET, mirroring its
// published contract.
func (c *DecisionClient) ExecuteTest(ctx context.Context, groupID, description string, typedCtx map[string]any) (*TestResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	raw, err := json.Marshal(typedCtx)
	if err != nil {
		return nil, fmt.Errorf("marshal test context: %w", err)
	}
	q := url.Values{}
	q.Set("request_description", description)
	q.Set("context", string(raw))
	q.Set("group_id", groupID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/decide?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create decide request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("decision service unreachable: %w", err)
	}
	defer resp.Body.Close()

	var result TestResult
	if err := decodeInto("decision service", resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
