// Package incidentmgmt closes the loop back to the incident-management
// platform an alert arrived from: acknowledging it once a remediation
// starts, resolving it once the Incident reaches a terminal outcome. No
// PagerDuty SDK is pulled by any example in the corpus, so this is a thin
// hand-rolled client in the same style as the teacher's own Mattermost
// client — a single `do` helper wrapping net/http, not a generated stack.
package incidentmgmt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.pagerduty.com"

// Client is a thin wrapper over the PagerDuty REST API v2's incident
// acknowledge/resolve endpoints (the Events API v2 isn't used here since
// spec.md's flow always starts from an already-created PagerDuty incident).
type Client struct {
	baseURL    string
	apiToken   string
	from       string // the PagerDuty user email incident actions are attributed to
	httpClient *http.Client
}

// NewClient builds a Client. from is the email PagerDuty requires in the
// From header for incident-level actions taken "on behalf of" an account.
func NewClient(apiToken, from string) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiToken:   apiToken,
		from:       from,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type incidentUpdateRequest struct {
	Incident incidentUpdate `json:"incident"`
}

type incidentUpdate struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

// Acknowledge marks incidentID as acknowledged — called once the
// orchestrator transitions an Incident into StateExecuting, so a human
// on-call sees the engine has picked it up.
func (c *Client) Acknowledge(ctx context.Context, incidentID string) error {
	return c.setStatus(ctx, incidentID, "acknowledged")
}

// Resolve marks incidentID as resolved — called once an Incident reaches
// StateResolved.
func (c *Client) Resolve(ctx context.Context, incidentID string) error {
	return c.setStatus(ctx, incidentID, "resolved")
}

func (c *Client) setStatus(ctx context.Context, incidentID, status string) error {
	body := incidentUpdateRequest{Incident: incidentUpdate{Type: "incident_reference", Status: status}}
	return c.do(ctx, http.MethodPut, "/incidents/"+incidentID, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token token="+c.apiToken)
	req.Header.Set("From", c.from)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.pagerduty+json;version=2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pagerduty API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
