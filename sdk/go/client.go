// Package missionlinesdk is a minimal typed client for the Missionline HTTP
// API. It mirrors the API's envelope: 2xx bodies decode into the typed
// models, everything else surfaces as an *APIError.
package missionlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to one Missionline server.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. BaseURL includes the API base
// path, e.g. "http://127.0.0.1:8080/v0".
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Mission is the projected current state of one mission.
type Mission struct {
	MissionID string           `json:"mission_id"`
	Status    string           `json:"status"`
	Objective string           `json:"objective"`
	Source    string           `json:"source,omitempty"`
	Plan      *Plan            `json:"plan,omitempty"`
	Result    *ExecutionResult `json:"execution_result,omitempty"`
	CreatedAt string           `json:"created_at"`
	UpdatedAt string           `json:"updated_at"`
	Records   int              `json:"records"`
}

// Plan is a mission's optional plan.
type Plan struct {
	Summary string   `json:"summary,omitempty"`
	Steps   []string `json:"steps,omitempty"`
}

// ExecutionResult is a mission's terminal outcome.
type ExecutionResult struct {
	ToolUsed      string         `json:"tool_used,omitempty"`
	ResultSummary string         `json:"result_summary,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// ApproveResult reports the outcome of an approval call.
type ApproveResult struct {
	MissionID       string `json:"mission_id"`
	Status          string `json:"status"`
	AlreadyApproved bool   `json:"already_approved,omitempty"`
}

// ExecuteResult reports the outcome of an execution call.
type ExecuteResult struct {
	MissionID      string `json:"mission_id"`
	Status         string `json:"status"`
	ToolUsed       string `json:"tool_used,omitempty"`
	ResultSummary  string `json:"result_summary,omitempty"`
	Error          string `json:"error,omitempty"`
	AlreadyRunning bool   `json:"already_running,omitempty"`
	AlreadyDone    bool   `json:"already_done,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateMission proposes a mission.
func (c *Client) CreateMission(ctx context.Context, objective, source string, metadata map[string]any) (Mission, error) {
	body := map[string]any{
		"objective": objective,
	}
	if source != "" {
		body["source"] = source
	}
	if metadata != nil {
		body["metadata"] = metadata
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions", body, &resp)
	return resp, err
}

// GetMission fetches a mission projection by id.
func (c *Client) GetMission(ctx context.Context, missionID string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, "missions/"+url.PathEscape(missionID), nil, &resp)
	return resp, err
}

// ListMissions returns mission projections, optionally filtered by status.
func (c *Client) ListMissions(ctx context.Context, status string) ([]Mission, error) {
	endpoint := "missions"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Mission `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Approve approves a proposed mission. Approving an already-approved mission
// succeeds with AlreadyApproved set.
func (c *Client) Approve(ctx context.Context, missionID string) (ApproveResult, error) {
	var resp ApproveResult
	err := c.do(ctx, http.MethodPost, "missions/"+url.PathEscape(missionID)+"/approve", nil, &resp)
	return resp, err
}

// Execute runs an approved mission to a terminal state.
func (c *Client) Execute(ctx context.Context, missionID string) (ExecuteResult, error) {
	var resp ExecuteResult
	err := c.do(ctx, http.MethodPost, "missions/"+url.PathEscape(missionID)+"/execute", nil, &resp)
	return resp, err
}

// AddPlan attaches a plan to a mission.
func (c *Client) AddPlan(ctx context.Context, missionID string, plan Plan) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "missions/"+url.PathEscape(missionID)+"/plan", plan, &resp)
	return resp, err
}

// TailStream returns the last n raw records of a stream.
func (c *Client) TailStream(ctx context.Context, stream string, n int) ([]json.RawMessage, error) {
	endpoint := fmt.Sprintf("streams/%s/records", url.PathEscape(stream))
	if n > 0 {
		endpoint += fmt.Sprintf("?limit=%d", n)
	}
	var resp struct {
		Records []json.RawMessage `json:"records"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Records, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
