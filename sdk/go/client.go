package runlinesdk

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

// Client is a minimal Runline HTTP API client. Set BearerToken for user
// calls or RunToken for sandbox status reports.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	RunToken    string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model (partial).
type Project struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	Name        string `json:"name"`
	Visibility  string `json:"visibility"`
}

type Model struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

type Version struct {
	ID      string `json:"id"`
	ModelID string `json:"model_id"`
	Message string `json:"message,omitempty"`
}

type FunctionRun struct {
	ID            string `json:"id"`
	RunID         string `json:"run_id"`
	FunctionID    string `json:"function_id"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message,omitempty"`
}

type Run struct {
	ID           string        `json:"id"`
	AutomationID string        `json:"automation_id"`
	Status       string        `json:"status"`
	FunctionRuns []FunctionRun `json:"function_runs,omitempty"`
}

// CheckVerdict is the outcome of a capability check.
type CheckVerdict struct {
	Authorized bool           `json:"authorized"`
	Code       string         `json:"code"`
	Message    string         `json:"message,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, projectID string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v1/projects/"+url.PathEscape(projectID), nil, &resp)
	return resp, err
}

// PublishVersion records a version and returns any spawned runs.
func (c *Client) PublishVersion(ctx context.Context, modelID, message string) (Version, []Run, error) {
	var resp struct {
		Version Version `json:"version"`
		Runs    []Run   `json:"runs"`
	}
	endpoint := fmt.Sprintf("v1/models/%s/versions", url.PathEscape(modelID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"message": message}, &resp)
	return resp.Version, resp.Runs, err
}

// GetRun fetches a run with its function runs.
func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	var resp Run
	err := c.do(ctx, http.MethodGet, "v1/runs/"+url.PathEscape(runID), nil, &resp)
	return resp, err
}

// Check evaluates a capability without performing the action.
func (c *Client) Check(ctx context.Context, scope, workspaceID, projectID, action string) (CheckVerdict, error) {
	var resp CheckVerdict
	err := c.do(ctx, http.MethodPost, "v1/check", map[string]any{
		"scope":        scope,
		"workspace_id": workspaceID,
		"project_id":   projectID,
		"action":       action,
	}, &resp)
	return resp, err
}

// ReportStatus sends a function run status update. The client's RunToken
// must be the token minted for exactly this function run.
func (c *Client) ReportStatus(ctx context.Context, functionRunID, status string, resultsJSON *string) (Run, error) {
	var resp struct {
		Run Run `json:"run"`
	}
	body := map[string]any{"status": status}
	if resultsJSON != nil {
		body["results_json"] = *resultsJSON
	}
	endpoint := fmt.Sprintf("v1/function-runs/%s/status", url.PathEscape(functionRunID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp.Run, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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
	case c.RunToken != "" && strings.Contains(endpoint, "function-runs/"):
		req.Header.Set("Authorization", "Bearer "+c.RunToken)
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
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
