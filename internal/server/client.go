package server

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

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// APIError is a non-2xx response from the control API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("webmon daemon: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Client talks to a running daemon's control API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL, e.g. "http://127.0.0.1:7717".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Health reports whether the daemon answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Start issues START_TRACKING.
func (c *Client) Start(ctx context.Context, domains []string, limit time.Duration) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodPost, "/v1/start", StartRequest{
		Domains:     domains,
		TimeLimitMs: limit.Milliseconds(),
	}, &resp)
	return resp, err
}

// Stop issues STOP_TRACKING.
func (c *Client) Stop(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodPost, "/v1/stop", nil, &resp)
	return resp, err
}

// SessionData issues GET_SESSION_DATA.
func (c *Client) SessionData(ctx context.Context) (SessionDataResponse, error) {
	var resp SessionDataResponse
	err := c.do(ctx, http.MethodGet, "/v1/session", nil, &resp)
	return resp, err
}

// Status returns the live session snapshot.
func (c *Client) Status(ctx context.Context) (domain.SessionSnapshot, error) {
	var snap domain.SessionSnapshot
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &snap)
	return snap, err
}

// AddTask adds a task to the active session.
func (c *Client) AddTask(ctx context.Context, text string) (domain.Task, error) {
	var task domain.Task
	err := c.do(ctx, http.MethodPost, "/v1/tasks", TaskRequest{Text: text}, &task)
	return task, err
}

// ToggleTask flips a task's completion.
func (c *Client) ToggleTask(ctx context.Context, id string) (domain.Task, error) {
	var task domain.Task
	err := c.do(ctx, http.MethodPost, "/v1/tasks/"+url.PathEscape(id)+"/toggle", nil, &task)
	return task, err
}

// RemoveTask deletes a task.
func (c *Client) RemoveTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/tasks/"+url.PathEscape(id), nil, nil)
}

// SetDisplayName sets the name shown on block notices and returns the stored value.
func (c *Client) SetDisplayName(ctx context.Context, name string) (string, error) {
	var resp NameRequest
	err := c.do(ctx, http.MethodPut, "/v1/name", NameRequest{DisplayName: name}, &resp)
	return resp.DisplayName, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
