// Package taskservice is a typed client for the task service's /api/tasks
// contract. The caller's bearer token is forwarded as the token query
// parameter (or body field on create), which is how the service identifies
// the owner.
package taskservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/saba/internal/observability"
	"github.com/ent0n29/saba/internal/reliability"
	"github.com/ent0n29/saba/internal/tasks"
)

var (
	ErrUpstreamUnavailable = errors.New("task service unavailable")
	ErrTaskNotFound        = errors.New("task not found")
	ErrRejected            = errors.New("task service rejected the request")
)

// ListResponse is the body of GET /api/tasks.
type ListResponse struct {
	Success bool         `json:"success"`
	Tasks   []tasks.Task `json:"tasks"`
	Error   string       `json:"error,omitempty"`
}

// TaskResponse is the body of POST /api/tasks.
type TaskResponse struct {
	Success bool        `json:"success"`
	Task    *tasks.Task `json:"task"`
	Error   string      `json:"error,omitempty"`
}

// StatusResponse is the body of PATCH and DELETE.
type StatusResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// API is the task-service surface the rest of the backend depends on.
type API interface {
	List(ctx context.Context, token string) ([]tasks.Task, error)
	Create(ctx context.Context, token string, req tasks.CreateRequest) (tasks.Task, error)
	Patch(ctx context.Context, token, taskID string, patch tasks.Patch) error
	Delete(ctx context.Context, token, taskID string) error
}

type Client struct {
	baseURL string
	client  *http.Client
	retry   reliability.Policy
	metrics *observability.Metrics
}

func NewClient(baseURL string, timeout time.Duration, retry reliability.Policy, metrics *observability.Metrics) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
		metrics: metrics,
	}
}

func (c *Client) List(ctx context.Context, token string) ([]tasks.Task, error) {
	list, err := c.list(ctx, token)
	return list, c.observe("list", err)
}

// Create is not retried; the service deduplicates identical creates within
// a short window but a retry could still race it.
func (c *Client) Create(ctx context.Context, token string, req tasks.CreateRequest) (tasks.Task, error) {
	task, err := c.create(ctx, token, req)
	return task, c.observe("create", err)
}

func (c *Client) Patch(ctx context.Context, token, taskID string, patch tasks.Patch) error {
	return c.observe("patch", c.status(ctx, http.MethodPatch, taskID, token, patch))
}

func (c *Client) Delete(ctx context.Context, token, taskID string) error {
	return c.observe("delete", c.status(ctx, http.MethodDelete, taskID, token, nil))
}

func (c *Client) list(ctx context.Context, token string) ([]tasks.Task, error) {
	var out ListResponse
	err := reliability.Do(ctx, c.retry, func(ctx context.Context) error {
		out = ListResponse{}
		return c.do(ctx, http.MethodGet, c.tasksURL("", token), nil, &out)
	})
	if err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, failure(out.Error)
	}
	if out.Tasks == nil {
		out.Tasks = []tasks.Task{}
	}
	return out.Tasks, nil
}

func (c *Client) create(ctx context.Context, token string, req tasks.CreateRequest) (tasks.Task, error) {
	if req.Token == "" {
		req.Token = token
	}
	var out TaskResponse
	if err := c.do(ctx, http.MethodPost, c.tasksURL("", ""), req, &out); err != nil {
		return tasks.Task{}, err
	}
	if !out.Success {
		return tasks.Task{}, failure(out.Error)
	}
	if out.Task == nil || strings.TrimSpace(out.Task.ID) == "" {
		return tasks.Task{}, fmt.Errorf("%w: response carried no task id", ErrUpstreamUnavailable)
	}
	return *out.Task, nil
}

func (c *Client) status(ctx context.Context, method, taskID, token string, body any) error {
	if strings.TrimSpace(taskID) == "" {
		return ErrTaskNotFound
	}
	var out StatusResponse
	err := reliability.Do(ctx, c.retry, func(ctx context.Context) error {
		out = StatusResponse{}
		return c.do(ctx, method, c.tasksURL(taskID, token), body, &out)
	})
	if err != nil {
		return err
	}
	if !out.Success {
		return failure(out.Error)
	}
	return nil
}

func (c *Client) tasksURL(taskID, token string) string {
	u := c.baseURL + "/api/tasks"
	if taskID != "" {
		u += "/" + url.PathEscape(taskID)
	}
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

func (c *Client) do(ctx context.Context, method, target string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return reliability.Retryable(fmt.Errorf("%w: send request: %v", ErrUpstreamUnavailable, err))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return reliability.Retryable(fmt.Errorf("%w: read response: %v", ErrUpstreamUnavailable, err))
	}

	switch {
	case res.StatusCode == http.StatusNotFound:
		return ErrTaskNotFound
	case res.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrRejected, upstreamMessage(raw))
	case res.StatusCode < 200 || res.StatusCode >= 300:
		statusErr := fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, res.StatusCode, upstreamMessage(raw))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return reliability.Retryable(statusErr)
		}
		return statusErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}
	return nil
}

func (c *Client) observe(op string, err error) error {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrTaskNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrRejected):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	c.metrics.ObserveTaskServiceCall(op, outcome)
	return err
}

func failure(message string) error {
	if strings.TrimSpace(message) == "" {
		message = "success=false"
	}
	return fmt.Errorf("%w: %s", ErrUpstreamUnavailable, message)
}

func upstreamMessage(raw []byte) string {
	var body StatusResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
