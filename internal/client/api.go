// Package client keeps a signed-in user's local view of tasks, memories and
// conversations consistent with the server.
package client

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

	"github.com/ent0n29/saba/internal/conversations"
	"github.com/ent0n29/saba/internal/memory"
	"github.com/ent0n29/saba/internal/reliability"
	"github.com/ent0n29/saba/internal/tasks"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrDuplicateMemory    = errors.New("duplicate memory content")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// APIError is a non-2xx response from the server. It matches the sentinel
// errors above with errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrDuplicateMemory:
		return e.Status == http.StatusConflict && e.Code == "duplicate_memory"
	case ErrServiceUnavailable:
		return e.Status == http.StatusBadGateway || e.Status >= http.StatusInternalServerError
	}
	return false
}

// ChatReply is the server's answer to a chat message.
type ChatReply struct {
	Response       string      `json:"response"`
	ConversationID string      `json:"conversationId"`
	Task           *tasks.Task `json:"task,omitempty"`
}

// Extraction is the outcome of a memory extraction request.
type Extraction struct {
	Added   []memory.Memory `json:"added"`
	Skipped bool            `json:"skipped"`
}

// API is the server surface the workspace reconciles against. Every call is
// made on behalf of one signed-in user.
type API interface {
	ListTasks(ctx context.Context) ([]tasks.Task, error)
	CreateTask(ctx context.Context, req tasks.CreateRequest) (tasks.Task, error)
	PatchTask(ctx context.Context, id string, patch tasks.Patch) error
	DeleteTask(ctx context.Context, id string) error

	ListConversations(ctx context.Context) ([]conversations.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	SendMessage(ctx context.Context, message, conversationID string) (ChatReply, error)

	ListMemories(ctx context.Context) ([]memory.Memory, error)
	AddMemories(ctx context.Context, contents []string) ([]memory.Memory, error)
	UpdateMemory(ctx context.Context, id string, patch memory.Patch) (memory.Memory, error)
	DeleteMemory(ctx context.Context, id string) error
	ExtractMemories(ctx context.Context, conversationID string) (Extraction, error)
}

// HTTPClient implements API against the /v1 routes.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	retry   reliability.Policy
}

// NewHTTPClient builds a client that authenticates with token. Reads are
// retried per retry; writes are sent once.
func NewHTTPClient(baseURL, token string, timeout time.Duration, retry reliability.Policy) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

func (c *HTTPClient) ListTasks(ctx context.Context) ([]tasks.Task, error) {
	var out struct {
		Tasks []tasks.Task `json:"tasks"`
	}
	if err := c.get(ctx, "/v1/tasks", &out); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return out.Tasks, nil
}

func (c *HTTPClient) CreateTask(ctx context.Context, req tasks.CreateRequest) (tasks.Task, error) {
	var out struct {
		Task tasks.Task `json:"task"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", req, &out); err != nil {
		return tasks.Task{}, fmt.Errorf("create task: %w", err)
	}
	if out.Task.ID == "" {
		return tasks.Task{}, fmt.Errorf("create task: %w: response without task id", ErrServiceUnavailable)
	}
	return out.Task, nil
}

func (c *HTTPClient) PatchTask(ctx context.Context, id string, patch tasks.Patch) error {
	if err := c.do(ctx, http.MethodPatch, "/v1/tasks/"+url.PathEscape(id), patch, nil); err != nil {
		return fmt.Errorf("patch task: %w", err)
	}
	return nil
}

func (c *HTTPClient) DeleteTask(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/tasks/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func (c *HTTPClient) ListConversations(ctx context.Context) ([]conversations.Conversation, error) {
	var out struct {
		Conversations []conversations.Conversation `json:"conversations"`
	}
	if err := c.get(ctx, "/v1/conversations", &out); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out.Conversations, nil
}

func (c *HTTPClient) DeleteConversation(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/conversations/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, message, conversationID string) (ChatReply, error) {
	body := map[string]string{"message": message}
	if conversationID != "" {
		body["conversationId"] = conversationID
	}
	var out ChatReply
	if err := c.do(ctx, http.MethodPost, "/v1/chat", body, &out); err != nil {
		return ChatReply{}, fmt.Errorf("send message: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) ListMemories(ctx context.Context) ([]memory.Memory, error) {
	var out struct {
		Memories []memory.Memory `json:"memories"`
	}
	if err := c.get(ctx, "/v1/memory", &out); err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	return out.Memories, nil
}

func (c *HTTPClient) AddMemories(ctx context.Context, contents []string) ([]memory.Memory, error) {
	var out struct {
		Added []memory.Memory `json:"added"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/memory", memory.Input{Contents: contents}, &out); err != nil {
		return nil, fmt.Errorf("add memories: %w", err)
	}
	return out.Added, nil
}

func (c *HTTPClient) UpdateMemory(ctx context.Context, id string, patch memory.Patch) (memory.Memory, error) {
	body := struct {
		ID string `json:"id"`
		memory.Patch
	}{ID: id, Patch: patch}
	var out struct {
		Memories []memory.Memory `json:"memories"`
	}
	if err := c.do(ctx, http.MethodPatch, "/v1/memory", body, &out); err != nil {
		return memory.Memory{}, fmt.Errorf("update memory: %w", err)
	}
	if len(out.Memories) == 0 {
		return memory.Memory{}, fmt.Errorf("update memory: %w: response without memory", ErrServiceUnavailable)
	}
	return out.Memories[0], nil
}

func (c *HTTPClient) DeleteMemory(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/memory?id="+url.QueryEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	return nil
}

func (c *HTTPClient) ExtractMemories(ctx context.Context, conversationID string) (Extraction, error) {
	var out Extraction
	if err := c.do(ctx, http.MethodPost, "/v1/memory/extract", map[string]string{"conversationId": conversationID}, &out); err != nil {
		return Extraction{}, fmt.Errorf("extract memories: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	return reliability.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	res, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return reliability.Retryable(fmt.Errorf("%w: %v", ErrServiceUnavailable, err))
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return reliability.Retryable(fmt.Errorf("%w: read response: %v", ErrServiceUnavailable, err))
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{Status: res.StatusCode}
		var body struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &body) == nil {
			apiErr.Code, apiErr.Message = body.Code, body.Error
		}
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return reliability.Retryable(apiErr)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrServiceUnavailable, err)
	}
	return nil
}
