// Package llm talks to the external text-generation service.
package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ent0n29/saba/internal/observability"
	"github.com/ent0n29/saba/internal/reliability"
)

// ErrUpstreamUnavailable wraps every failure to obtain usable text: transport
// errors, non-2xx statuses, and responses that do not match the schema.
var ErrUpstreamUnavailable = errors.New("text generation unavailable")

// Role of a history turn, in the service's vocabulary.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one prior message given as context.
type Turn struct {
	Role Role
	Text string
}

// Request is a single generation call. Purpose labels metrics and logs.
type Request struct {
	Purpose string
	System  string
	History []Turn
	Prompt  string
}

// Adapter produces text for a request.
type Adapter interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config controls adapter construction.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	FallbackModel string
	Timeout       time.Duration
	MaxRetries    int
}

// NewAdapter returns nil when no API key is configured; callers treat a nil
// adapter as "service unavailable" and use their local fallback.
func NewAdapter(cfg Config, metrics *observability.Metrics) Adapter {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	retry := reliability.Policy{MaxRetries: cfg.MaxRetries, Base: 500 * time.Millisecond, Cap: 8 * time.Second}
	var adapter Adapter = NewGeminiAdapter(cfg.BaseURL, cfg.Model, cfg.APIKey, cfg.Timeout, retry)
	if fb := strings.TrimSpace(cfg.FallbackModel); fb != "" && fb != cfg.Model {
		adapter = NewFallbackAdapter(adapter, NewGeminiAdapter(cfg.BaseURL, fb, cfg.APIKey, cfg.Timeout, retry))
	}
	return NewObservedAdapter(adapter, metrics)
}
