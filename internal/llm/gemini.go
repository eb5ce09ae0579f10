package llm

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

	"github.com/ent0n29/saba/internal/reliability"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiAdapter calls the generateContent REST endpoint.
type GeminiAdapter struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	retry   reliability.Policy
}

func NewGeminiAdapter(baseURL, model, apiKey string, timeout time.Duration, retry reliability.Policy) *GeminiAdapter {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultGeminiBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiAdapter{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:   strings.TrimSpace(model),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content      *geminiContent `json:"content"`
		FinishReason string         `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (a *GeminiAdapter) endpoint() string {
	return fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, url.PathEscape(a.model))
}

func buildGenerateRequest(req Request) generateRequest {
	out := generateRequest{}
	if s := strings.TrimSpace(req.System); s != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: s}}}
	}
	for _, turn := range req.History {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		role := RoleUser
		if turn.Role == RoleModel {
			role = RoleModel
		}
		out.Contents = append(out.Contents, geminiContent{Role: string(role), Parts: []geminiPart{{Text: turn.Text}}})
	}
	out.Contents = append(out.Contents, geminiContent{Role: string(RoleUser), Parts: []geminiPart{{Text: req.Prompt}}})
	return out
}

func (a *GeminiAdapter) Generate(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(buildGenerateRequest(req))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var text string
	err = reliability.Do(ctx, a.retry, func(ctx context.Context) error {
		var callErr error
		text, callErr = a.call(ctx, payload)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (a *GeminiAdapter) call(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.apiKey)

	res, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return "", reliability.Retryable(fmt.Errorf("%w: send request: %v", ErrUpstreamUnavailable, err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		statusErr := fmt.Errorf("%w: gemini http status %d: %s", ErrUpstreamUnavailable, res.StatusCode, strings.TrimSpace(string(body)))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return "", reliability.Retryable(statusErr)
		}
		return "", statusErr
	}

	var parsed generateResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 4<<20)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}
	return parsed.text()
}

// text validates the response shape and joins the first candidate's parts.
func (r generateResponse) text() (string, error) {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", ErrUpstreamUnavailable, r.PromptFeedback.BlockReason)
	}
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: response has no candidates", ErrUpstreamUnavailable)
	}
	var out strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("%w: empty candidate (finish reason %q)", ErrUpstreamUnavailable, r.Candidates[0].FinishReason)
	}
	return text, nil
}
