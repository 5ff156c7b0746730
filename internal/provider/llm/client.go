// Package llm is a client for OpenAI-compatible chat completion endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/genforge/internal/config"
	"github.com/kiranshivaraju/genforge/internal/httpclient"
)

var (
	ErrEmptyContent    = errors.New("llm: empty content")
	ErrRequestFailed   = errors.New("llm: request failed")
	ErrInvalidResponse = errors.New("llm: invalid response")
	ErrUnreachable     = errors.New("llm: endpoint unreachable")
)

// DefaultTemperature is used when a Request leaves Temperature at zero.
const DefaultTemperature = 0.7

// Request is one chat completion call.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Completion is the assistant reply plus the sanitized request and raw response for auditing.
type Completion struct {
	Content  string
	Request  map[string]any
	Response map[string]any
}

// Client sends chat completion requests.
type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	model      string
	referer    string
	title      string
	httpClient *http.Client
	retry      httpclient.RetryPolicy
}

var _ Client = (*HTTPClient)(nil)

// NewClient creates a new chat completion client from configuration.
func NewClient(cfg config.LLMConfig) *HTTPClient {
	retry := httpclient.DefaultRetryPolicy()
	retry.MaxRetries = cfg.MaxRetries
	return &HTTPClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		referer:    cfg.Referer,
		title:      cfg.Title,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      retry,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *HTTPClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	payload := chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	resp, err := httpclient.Do(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range c.headers() {
			r.Header.Set(k, v)
		}
		return r, nil
	}, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: HTTP %d, %s", ErrRequestFailed, resp.StatusCode, resp.Body)
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}

	var raw map[string]any
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return &Completion{
		Content:  content,
		Request:  c.describe(url, payload),
		Response: raw,
	}, nil
}

func (c *HTTPClient) headers() map[string]string {
	h := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + c.apiKey,
	}
	if c.referer != "" {
		h["HTTP-Referer"] = c.referer
	}
	if c.title != "" {
		h["X-Title"] = c.title
	}
	return h
}

// describe builds the audit copy of a request: the credential is masked and
// inline image data is truncated.
func (c *HTTPClient) describe(url string, payload chatRequest) map[string]any {
	headers := map[string]any{}
	for k, v := range c.headers() {
		if k == "Authorization" {
			v = "Bearer ***"
		}
		headers[k] = v
	}

	messages := make([]any, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		messages = append(messages, m.sanitized())
	}

	return map[string]any{
		"url":     url,
		"headers": headers,
		"payload": map[string]any{
			"model":       payload.Model,
			"messages":    messages,
			"max_tokens":  payload.MaxTokens,
			"temperature": payload.Temperature,
		},
	}
}
