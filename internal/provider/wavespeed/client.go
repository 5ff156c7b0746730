// Package wavespeed is a client for the Wavespeed media generation API:
// a job is submitted once and then polled until it completes or fails.
package wavespeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiranshivaraju/genforge/internal/config"
	"github.com/kiranshivaraju/genforge/internal/httpclient"
)

var (
	ErrSubmitFailed    = errors.New("wavespeed: submit failed")
	ErrTaskFailed      = errors.New("wavespeed: task failed")
	ErrPollTimeout     = errors.New("wavespeed: poll timeout")
	ErrInvalidResponse = errors.New("wavespeed: invalid response")
	ErrUnreachable     = errors.New("wavespeed: provider unreachable")
)

const (
	StatusCreated    = "created"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Result is the state of a submitted job as reported by the provider.
type Result struct {
	ID      string
	Status  string
	Outputs []string
	Error   string
	Raw     map[string]any
}

// Client submits jobs and waits for their results.
type Client interface {
	Submit(ctx context.Context, endpoint string, payload map[string]any) (string, error)
	Result(ctx context.Context, id string) (*Result, error)
	Wait(ctx context.Context, id string) (*Result, error)
	Describe(endpoint string, payload map[string]any) map[string]any
}

// HTTPClient implements Client over the Wavespeed REST API.
type HTTPClient struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	maxWait      time.Duration
	httpClient   *http.Client
	retry        httpclient.RetryPolicy
}

var _ Client = (*HTTPClient)(nil)

// NewClient creates a new Wavespeed client from configuration.
func NewClient(cfg config.WavespeedConfig) *HTTPClient {
	retry := httpclient.DefaultRetryPolicy()
	retry.MaxRetries = cfg.MaxRetries
	return &HTTPClient{
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
		httpClient:   &http.Client{Timeout: cfg.RequestTimeout},
		retry:        retry,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type prediction struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Outputs []string `json:"outputs"`
	Error   string   `json:"error"`
}

// Submit posts payload to {base}/{endpoint} and returns the provider job id.
func (c *HTTPClient) Submit(ctx context.Context, endpoint string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	url := c.baseURL + "/" + endpoint
	resp, err := httpclient.Do(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return req, nil
	}, c.retry)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("%w: Error: %d, %s", ErrSubmitFailed, resp.StatusCode, resp.Body)
	}

	pred, _, err := decodePrediction(resp.Body)
	if err != nil {
		return "", err
	}
	if pred.ID == "" {
		return "", fmt.Errorf("%w: submit response has no data.id", ErrInvalidResponse)
	}
	return pred.ID, nil
}

// Result fetches the current state of job id once.
func (c *HTTPClient) Result(ctx context.Context, id string) (*Result, error) {
	url := fmt.Sprintf("%s/predictions/%s/result", c.baseURL, id)
	resp, err := httpclient.Do(ctx, c.httpClient, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req)
		return req, nil
	}, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("%w: result status %d: %s", ErrInvalidResponse, resp.StatusCode, resp.Body)
	}

	pred, raw, err := decodePrediction(resp.Body)
	if err != nil {
		return nil, err
	}
	if pred.ID == "" {
		pred.ID = id
	}
	return &Result{
		ID:      pred.ID,
		Status:  pred.Status,
		Outputs: pred.Outputs,
		Error:   pred.Error,
		Raw:     raw,
	}, nil
}

// Wait polls job id every poll interval until it completes or fails, bounded by the max wait.
// A completed job must carry at least one output.
func (c *HTTPClient) Wait(ctx context.Context, id string) (*Result, error) {
	if c.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.maxWait)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		res, err := c.Result(ctx, id)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: exceeded %s waiting for %s", ErrPollTimeout, c.maxWait, id)
			}
			return nil, err
		}

		switch res.Status {
		case StatusCompleted:
			if len(res.Outputs) == 0 {
				return nil, fmt.Errorf("%w: completed job %s has no outputs", ErrInvalidResponse, id)
			}
			return res, nil
		case StatusFailed:
			msg := res.Error
			if msg == "" {
				msg = "Unknown error"
			}
			return nil, fmt.Errorf("%w: %s", ErrTaskFailed, msg)
		}

		slog.Debug("wavespeed job still processing", "job_id", id, "status", res.Status)

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: exceeded %s waiting for %s", ErrPollTimeout, c.maxWait, id)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Describe returns the audit copy of a submit request with the credential masked.
func (c *HTTPClient) Describe(endpoint string, payload map[string]any) map[string]any {
	return map[string]any{
		"url":    c.baseURL + "/" + endpoint,
		"method": http.MethodPost,
		"headers": map[string]any{
			"Content-Type":  "application/json",
			"Authorization": "Bearer ***",
		},
		"payload": payload,
	}
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func decodePrediction(body []byte) (*prediction, map[string]any, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil, fmt.Errorf("%w: response has no data", ErrInvalidResponse)
	}

	var pred prediction
	if err := json.Unmarshal(env.Data, &pred); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &pred, raw, nil
}
