package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// DefaultBodyLimit caps provider JSON responses.
const DefaultBodyLimit = 8 << 20

// RetryPolicy bounds how often a request is re-sent after a transient failure.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	BodyLimit       int64
}

// DefaultRetryPolicy retries up to three times starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		BodyLimit:       DefaultBodyLimit,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	var bo backoff.BackOff = b
	if p.MaxRetries >= 0 {
		bo = backoff.WithMaxRetries(bo, uint64(p.MaxRetries))
	}
	return backoff.WithContext(bo, ctx)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// StatusError describes a non-2xx response.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether a status is worth re-sending: 429 and 5xx.
func Retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Do sends the request built by newReq, retrying transport errors and
// retryable statuses with exponential backoff. Once retries are exhausted the
// last response is returned as is, so callers see the real status and body.
// An error is returned only when no response was ever received.
func Do(ctx context.Context, client *http.Client, newReq func(context.Context) (*http.Request, error), policy RetryPolicy) (*Response, error) {
	if client == nil {
		client = http.DefaultClient
	}

	var last *Response
	op := func() error {
		req, err := newReq(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		body, err := ReadAllWithLimit(resp.Body, policy.BodyLimit)
		if err != nil {
			if IsResponseTooLarge(err) {
				return backoff.Permanent(err)
			}
			return fmt.Errorf("read response body: %w", err)
		}
		last = &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}
		if Retryable(resp.StatusCode) {
			return &StatusError{Code: resp.StatusCode, Body: body}
		}
		return nil
	}

	err := backoff.Retry(op, policy.backOff(ctx))
	if err == nil {
		return last, nil
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && last != nil {
		return last, nil
	}
	return nil, err
}
