package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// requestSpec describes one logical request. Timeout and MaxRetries,
// when set, override the client defaults for this call only.
type requestSpec struct {
	Method     string
	Path       string
	Query      map[string]string
	Body       any
	Timeout    time.Duration
	MaxRetries int
}

// envelope is the wrapper the backend puts around every payload. Some
// endpoints (health, for one) reply with the bare payload instead, so
// both Success and Data are optional.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *errorBody      `json:"error"`
}

// do runs one logical request through the pipeline and decodes the
// payload into out. It returns nil or exactly one of the five error
// kinds. Retries are strictly sequential: network failures, timeouts and
// 5xx responses are retried with exponential backoff up to the attempt
// budget; a 429 is granted one extra wait-and-retry outside the budget;
// other 4xx responses surface immediately.
func (c *Client) do(ctx context.Context, spec requestSpec, out any) error {
	budget := c.cfg.MaxRetries
	if spec.MaxRetries > 0 {
		budget = spec.MaxRetries
	}
	timeout := c.cfg.Timeout
	if spec.Timeout > 0 {
		timeout = spec.Timeout
	}

	var (
		lastErr          error
		rateLimitWaited  bool
		pendingRateLimit int // seconds to wait before the extra 429 retry
	)

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			var wait time.Duration
			if pendingRateLimit > 0 {
				wait = time.Duration(pendingRateLimit) * time.Second
				pendingRateLimit = 0
			} else {
				wait = backoffDelay(attempt, c.cfg.RetryDelay, c.cfg.MaxRetryWait)
			}
			c.log.WithFields(logrus.Fields{
				"method":  spec.Method,
				"path":    spec.Path,
				"attempt": attempt,
				"wait":    wait,
			}).Debug("retrying request")
			if err := sleep(ctx, wait); err != nil {
				return &ConnectionError{Err: err}
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return &ConnectionError{Err: err}
			}
		}

		resp, err := c.send(ctx, spec, timeout)
		if err == nil && resp.IsSuccess() {
			c.log.WithFields(logrus.Fields{
				"method":   spec.Method,
				"path":     spec.Path,
				"status":   resp.StatusCode(),
				"attempts": attempt,
			}).Debug("request succeeded")
			return decodePayload(resp.Body(), out)
		}

		kind := classify(resp, err)

		if rle, ok := kind.(*RateLimitError); ok && !rateLimitWaited {
			// One extra retry after the advertised wait, regardless of
			// the remaining budget. A second failure of any kind after
			// this is surfaced as the rate-limit error.
			rateLimitWaited = true
			pendingRateLimit = rle.RetryAfter
			lastErr = rle
			c.log.WithFields(logrus.Fields{
				"method":      spec.Method,
				"path":        spec.Path,
				"retry_after": rle.RetryAfter,
			}).Warn("rate limited, waiting before one retry")
			continue
		}
		if rateLimitWaited {
			if rle, ok := lastErr.(*RateLimitError); ok {
				c.logFailure(spec, attempt, rle)
				return rle
			}
		}

		if !retryable(kind) {
			c.logFailure(spec, attempt, kind)
			return kind
		}

		lastErr = kind
		if attempt >= budget {
			c.logFailure(spec, attempt, kind)
			return kind
		}
	}
}

func (c *Client) logFailure(spec requestSpec, attempts int, err error) {
	c.log.WithFields(logrus.Fields{
		"method":   spec.Method,
		"path":     spec.Path,
		"attempts": attempts,
	}).WithError(err).Warn("request failed")
}

// send issues a single attempt with its own deadline.
func (c *Client) send(ctx context.Context, spec requestSpec, timeout time.Duration) (*resty.Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := c.http.R().SetContext(attemptCtx)
	if c.cfg.APIKey != "" {
		r.SetHeader("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if len(spec.Query) > 0 {
		r.SetQueryParams(spec.Query)
	}
	if spec.Body != nil {
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(spec.Body)
	}

	switch spec.Method {
	case http.MethodGet:
		return r.Get(spec.Path)
	case http.MethodPost:
		return r.Post(spec.Path)
	case http.MethodPut:
		return r.Put(spec.Path)
	case http.MethodDelete:
		return r.Delete(spec.Path)
	default:
		return nil, errors.Errorf("unsupported method %q", spec.Method)
	}
}

// decodePayload unwraps the response envelope when one is present and
// decodes the payload into out. Extra backend fields are ignored; a
// payload that cannot be decoded is a malformed response, reported as a
// ValidationError rather than silently defaulted.
func decodePayload(body []byte, out any) error {
	payload := body

	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Success != nil || env.Data != nil) {
		if env.Success != nil && !*env.Success {
			apiErr := &APIError{StatusCode: http.StatusOK, Message: "backend reported failure"}
			if env.Error != nil {
				apiErr.Code = env.Error.Code
				if env.Error.Message != "" {
					apiErr.Message = env.Error.Message
				}
			}
			return apiErr
		}
		if env.Data != nil {
			payload = env.Data
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &ValidationError{Field: "body", Reason: "malformed response: " + err.Error()}
	}
	return nil
}
