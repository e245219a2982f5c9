package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/go-resty/resty/v2"
)

// The client surfaces every failure as exactly one of the five error
// kinds below. Callers match them with errors.As:
//
//	var rle *client.RateLimitError
//	if errors.As(err, &rle) { ... }

// ConnectionError means no usable network-level response was obtained.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError means the per-request deadline elapsed before a response
// arrived.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out: %v", e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// APIError is a structured failure returned by the backend.
type APIError struct {
	Code       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// RateLimitError is returned when the backend keeps answering 429 after
// the pipeline has already waited out one advertised Retry-After window.
type RateLimitError struct {
	// RetryAfter is the wait the backend advertised, in seconds.
	RetryAfter int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfter)
}

// ValidationError reports bad input caught before any network call, or a
// backend payload missing a required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Reason)
}

// defaultRetryAfter is used when a 429 carries no Retry-After header.
const defaultRetryAfter = 60

// errorBody is the machine-readable error envelope the backend attaches
// to failure responses.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify maps a transport outcome to one of the error kinds. It is a
// pure function of its inputs; retry decisions live in the pipeline.
func classify(resp *resty.Response, err error) error {
	if err != nil {
		if isTimeout(err) {
			return &TimeoutError{Err: err}
		}
		return &ConnectionError{Err: err}
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After"))}
	default:
		apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}
		if body := parseErrorBody(resp.Body()); body != nil {
			if body.Code != "" {
				apiErr.Code = body.Code
			}
			if body.Message != "" {
				apiErr.Message = body.Message
			}
		}
		return apiErr
	}
}

// parseErrorBody accepts both the bare error body and the enveloped
// form {"error": {...}} the backend uses on some endpoints.
func parseErrorBody(data []byte) *errorBody {
	var env struct {
		Error *errorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil {
		return env.Error
	}
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && (body.Code != "" || body.Message != "") {
		return &body
	}
	return nil
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if os.IsTimeout(err) {
		return true
	}
	for unwrapped := err; unwrapped != nil; {
		if unwrapped == context.DeadlineExceeded {
			return true
		}
		u, ok := unwrapped.(interface{ Unwrap() error })
		if !ok {
			break
		}
		unwrapped = u.Unwrap()
	}
	return false
}

// retryable reports whether the pipeline may spend retry budget on err.
// Only network failures, timeouts and 5xx responses qualify; everything
// else is surfaced immediately.
func retryable(err error) bool {
	switch e := err.(type) {
	case *ConnectionError, *TimeoutError:
		return true
	case *APIError:
		return e.StatusCode >= 500 && e.StatusCode <= 599
	default:
		return false
	}
}

func parseRetryAfter(header string) int {
	if header == "" {
		return defaultRetryAfter
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	return secs
}
