package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// APIErrorItem is one entry of the upstream `errors` array
type APIErrorItem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// UpstreamError is a non-2xx response from the Productboard API
type UpstreamError struct {
	StatusCode int
	Method     string
	Path       string
	Items      []APIErrorItem
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("productboard %s %s: status %d", e.Method, e.Path, e.StatusCode)
	if len(e.Items) > 0 && e.Items[0].Title != "" {
		msg += ": " + e.Items[0].Title
	}
	return msg
}

// NetworkError wraps a transport failure where no response was received
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RateLimitError signals that a call must wait before being attempted.
// It is produced by the local limiter and carries the wait it computed.
type RateLimitError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit reached for %s, retry after %s", e.Key, e.RetryAfter)
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsRetryableStatus reports whether an upstream status is worth retrying
func IsRetryableStatus(status int) bool {
	return retryableStatus[status]
}

// IsRetryable classifies err as transient: rate-limit signals, network
// failures and upstream statuses 429/500/502/503/504.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return !errors.Is(err, context.Canceled)
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return IsRetryableStatus(ue.StatusCode)
	}
	return false
}

// RetryAfter extracts a server- or limiter-provided wait from err
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.RetryAfter > 0 {
		return ue.RetryAfter, true
	}
	return 0, false
}

// Sanitize maps any error onto the caller-visible taxonomy. Messages are
// fixed per category so tokens, URLs and raw upstream bodies never leak.
// Validation messages are produced locally and are passed through.
func Sanitize(err error) *StandardError {
	if err == nil {
		return nil
	}

	var se *StandardError
	if errors.As(err, &se) {
		return se
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return NewRateLimitError(rl.RetryAfter)
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		return sanitizeUpstream(ue)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewStandardError(ErrorCodeTimeout, "Productboard did not respond in time", nil)
	}
	if errors.Is(err, context.Canceled) {
		return NewStandardError(ErrorCodeTimeout, "Request was cancelled", nil)
	}

	var ne *NetworkError
	if errors.As(err, &ne) {
		return NewStandardError(ErrorCodeNetworkError, "Could not reach Productboard; retry shortly", nil)
	}

	return NewInternalError("Internal error while executing the tool")
}

func sanitizeUpstream(ue *UpstreamError) *StandardError {
	switch {
	case ue.StatusCode == http.StatusUnauthorized:
		return NewUnauthorizedError("invalid_or_expired_token")
	case ue.StatusCode == http.StatusForbidden:
		return NewStandardError(ErrorCodeForbidden, "The API token is not allowed to perform this operation", nil)
	case ue.StatusCode == http.StatusNotFound:
		return NewStandardError(ErrorCodeNotFound, "The requested Productboard resource was not found", nil)
	case ue.StatusCode == http.StatusConflict:
		return NewStandardError(ErrorCodeConflict, "The request conflicts with the current state of the resource", nil)
	case ue.StatusCode == http.StatusTooManyRequests:
		return NewRateLimitError(ue.RetryAfter)
	case ue.StatusCode >= 400 && ue.StatusCode < 500:
		return NewStandardError(ErrorCodeValidationError, "Productboard rejected the request: "+upstreamTitles(ue.Items), nil)
	default:
		return NewStandardError(ErrorCodeUpstreamError, "Productboard returned a server error; retry shortly", nil)
	}
}

// upstreamTitles keeps only the short titles; details may echo input values.
func upstreamTitles(items []APIErrorItem) string {
	titles := make([]string, 0, len(items))
	for _, item := range items {
		if t := strings.TrimSpace(item.Title); t != "" {
			titles = append(titles, t)
		}
	}
	if len(titles) == 0 {
		return "invalid request"
	}
	return strings.Join(titles, "; ")
}
