// Package errors provides the error taxonomy shared by the tool boundary,
// the upstream client and the resilience layer.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fredcamaral/gomcp-sdk/protocol"
)

// ErrorCode represents semantic error codes for consistent error handling
type ErrorCode string

const (
	// Authentication errors
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrorCodeForbidden    ErrorCode = "FORBIDDEN"

	// Validation errors
	ErrorCodeValidationError ErrorCode = "VALIDATION_ERROR"
	ErrorCodeRequiredField   ErrorCode = "REQUIRED_FIELD"
	ErrorCodeInvalidValue    ErrorCode = "INVALID_VALUE"

	// Resource errors
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	ErrorCodeConflict ErrorCode = "CONFLICT"

	// Rate limiting
	ErrorCodeRateLimited ErrorCode = "RATE_LIMITED"

	// Transport and upstream availability
	ErrorCodeNetworkError       ErrorCode = "NETWORK_ERROR"
	ErrorCodeTimeout            ErrorCode = "TIMEOUT"
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrorCodeUpstreamError      ErrorCode = "UPSTREAM_ERROR"

	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// StandardError is the single error shape surfaced to tool callers
type StandardError struct {
	ErrorInfo ErrorDetails `json:"error"`
}

// Error implements the Go error interface
func (e *StandardError) Error() string {
	return e.ErrorInfo.Message
}

// ErrorDetails contains the detailed error information
type ErrorDetails struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// ValidationDetail provides specific validation error information
type ValidationDetail struct {
	Field  string      `json:"field"`
	Reason string      `json:"reason"`
	Value  interface{} `json:"value,omitempty"`
}

// RetryDetail tells the caller when a retry is worthwhile
type RetryDetail struct {
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty"`
}

// NewStandardError creates a new standardized error
func NewStandardError(code ErrorCode, message string, details interface{}) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// NewValidationError creates a validation error with field details
func NewValidationError(field, reason string, value interface{}) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeValidationError,
			Message: fmt.Sprintf("Validation failed for field '%s': %s", field, reason),
			Details: ValidationDetail{
				Field:  field,
				Reason: reason,
				Value:  value,
			},
		},
	}
}

// NewRequiredFieldError creates an error for missing required fields
func NewRequiredFieldError(field string) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeRequiredField,
			Message: fmt.Sprintf("Required field '%s' is missing", field),
			Details: ValidationDetail{
				Field:  field,
				Reason: "missing_required_field",
			},
		},
	}
}

// NewNotFoundError creates a not-found error for a named thing
func NewNotFoundError(kind, name string) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeNotFound,
			Message: fmt.Sprintf("%s '%s' not found", kind, name),
		},
	}
}

// NewUnauthorizedError creates an unauthorized access error
func NewUnauthorizedError(reason string) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeUnauthorized,
			Message: "Authentication with Productboard failed; check the API token for this instance",
			Details: map[string]interface{}{
				"reason": reason,
			},
		},
	}
}

// NewRateLimitError creates a rate limiting error visible to the caller
func NewRateLimitError(retryAfter time.Duration) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeRateLimited,
			Message: "Productboard rate limit exceeded; retry later",
			Details: retryDetail(retryAfter),
		},
	}
}

// NewCircuitOpenError is returned while the upstream breaker rejects calls
func NewCircuitOpenError(retryAfter time.Duration) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeServiceUnavailable,
			Message: "Productboard is temporarily unavailable after repeated failures; retry shortly",
			Details: retryDetail(retryAfter),
		},
	}
}

// NewInternalError creates an internal server error. The original error is
// never copied into the caller-visible payload.
func NewInternalError(message string) *StandardError {
	return &StandardError{
		ErrorInfo: ErrorDetails{
			Code:    ErrorCodeInternalError,
			Message: message,
		},
	}
}

func retryDetail(retryAfter time.Duration) interface{} {
	if retryAfter <= 0 {
		return nil
	}
	secs := int(retryAfter.Round(time.Second) / time.Second)
	if secs == 0 {
		secs = 1
	}
	return RetryDetail{RetryAfterSeconds: secs}
}

// WithTraceID adds a trace ID to the error for debugging
func (e *StandardError) WithTraceID(traceID string) *StandardError {
	e.ErrorInfo.TraceID = traceID
	return e
}

// ToJSONRPCError converts StandardError to JSON-RPC error format
func (e *StandardError) ToJSONRPCError(id interface{}) *protocol.JSONRPCResponse {
	var rpcCode int
	switch e.ErrorInfo.Code {
	case ErrorCodeValidationError, ErrorCodeRequiredField, ErrorCodeInvalidValue:
		rpcCode = protocol.InvalidParams
	case ErrorCodeNotFound:
		rpcCode = protocol.MethodNotFound
	case ErrorCodeUnauthorized, ErrorCodeForbidden, ErrorCodeConflict:
		rpcCode = -32000
	case ErrorCodeRateLimited:
		rpcCode = -32001
	case ErrorCodeServiceUnavailable, ErrorCodeTimeout, ErrorCodeNetworkError, ErrorCodeUpstreamError:
		rpcCode = -32002
	default:
		rpcCode = protocol.InternalError
	}

	return &protocol.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &protocol.JSONRPCError{
			Code:    rpcCode,
			Message: e.ErrorInfo.Message,
			Data:    e,
		},
	}
}

// ToToolResult renders the error as an MCP tool result flagged isError
func (e *StandardError) ToToolResult() *protocol.ToolCallResult {
	payload, err := e.ToJSON()
	if err != nil {
		payload = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"Internal error"}}`)
	}
	return &protocol.ToolCallResult{
		Content: []protocol.Content{protocol.NewContent(string(payload))},
		IsError: true,
	}
}

// ToHTTPStatus maps StandardError to appropriate HTTP status code
func (e *StandardError) ToHTTPStatus() int {
	switch e.ErrorInfo.Code {
	case ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrorCodeForbidden:
		return http.StatusForbidden
	case ErrorCodeValidationError, ErrorCodeRequiredField, ErrorCodeInvalidValue:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeConflict:
		return http.StatusConflict
	case ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrorCodeServiceUnavailable, ErrorCodeNetworkError:
		return http.StatusServiceUnavailable
	case ErrorCodeUpstreamError:
		return http.StatusBadGateway
	case ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts StandardError to JSON bytes
func (e *StandardError) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// WriteHTTPError writes StandardError as HTTP response
func (e *StandardError) WriteHTTPError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")

	if e.ErrorInfo.TraceID != "" {
		w.Header().Set("X-Trace-ID", e.ErrorInfo.TraceID)
	}
	if detail, ok := e.ErrorInfo.Details.(RetryDetail); ok && detail.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(detail.RetryAfterSeconds))
	}

	w.WriteHeader(e.ToHTTPStatus())

	jsonBytes, _ := e.ToJSON()
	_, _ = w.Write(jsonBytes)
}

// IsValidationError checks if the error is a validation-related error
func IsValidationError(err *StandardError) bool {
	return err.ErrorInfo.Code == ErrorCodeValidationError ||
		err.ErrorInfo.Code == ErrorCodeRequiredField ||
		err.ErrorInfo.Code == ErrorCodeInvalidValue
}

func IsAuthenticationError(err *StandardError) bool {
	return err.ErrorInfo.Code == ErrorCodeUnauthorized ||
		err.ErrorInfo.Code == ErrorCodeForbidden
}
