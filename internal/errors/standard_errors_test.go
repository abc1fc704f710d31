package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardError_Creation(t *testing.T) {
	tests := []struct {
		name            string
		createError     func() *StandardError
		expectedCode    ErrorCode
		expectedMessage string
	}{
		{
			name: "validation error",
			createError: func() *StandardError {
				return NewValidationError("entityType", "unknown entity type", "widgets")
			},
			expectedCode:    ErrorCodeValidationError,
			expectedMessage: "Validation failed for field 'entityType': unknown entity type",
		},
		{
			name: "required field error",
			createError: func() *StandardError {
				return NewRequiredFieldError("id")
			},
			expectedCode:    ErrorCodeRequiredField,
			expectedMessage: "Required field 'id' is missing",
		},
		{
			name: "not found error",
			createError: func() *StandardError {
				return NewNotFoundError("tool", "list_widgets")
			},
			expectedCode:    ErrorCodeNotFound,
			expectedMessage: "tool 'list_widgets' not found",
		},
		{
			name: "unauthorized error",
			createError: func() *StandardError {
				return NewUnauthorizedError("missing_token")
			},
			expectedCode:    ErrorCodeUnauthorized,
			expectedMessage: "Authentication with Productboard failed; check the API token for this instance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.createError()

			assert.Equal(t, tt.expectedCode, err.ErrorInfo.Code)
			assert.Equal(t, tt.expectedMessage, err.ErrorInfo.Message)
			assert.Equal(t, tt.expectedMessage, err.Error())
		})
	}
}

func TestStandardError_WithTraceID(t *testing.T) {
	err := NewValidationError("limit", "must be a number", "ten").WithTraceID("trace-123")
	assert.Equal(t, "trace-123", err.ErrorInfo.TraceID)
}

func TestStandardError_ToJSONRPCError(t *testing.T) {
	tests := []struct {
		name         string
		error        *StandardError
		expectedCode int
		id           interface{}
	}{
		{
			name:         "validation error maps to invalid params",
			error:        NewValidationError("test", "test reason", "test value"),
			expectedCode: -32602,
			id:           "test-id",
		},
		{
			name:         "unauthorized error maps to server error",
			error:        NewUnauthorizedError("test reason"),
			expectedCode: -32000,
			id:           123,
		},
		{
			name:         "internal error maps to internal error",
			error:        NewInternalError("test message"),
			expectedCode: -32603,
			id:           "internal-test",
		},
		{
			name:         "rate limit error maps to server error",
			error:        NewRateLimitError(time.Minute),
			expectedCode: -32001,
			id:           "rate-limit-test",
		},
		{
			name:         "circuit open maps to unavailable",
			error:        NewCircuitOpenError(30 * time.Second),
			expectedCode: -32002,
			id:           7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.error.ToJSONRPCError(tt.id)

			assert.Equal(t, "2.0", resp.JSONRPC)
			assert.Equal(t, tt.id, resp.ID)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			assert.Equal(t, tt.error.ErrorInfo.Message, resp.Error.Message)
		})
	}
}

func TestStandardError_ToToolResult(t *testing.T) {
	result := NewRateLimitError(90 * time.Second).ToToolResult()

	require.True(t, result.IsError)
	require.Len(t, result.Content, 1)

	var parsed map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &parsed))
	assert.Equal(t, "RATE_LIMITED", parsed["error"]["code"])
	assert.Equal(t, map[string]interface{}{"retry_after_seconds": float64(90)}, parsed["error"]["details"])
}

func TestStandardError_ToHTTPStatus(t *testing.T) {
	tests := []struct {
		name           string
		error          *StandardError
		expectedStatus int
	}{
		{"validation", NewValidationError("a", "b", nil), http.StatusBadRequest},
		{"required", NewRequiredFieldError("a"), http.StatusBadRequest},
		{"unauthorized", NewUnauthorizedError("x"), http.StatusUnauthorized},
		{"rate limited", NewRateLimitError(time.Second), http.StatusTooManyRequests},
		{"circuit open", NewCircuitOpenError(time.Second), http.StatusServiceUnavailable},
		{"internal", NewInternalError("x"), http.StatusInternalServerError},
		{"unknown code", &StandardError{ErrorInfo: ErrorDetails{Code: "SOMETHING"}}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedStatus, tt.error.ToHTTPStatus())
		})
	}
}

func TestStandardError_WriteHTTPError(t *testing.T) {
	recorder := httptest.NewRecorder()

	NewRateLimitError(60 * time.Second).WithTraceID("trace-1").WriteHTTPError(recorder)

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "60", recorder.Header().Get("Retry-After"))
	assert.Equal(t, "trace-1", recorder.Header().Get("X-Trace-ID"))

	var response StandardError
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, ErrorCodeRateLimited, response.ErrorInfo.Code)
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		name         string
		error        *StandardError
		isValidation bool
		isAuth       bool
	}{
		{"validation error", NewValidationError("test", "test", "test"), true, false},
		{"required field error", NewRequiredFieldError("test"), true, false},
		{"unauthorized error", NewUnauthorizedError("test"), false, true},
		{"forbidden error", NewStandardError(ErrorCodeForbidden, "no", nil), false, true},
		{"internal error", NewInternalError("test"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isValidation, IsValidationError(tt.error))
			assert.Equal(t, tt.isAuth, IsAuthenticationError(tt.error))
		})
	}
}
