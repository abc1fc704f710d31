package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/productboard"
	"productboard-mcp/internal/registry"
	"productboard-mcp/internal/retry"
)

func clientContext(t *testing.T, handler http.HandlerFunc) context.Context {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := productboard.NewClient(productboard.Options{
		BaseURL: srv.URL,
		Token:   "t",
		Retry:   &retry.Config{MaxAttempts: 1},
	})
	require.NoError(t, err)
	return productboard.WithClient(context.Background(), c)
}

func errorCode(t *testing.T, err error) mcperrors.ErrorCode {
	t.Helper()
	var se *mcperrors.StandardError
	require.True(t, errors.As(err, &se), "expected StandardError, got %v", err)
	return se.ErrorInfo.Code
}

var getFeature = registry.Descriptor{
	Name:           "get_feature",
	Category:       "features",
	HTTPMethod:     http.MethodGet,
	PathTemplate:   "/features/{id}",
	RequiredParams: []string{"id"},
}

func TestEndpoint_GetEscapesPathAndDropsControlArgs(t *testing.T) {
	ctx := clientContext(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/features/a%2Fb", r.URL.EscapedPath())
		assert.Equal(t, "", r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"data":{"id":"a/b"}}`))
	})

	out, err := NewEndpoint(Options{}).Handle(ctx, getFeature, map[string]interface{}{
		"id":                    "a/b",
		registry.ArgInstance:    "prod",
		"session_id":            "s-1",
		registry.ArgWorkspaceID: "ws",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"data": map[string]interface{}{"id": "a/b"}}, out)
}

func TestEndpoint_RequiredParams(t *testing.T) {
	ctx := clientContext(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	ep := NewEndpoint(Options{})

	_, err := ep.Handle(ctx, getFeature, map[string]interface{}{})
	assert.Equal(t, mcperrors.ErrorCodeRequiredField, errorCode(t, err))

	_, err = ep.Handle(ctx, getFeature, map[string]interface{}{"id": "  "})
	assert.Equal(t, mcperrors.ErrorCodeValidationError, errorCode(t, err))
}

func TestEndpoint_NoClientInContext(t *testing.T) {
	_, err := NewEndpoint(Options{}).Handle(context.Background(), getFeature, map[string]interface{}{"id": "1"})
	assert.Equal(t, mcperrors.ErrorCodeInternalError, errorCode(t, err))
}

func TestEndpoint_PaginatedListWindow(t *testing.T) {
	var requests int
	ctx := clientContext(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "New", r.URL.Query().Get("status.name"))
		assert.Empty(t, r.URL.Query().Get("limit"))

		page := 1
		if c := r.URL.Query().Get("pageCursor"); c != "" {
			_, _ = fmt.Sscanf(c, "%d", &page)
		}
		next := ""
		if page < 3 {
			next = fmt.Sprintf("/features?status.name=New&pageCursor=%d", page+1)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": fmt.Sprint(page*2 - 2)},
				{"id": fmt.Sprint(page*2 - 1)},
			},
			"links": map[string]interface{}{"next": next},
		})
	})

	desc := registry.Descriptor{Name: "get_features", HTTPMethod: http.MethodGet, PathTemplate: "/features", Paginated: true}
	out, err := NewEndpoint(Options{}).Handle(ctx, desc, map[string]interface{}{
		"status.name": "New",
		"limit":       float64(3),
		"startWith":   float64(1),
	})
	require.NoError(t, err)

	res := out.(*ListResult)
	ids := make([]string, 0, len(res.Data))
	for _, item := range res.Data {
		ids = append(ids, item["id"].(string))
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.True(t, res.Meta.HasMore)
	require.NotNil(t, res.Meta.NextStartWith)
	assert.Equal(t, 4, *res.Meta.NextStartWith)
	assert.Equal(t, 3, res.Meta.PagesFetched)
	assert.Equal(t, 3, requests)
}

func TestEndpoint_PaginatedListExhausted(t *testing.T) {
	ctx := clientContext(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"1"},{"id":"2"}],"links":{}}`))
	})

	desc := registry.Descriptor{Name: "get_products", HTTPMethod: http.MethodGet, PathTemplate: "/products", Paginated: true}
	out, err := NewEndpoint(Options{}).Handle(ctx, desc, map[string]interface{}{})
	require.NoError(t, err)

	res := out.(*ListResult)
	assert.Len(t, res.Data, 2)
	assert.False(t, res.Meta.HasMore)
	assert.Nil(t, res.Meta.NextStartWith)
	assert.Equal(t, DefaultListLimit, res.Meta.Limit)
}

func TestEndpoint_PostWrapsNestedBody(t *testing.T) {
	ctx := clientContext(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{
			"data": map[string]interface{}{
				"name":        "Export",
				"description": "<p><strong>CSV</strong> export</p>",
				"parent":      map[string]interface{}{"product": map[string]interface{}{"id": "p-1"}},
			},
		}, body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"f-9"}}`))
	})

	desc := registry.Descriptor{
		Name:           "create_feature",
		HTTPMethod:     http.MethodPost,
		PathTemplate:   "/features",
		RequiredParams: []string{"name"},
		MarkdownFields: []string{"description"},
	}
	out, err := NewEndpoint(Options{}).Handle(ctx, desc, map[string]interface{}{
		"name":                        "Export",
		"description":                 "**CSV** export",
		"parent.product.id":           "p-1",
		registry.ArgDescriptionFormat: "markdown",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"data": map[string]interface{}{"id": "f-9"}}, out)
}

func TestEndpoint_EnvelopeNoneAndQueryParams(t *testing.T) {
	ctx := clientContext(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "r-1", r.URL.Query().Get("release.id"))
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"assigned": true}, body)
		w.WriteHeader(http.StatusNoContent)
	})

	desc := registry.Descriptor{
		Name:         "assign",
		HTTPMethod:   http.MethodPut,
		PathTemplate: "/feature-release-assignments/assignment",
		QueryParams:  []string{"release.id"},
		Envelope:     registry.EnvelopeNone,
	}
	out, err := NewEndpoint(Options{}).Handle(ctx, desc, map[string]interface{}{"release.id": "r-1", "assigned": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"success": true, "operation": "assign"}, out)
}

func TestEndpoint_DeleteSendsNoBody(t *testing.T) {
	ctx := clientContext(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/notes/n-1/tags/vip", r.URL.Path)
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	})

	desc := registry.Descriptor{
		Name:           "remove_note_tag",
		HTTPMethod:     http.MethodDelete,
		PathTemplate:   "/notes/{noteId}/tags/{tagName}",
		RequiredParams: []string{"noteId", "tagName"},
	}
	_, err := NewEndpoint(Options{}).Handle(ctx, desc, map[string]interface{}{"noteId": "n-1", "tagName": "vip"})
	require.NoError(t, err)
}

func TestEndpoint_InvalidDescriptionFormat(t *testing.T) {
	ctx := clientContext(t, func(w http.ResponseWriter, r *http.Request) {})
	desc := registry.Descriptor{Name: "x", HTTPMethod: http.MethodPost, PathTemplate: "/x", MarkdownFields: []string{"description"}}

	_, err := NewEndpoint(Options{}).Handle(ctx, desc, map[string]interface{}{registry.ArgDescriptionFormat: "rtf"})
	assert.Equal(t, mcperrors.ErrorCodeValidationError, errorCode(t, err))
}

func TestDecodeWindow(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]interface{}
		want    Window
		wantErr bool
	}{
		{"defaults", map[string]interface{}{}, Window{Limit: 100}, false},
		{"clamped", map[string]interface{}{"limit": float64(500)}, Window{Limit: 100}, false},
		{"string numbers", map[string]interface{}{"limit": "10", "startWith": "20"}, Window{Limit: 10, StartWith: 20}, false},
		{"zero limit", map[string]interface{}{"limit": float64(0)}, Window{}, true},
		{"negative offset", map[string]interface{}{"startWith": float64(-1)}, Window{}, true},
		{"not a number", map[string]interface{}{"limit": "many"}, Window{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeWindow(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateTimeframe(t *testing.T) {
	assert.NoError(t, ValidateTimeframe(map[string]interface{}{}))
	assert.NoError(t, ValidateTimeframe(map[string]interface{}{"timeframe.startDate": "2024-01-01", "timeframe.endDate": "2024-03-31"}))
	assert.Error(t, ValidateTimeframe(map[string]interface{}{"timeframe.startDate": "01/01/2024"}))
	assert.Error(t, ValidateTimeframe(map[string]interface{}{"timeframe.startDate": "2024-04-01", "timeframe.endDate": "2024-03-31"}))
	assert.Error(t, ValidateTimeframe(map[string]interface{}{"timeframe.granularity": "week"}))
}

func TestModuleResolveFallsBackToEndpoint(t *testing.T) {
	called := false
	m := NewModule("features", NewEndpoint(Options{})).
		Handle("special", func(context.Context, registry.Descriptor, map[string]interface{}) (interface{}, error) {
			called = true
			return nil, nil
		})

	h, ok := m.Resolve("special")
	require.True(t, ok)
	_, _ = h(context.Background(), registry.Descriptor{}, nil)
	assert.True(t, called)

	_, ok = m.Resolve("get_features")
	assert.True(t, ok)
	assert.Equal(t, "features", m.Category())
}
