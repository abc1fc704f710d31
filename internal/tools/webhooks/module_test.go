package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productboard-mcp/internal/productboard"
	"productboard-mcp/internal/registry"
	"productboard-mcp/internal/retry"
	"productboard-mcp/internal/tools"
)

func webhookContext(t *testing.T, handler http.HandlerFunc) context.Context {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := productboard.NewClient(productboard.Options{BaseURL: srv.URL, Token: "t", Retry: &retry.Config{MaxAttempts: 1}})
	require.NoError(t, err)
	return productboard.WithClient(context.Background(), c)
}

func createDescriptor(t *testing.T) registry.Descriptor {
	t.Helper()
	m, err := registry.ParseManifest(registry.DefaultManifest())
	require.NoError(t, err)
	return m.Operations["create_webhook"]
}

func TestCreateWebhook_BuildsSubscription(t *testing.T) {
	ctx := webhookContext(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/webhooks", r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{
			"data": map[string]interface{}{
				"name": "sync",
				"events": []interface{}{
					map[string]interface{}{"eventType": "feature.created"},
					map[string]interface{}{"eventType": "feature.updated"},
				},
				"notification": map[string]interface{}{"url": "https://hooks.example.com/pb", "version": float64(1)},
			},
		}, body)
		_, _ = w.Write([]byte(`{"data":{"id":"wh-1"}}`))
	})

	h, ok := NewModule(tools.NewEndpoint(tools.Options{})).Resolve("create_webhook")
	require.True(t, ok)

	out, err := h(ctx, createDescriptor(t), map[string]interface{}{
		"name":             "sync",
		"events":           []interface{}{"feature.created", " feature.updated "},
		"notification.url": "https://hooks.example.com/pb",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"data": map[string]interface{}{"id": "wh-1"}}, out)
}

func TestCreateWebhook_Validation(t *testing.T) {
	ctx := webhookContext(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	desc := createDescriptor(t)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing url", map[string]interface{}{"name": "x", "events": []interface{}{"feature.created"}}},
		{"plain http", map[string]interface{}{"name": "x", "events": []interface{}{"feature.created"}, "notification.url": "http://hooks.example.com"}},
		{"no events", map[string]interface{}{"name": "x", "events": []interface{}{}, "notification.url": "https://hooks.example.com"}},
		{"blank event", map[string]interface{}{"name": "x", "events": []interface{}{" "}, "notification.url": "https://hooks.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := createWebhook(ctx, desc, tt.args)
			assert.Error(t, err)
		})
	}
}
