// Package webhooks implements the webhooks category
package webhooks

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/productboard"
	"productboard-mcp/internal/registry"
	"productboard-mcp/internal/tools"
)

// Category is the catalog category this package implements
const Category = "webhooks"

// NotificationVersion is the payload version requested when none is given
const NotificationVersion = 1

// NewModule returns the webhooks module
func NewModule(ep *tools.Endpoint) registry.Module {
	return tools.NewModule(Category, ep).
		Handle("create_webhook", createWebhook)
}

// createWebhook builds the subscription body: each event type becomes an
// {eventType} object and the target must be an https URL.
func createWebhook(ctx context.Context, desc registry.Descriptor, args map[string]interface{}) (interface{}, error) {
	client, err := tools.ClientFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := tools.CheckRequired(desc, args); err != nil {
		return nil, err
	}

	name, _ := tools.StringArg(args, "name")
	target, _ := tools.StringArg(args, "notification.url")
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, mcperrors.NewValidationError("notification.url", "must be an absolute https URL", target)
	}

	raw, ok := args["events"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, mcperrors.NewValidationError("events", "must list at least one event type", nil)
	}
	events := make([]map[string]interface{}, 0, len(raw))
	for _, e := range raw {
		s, isString := e.(string)
		if !isString || strings.TrimSpace(s) == "" {
			return nil, mcperrors.NewValidationError("events", "event types must be non-empty strings", e)
		}
		events = append(events, map[string]interface{}{"eventType": strings.TrimSpace(s)})
	}

	version := NotificationVersion
	if v, ok := args["notification.version"].(float64); ok && v >= 1 {
		version = int(v)
	}

	return client.DoJSON(ctx, productboard.Request{
		Method: http.MethodPost,
		Path:   desc.PathTemplate,
		Body: map[string]interface{}{
			"data": map[string]interface{}{
				"name":   name,
				"events": events,
				"notification": map[string]interface{}{
					"url":     target,
					"version": version,
				},
			},
		},
	})
}
