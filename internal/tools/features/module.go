// Package features implements the features category: features,
// components, products and feature statuses.
package features

import (
	"context"

	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/registry"
	"productboard-mcp/internal/tools"
)

// Category is the catalog category this package implements
const Category = "features"

var parentKeys = []string{"parent.product.id", "parent.component.id", "parent.feature.id"}

// NewModule returns the features module
func NewModule(ep *tools.Endpoint) registry.Module {
	h := &handler{ep: ep}
	return tools.NewModule(Category, ep).
		Handle("create_feature", h.createFeature).
		Handle("update_feature", h.updateFeature)
}

type handler struct {
	ep *tools.Endpoint
}

// createFeature requires exactly one parent; a subfeature's parent must be
// a feature.
func (h *handler) createFeature(ctx context.Context, desc registry.Descriptor, args map[string]interface{}) (interface{}, error) {
	if err := tools.ValidateEnum(args, "type", "feature", "subfeature"); err != nil {
		return nil, err
	}

	var parent string
	for _, key := range parentKeys {
		if v, ok := tools.StringArg(args, key); ok && v != "" {
			if parent != "" {
				return nil, mcperrors.NewValidationError("parent", "exactly one of "+key+" and "+parent+" may be set", nil)
			}
			parent = key
		}
	}
	if parent == "" {
		return nil, mcperrors.NewValidationError("parent", "one of parent.product.id, parent.component.id or parent.feature.id is required", nil)
	}
	if kind, _ := tools.StringArg(args, "type"); kind == "subfeature" && parent != "parent.feature.id" {
		return nil, mcperrors.NewValidationError("parent", "a subfeature must have parent.feature.id", nil)
	}

	if err := validateStatus(args); err != nil {
		return nil, err
	}
	if err := tools.ValidateTimeframe(args); err != nil {
		return nil, err
	}
	return h.ep.Handle(ctx, desc, args)
}

func (h *handler) updateFeature(ctx context.Context, desc registry.Descriptor, args map[string]interface{}) (interface{}, error) {
	if err := validateStatus(args); err != nil {
		return nil, err
	}
	if err := tools.ValidateTimeframe(args); err != nil {
		return nil, err
	}
	return h.ep.Handle(ctx, desc, args)
}

// validateStatus rejects a status given both by id and by name
func validateStatus(args map[string]interface{}) error {
	id, hasID := tools.StringArg(args, "status.id")
	name, hasName := tools.StringArg(args, "status.name")
	if hasID && hasName && id != "" && name != "" {
		return mcperrors.NewValidationError("status", "set either status.id or status.name, not both", nil)
	}
	return nil
}
