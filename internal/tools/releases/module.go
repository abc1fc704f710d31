// Package releases implements the releases category: release groups,
// releases and feature release assignments.
package releases

import (
	"context"

	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/registry"
	"productboard-mcp/internal/tools"
)

// Category is the catalog category this package implements
const Category = "releases"

// NewModule returns the releases module
func NewModule(ep *tools.Endpoint) registry.Module {
	h := &handler{ep: ep}
	return tools.NewModule(Category, ep).
		Handle("create_release", h.writeRelease).
		Handle("update_release", h.writeRelease).
		Handle("get_feature_release_assignments", h.listAssignments).
		Handle("update_feature_release_assignment", h.assign)
}

type handler struct {
	ep *tools.Endpoint
}

func (h *handler) writeRelease(ctx context.Context, desc registry.Descriptor, args map[string]interface{}) (interface{}, error) {
	if err := tools.ValidateEnum(args, "state", "upcoming", "in-progress", "completed"); err != nil {
		return nil, err
	}
	if err := tools.ValidateTimeframe(args); err != nil {
		return nil, err
	}
	return h.ep.Handle(ctx, desc, args)
}

func (h *handler) listAssignments(ctx context.Context, desc registry.Descriptor, args map[string]interface{}) (interface{}, error) {
	if err := tools.ValidateEnum(args, "release.state", "upcoming", "in-progress", "completed"); err != nil {
		return nil, err
	}
	return h.ep.Handle(ctx, desc, args)
}

// assign requires a real boolean so "false" strings cannot assign by accident
func (h *handler) assign(ctx context.Context, desc registry.Descriptor, args map[string]interface{}) (interface{}, error) {
	if v, ok := args["assigned"]; ok {
		if _, isBool := v.(bool); !isBool {
			return nil, mcperrors.NewValidationError("assigned", "must be true or false", v)
		}
	}
	return h.ep.Handle(ctx, desc, args)
}
