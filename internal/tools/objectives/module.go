// Package objectives implements the objectives category: objectives,
// key results and initiatives.
package objectives

import (
	"context"

	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/registry"
	"productboard-mcp/internal/tools"
)

// Category is the catalog category this package implements
const Category = "objectives"

// NewModule returns the objectives module
func NewModule(ep *tools.Endpoint) registry.Module {
	h := &handler{ep: ep}
	m := tools.NewModule(Category, ep)
	for _, name := range []string{"create_objective", "update_objective", "create_initiative", "update_initiative"} {
		m.Handle(name, h.withTimeframe)
	}
	m.Handle("create_key_result", h.writeKeyResult)
	m.Handle("update_key_result", h.writeKeyResult)
	return m
}

type handler struct {
	ep *tools.Endpoint
}

func (h *handler) withTimeframe(ctx context.Context, desc registry.Descriptor, args map[string]interface{}) (interface{}, error) {
	if err := tools.ValidateTimeframe(args); err != nil {
		return nil, err
	}
	return h.ep.Handle(ctx, desc, args)
}

func (h *handler) writeKeyResult(ctx context.Context, desc registry.Descriptor, args map[string]interface{}) (interface{}, error) {
	if err := tools.ValidateEnum(args, "type", "number", "percentage", "currency"); err != nil {
		return nil, err
	}
	for _, name := range []string{"startValue", "targetValue", "currentValue"} {
		if v, ok := args[name]; ok && v != nil {
			if _, isNumber := v.(float64); !isNumber {
				return nil, mcperrors.NewValidationError(name, "must be a number", v)
			}
		}
	}
	return h.ep.Handle(ctx, desc, args)
}
