// Package notes implements the notes category: customer feedback notes,
// their tags and links, and the companies and users behind them.
package notes

import (
	"context"
	"strings"
	"time"

	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/registry"
	"productboard-mcp/internal/tools"
)

// Category is the catalog category this package implements
const Category = "notes"

var dateRangeArgs = []string{"createdFrom", "createdTo", "updatedFrom", "updatedTo"}

// NewModule returns the notes module
func NewModule(ep *tools.Endpoint) registry.Module {
	h := &handler{ep: ep}
	return tools.NewModule(Category, ep).
		Handle("get_notes", h.listNotes).
		Handle("create_note", h.writeNote).
		Handle("update_note", h.writeNote)
}

type handler struct {
	ep *tools.Endpoint
}

func (h *handler) listNotes(ctx context.Context, desc registry.Descriptor, args map[string]interface{}) (interface{}, error) {
	for _, name := range dateRangeArgs {
		s, ok := tools.StringArg(args, name)
		if !ok || s == "" {
			continue
		}
		if !isDateOrTimestamp(s) {
			return nil, mcperrors.NewValidationError(name, "must be YYYY-MM-DD or an RFC3339 timestamp", s)
		}
	}
	return h.ep.Handle(ctx, desc, args)
}

// writeNote cleans tags and rejects a note addressed to two customers
func (h *handler) writeNote(ctx context.Context, desc registry.Descriptor, args map[string]interface{}) (interface{}, error) {
	customer, _ := tools.StringArg(args, "customer_email")
	user, _ := tools.StringArg(args, "user.email")
	if customer != "" && user != "" {
		return nil, mcperrors.NewValidationError("customer_email", "set either customer_email or user.email, not both", nil)
	}

	if raw, ok := args["tags"]; ok && raw != nil {
		tags, err := normalizeTags(raw)
		if err != nil {
			return nil, err
		}
		cleaned := make(map[string]interface{}, len(args))
		for k, v := range args {
			cleaned[k] = v
		}
		cleaned["tags"] = tags
		args = cleaned
	}
	return h.ep.Handle(ctx, desc, args)
}

// normalizeTags trims, drops empty and removes duplicate tags keeping order
func normalizeTags(raw interface{}) ([]interface{}, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, mcperrors.NewValidationError("tags", "must be a list of strings", nil)
	}
	seen := make(map[string]bool, len(items))
	out := make([]interface{}, 0, len(items))
	for _, item := range items {
		s, isString := item.(string)
		if !isString {
			return nil, mcperrors.NewValidationError("tags", "must be a list of strings", item)
		}
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out, nil
}

func isDateOrTimestamp(s string) bool {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}
