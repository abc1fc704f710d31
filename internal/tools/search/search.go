// Package search exposes the generic entity search pipeline as tools:
// search, and get_entity_fields for discovering what can be filtered.
package search

import (
	"context"

	mcp "github.com/fredcamaral/gomcp-sdk"
	"github.com/fredcamaral/gomcp-sdk/protocol"

	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/metrics"
	"productboard-mcp/internal/registry"
	pbsearch "productboard-mcp/internal/search"
	"productboard-mcp/internal/tools"
)

// Category groups the search tools for enablement
const Category = "search"

// Tool names
const (
	ToolSearch          = "search"
	ToolGetEntityFields = "get_entity_fields"
)

// Handler serves the search tools
type Handler struct {
	engine  *pbsearch.Engine
	metrics *metrics.Metrics
}

// NewHandler creates the search tool handler
func NewHandler(engine *pbsearch.Engine, m *metrics.Metrics) *Handler {
	return &Handler{engine: engine, metrics: m}
}

// Register adds the search tools to r
func (h *Handler) Register(r *registry.Registry) {
	r.RegisterCustomTool(h.searchTool(), Category, h.Search)
	r.RegisterCustomTool(h.fieldsTool(), Category, h.EntityFields)
}

// Search runs one search against the instance resolved for the call
func (h *Handler) Search(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	client, err := tools.ClientFrom(ctx)
	if err != nil {
		return nil, err
	}
	res, err := h.engine.Search(ctx, client, args)
	if err != nil {
		return nil, err
	}
	h.metrics.ObservePages(res.Meta.PagesFetched, res.Meta.Partial)
	return res, nil
}

// FieldInfo describes one filterable field
type FieldInfo struct {
	Path        string `json:"path"`
	DisplayName string `json:"displayName"`
	Kind        string `json:"kind"`
	Native      bool   `json:"native"`
}

// EntityInfo describes a searchable entity type
type EntityInfo struct {
	EntityType    string      `json:"entityType"`
	Name          string      `json:"name"`
	Endpoint      string      `json:"endpoint,omitempty"`
	SummaryFields []string    `json:"summaryFields,omitempty"`
	BasicFields   []string    `json:"basicFields,omitempty"`
	Fields        []FieldInfo `json:"fields,omitempty"`
	Operators     []string    `json:"operators,omitempty"`
}

// EntityFields lists the entity types, or the fields of one type
func (h *Handler) EntityFields(_ context.Context, args map[string]interface{}) (interface{}, error) {
	reg := h.engine.Registry()

	entityType, _ := tools.StringArg(args, "entityType")
	if entityType == "" {
		out := make([]EntityInfo, 0, len(reg.Types()))
		for _, t := range reg.Types() {
			m, _ := reg.Get(t)
			out = append(out, EntityInfo{EntityType: t, Name: m.Title()})
		}
		return map[string]interface{}{"entityTypes": out}, nil
	}

	m, ok := reg.Get(entityType)
	if !ok {
		return nil, mcperrors.NewNotFoundError("entity type", entityType)
	}

	info := EntityInfo{
		EntityType:    m.Type,
		Name:          m.Title(),
		Endpoint:      m.Endpoint,
		SummaryFields: m.SummaryFields,
		BasicFields:   m.BasicFields,
		Operators:     pbsearch.OperatorNames(),
	}
	for _, path := range m.FieldNames() {
		f := m.Field(path)
		info.Fields = append(info.Fields, FieldInfo{
			Path:        path,
			DisplayName: f.DisplayName,
			Kind:        string(f.Kind),
			Native:      f.NativeParam != "",
		})
	}
	return info, nil
}

func (h *Handler) searchTool() protocol.Tool {
	types := h.engine.Registry().Types()

	props := registry.CommonProperties()
	props["entityType"] = map[string]interface{}{
		"type":        "string",
		"description": "Entity type to search",
		"enum":        types,
	}
	props["filters"] = map[string]interface{}{
		"type":        "object",
		"description": "Field path to value. An empty string matches records where the field is missing or blank",
	}
	props["operators"] = map[string]interface{}{
		"type":        "object",
		"description": "Field path to operator; equals when omitted",
		"additionalProperties": map[string]interface{}{
			"type": "string",
			"enum": pbsearch.OperatorNames(),
		},
	}
	props["output"] = map[string]interface{}{
		"description": "full, summary, ids-only, or a list of field paths such as owner.email",
		"oneOf": []interface{}{
			map[string]interface{}{"type": "string", "enum": []string{"full", "summary", "ids-only"}},
			mcp.ArraySchema("Field paths", map[string]interface{}{"type": "string", "minLength": 1}),
		},
		"default": "full",
	}
	props["limit"] = map[string]interface{}{
		"type":        "integer",
		"description": "Maximum records to return; values above 100 are reduced to 100",
		"minimum":     1,
		"default":     pbsearch.DefaultLimit,
	}
	props["startWith"] = map[string]interface{}{
		"type":        "integer",
		"description": "Offset of the first record to return",
		"minimum":     0,
		"default":     0,
	}
	props["detail"] = map[string]interface{}{
		"type":        "string",
		"description": "Field subset for full output",
		"enum":        []string{"basic", "standard", "full"},
		"default":     "standard",
	}
	props["includeSubData"] = mcp.BooleanParam("Include nested records such as subfeatures", false)

	const desc = "Search any Productboard entity type with filters, pagination and output shaping"
	return mcp.NewTool(ToolSearch, desc, mcp.ObjectSchema(desc, props, []string{"entityType"}))
}

func (h *Handler) fieldsTool() protocol.Tool {
	props := map[string]interface{}{
		"entityType": mcp.StringParam("Entity type to describe; omit to list every type", false),
	}
	const desc = "Describe searchable entity types and their filterable fields"
	return mcp.NewTool(ToolGetEntityFields, desc, mcp.ObjectSchema(desc, props, nil))
}
