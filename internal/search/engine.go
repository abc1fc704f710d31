package search

import (
	"context"
	"sort"

	"productboard-mcp/internal/entities"
	"productboard-mcp/internal/logging"
	"productboard-mcp/internal/message"
	"productboard-mcp/internal/output"
	"productboard-mcp/internal/pagination"
)

// Meta describes a search response
type Meta struct {
	EntityType        string   `json:"entityType"`
	TotalRecords      int      `json:"totalRecords"`
	TotalIsLowerBound bool     `json:"totalIsLowerBound,omitempty"`
	Returned          int      `json:"returned"`
	StartWith         int      `json:"startWith"`
	Limit             int      `json:"limit"`
	HasMore           bool     `json:"hasMore"`
	NextStartWith     *int     `json:"nextStartWith,omitempty"`
	Output            string   `json:"output"`
	NativeFilters     []string `json:"nativeFilters,omitempty"`
	LocalFilters      []string `json:"localFilters,omitempty"`
	PagesFetched      int      `json:"pagesFetched"`
	Partial           bool     `json:"partial,omitempty"`
	TruncationReason  string   `json:"truncationReason,omitempty"`
}

// Response is what the search tool returns
type Response struct {
	Data    interface{} `json:"data"`
	Meta    Meta        `json:"meta"`
	Message string      `json:"message"`
	Hints   []string    `json:"hints,omitempty"`
}

// Engine runs searches over the entity registry
type Engine struct {
	registry *entities.Registry
	maxPages int
	logger   logging.Logger
}

// NewEngine creates a search engine. maxPages bounds full-set retrieval.
func NewEngine(registry *entities.Registry, maxPages int, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if maxPages <= 0 {
		maxPages = pagination.DefaultMaxPages
	}
	return &Engine{registry: registry, maxPages: maxPages, logger: logger.WithComponent("search")}
}

// Registry exposes the entity mappings the engine searches
func (e *Engine) Registry() *entities.Registry {
	return e.registry
}

// Search normalizes args and runs the pipeline against getter
func (e *Engine) Search(ctx context.Context, getter pagination.PageGetter, args map[string]interface{}) (*Response, error) {
	params, err := NormalizeParams(args, e.registry)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, getter, params)
}

// Run executes an already-normalized search
func (e *Engine) Run(ctx context.Context, getter pagination.PageGetter, p *Params) (*Response, error) {
	mapping, _ := e.registry.Get(p.EntityType)

	native, local := SplitFilters(mapping, p.Filters)
	excludeNested := !p.IncludeSubData && mapping.Nested != nil

	// Local predicates and offsets need the whole collection; otherwise one
	// item past the window is enough to know whether more exist.
	opts := pagination.Options{MaxPages: e.maxPages}
	if len(local) == 0 && !excludeNested && p.StartWith == 0 {
		opts.MaxItems = p.Limit + 1
	}

	fetched, err := pagination.FetchAll(ctx, getter, mapping.Endpoint, native, opts)
	if err != nil {
		return nil, err
	}
	if fetched.Meta.Partial {
		e.logger.WarnContext(ctx, "search returned partial results",
			"entity_type", p.EntityType, "pages", fetched.Meta.Pages, "error", fetched.Meta.Err)
	}

	matched := make([]map[string]interface{}, 0, len(fetched.Items))
	for _, record := range fetched.Items {
		if excludeNested && isNested(mapping, record) {
			continue
		}
		if matchesAll(local, record) {
			matched = append(matched, record)
		}
	}

	total := len(matched)
	if opts.MaxItems > 0 {
		// nothing was filtered out, so every received record counts
		total = fetched.Meta.ItemsFetched
	}
	lowerBound := fetched.Meta.TruncationReason == pagination.TruncatedByMaxPages ||
		(fetched.Meta.TruncationReason == pagination.TruncatedByMaxItems && fetched.Meta.NextLink != "")

	start := p.StartWith
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	window := matched[start:end]
	hasMore := end < total || (lowerBound && end == total && total > 0)

	spec := p.Output
	if spec.Mode == output.ModeFull && p.Detail == DetailBasic {
		spec = output.Spec{Mode: output.ModeFields, Fields: mapping.BasicFields}
	}

	meta := Meta{
		EntityType:        p.EntityType,
		TotalRecords:      total,
		TotalIsLowerBound: lowerBound,
		Returned:          len(window),
		StartWith:         p.StartWith,
		Limit:             p.Limit,
		HasMore:           hasMore,
		Output:            string(p.Output.Mode),
		NativeFilters:     sortedKeys(native),
		LocalFilters:      filterFields(local),
		PagesFetched:      fetched.Meta.Pages,
		Partial:           fetched.Meta.Partial,
		TruncationReason:  fetched.Meta.TruncationReason,
	}
	if hasMore {
		next := start + len(window)
		meta.NextStartWith = &next
	}

	msgCtx := message.Context{
		Singular:          mapping.Singular,
		Plural:            mapping.Plural,
		TotalRecords:      total,
		TotalIsLowerBound: lowerBound,
		Returned:          len(window),
		StartWith:         start,
		Limit:             p.Limit,
		HasMore:           hasMore,
		Filters:           describe(mapping, p.Filters),
		OutputMode:        string(p.Output.Mode),
		Partial:           fetched.Meta.Partial,
	}

	return &Response{
		Data:    output.Process(window, mapping, spec),
		Meta:    meta,
		Message: message.Generate(msgCtx),
		Hints:   message.Hints(msgCtx),
	}, nil
}

func matchesAll(filters []Filter, record map[string]interface{}) bool {
	for _, f := range filters {
		if !f.Matches(record) {
			return false
		}
	}
	return true
}

func describe(mapping *entities.Mapping, filters []Filter) []message.FilterDescription {
	out := make([]message.FilterDescription, 0, len(filters))
	for _, f := range filters {
		out = append(out, message.FilterDescription{
			Field:    mapping.Field(f.Field).DisplayName,
			Operator: string(f.Operator),
			Value:    f.Value,
		})
	}
	return out
}

func filterFields(filters []Filter) []string {
	if len(filters) == 0 {
		return nil
	}
	fields := make([]string, len(filters))
	for i, f := range filters {
		fields[i] = f.Field
	}
	return fields
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
