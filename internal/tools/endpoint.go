// Package tools implements catalog operations against the Productboard API.
// Endpoint is the generic handler every category module falls back to;
// category packages add validation and shaping for specific operations.
package tools

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/yuin/goldmark"

	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/logging"
	"productboard-mcp/internal/metrics"
	"productboard-mcp/internal/output"
	"productboard-mcp/internal/pagination"
	"productboard-mcp/internal/productboard"
	"productboard-mcp/internal/registry"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 100
)

// controlArgs steer the server and never reach Productboard
var controlArgs = map[string]bool{
	registry.ArgInstance:          true,
	registry.ArgWorkspaceID:       true,
	registry.ArgLimit:             true,
	registry.ArgStartWith:         true,
	registry.ArgDescriptionFormat: true,
	"session_id":                  true,
}

// Options configures an Endpoint
type Options struct {
	MaxPages int
	Metrics  *metrics.Metrics
	Logger   logging.Logger
}

// Endpoint maps a descriptor plus arguments onto one upstream call
type Endpoint struct {
	maxPages int
	metrics  *metrics.Metrics
	logger   logging.Logger
	markdown goldmark.Markdown
}

// NewEndpoint creates the generic operation handler
func NewEndpoint(opts Options) *Endpoint {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = pagination.DefaultMaxPages
	}
	return &Endpoint{
		maxPages: maxPages,
		metrics:  opts.Metrics,
		logger:   logger.WithComponent("tools"),
		markdown: goldmark.New(),
	}
}

// ListResult is returned by paginated operations
type ListResult struct {
	Data []map[string]interface{} `json:"data"`
	Meta ListMeta                 `json:"meta"`
}

// ListMeta describes the window returned by a paginated operation
type ListMeta struct {
	Returned         int    `json:"returned"`
	StartWith        int    `json:"startWith"`
	Limit            int    `json:"limit"`
	HasMore          bool   `json:"hasMore"`
	NextStartWith    *int   `json:"nextStartWith,omitempty"`
	PagesFetched     int    `json:"pagesFetched"`
	Partial          bool   `json:"partial,omitempty"`
	TruncationReason string `json:"truncationReason,omitempty"`
}

// Handle executes desc with args. It satisfies registry.Handler.
func (e *Endpoint) Handle(ctx context.Context, desc registry.Descriptor, args map[string]interface{}) (interface{}, error) {
	client, err := ClientFrom(ctx)
	if err != nil {
		return nil, err
	}

	if err := CheckRequired(desc, args); err != nil {
		return nil, err
	}

	path, err := ExpandPath(desc, args)
	if err != nil {
		return nil, err
	}

	fields, err := e.requestFields(desc, args)
	if err != nil {
		return nil, err
	}

	if desc.HTTPMethod == http.MethodGet {
		query := url.Values{}
		for _, name := range sortedNames(fields) {
			addQuery(query, name, fields[name])
		}
		if desc.Paginated {
			return e.list(ctx, client, desc, path, query, args)
		}
		return client.Get(ctx, path, query)
	}

	query := url.Values{}
	body := make(map[string]interface{})
	for _, name := range sortedNames(fields) {
		if desc.IsQueryParam(name) {
			addQuery(query, name, fields[name])
			continue
		}
		output.SetPath(body, name, fields[name])
	}

	req := productboard.Request{Method: desc.HTTPMethod, Path: path, Query: query}
	if len(body) > 0 {
		if desc.Envelope == registry.EnvelopeNone {
			req.Body = body
		} else {
			req.Body = map[string]interface{}{"data": body}
		}
	}

	out, err := client.DoJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return map[string]interface{}{"success": true, "operation": desc.Name}, nil
	}
	return out, nil
}

func (e *Endpoint) list(ctx context.Context, client *productboard.Client, desc registry.Descriptor, path string, query url.Values, args map[string]interface{}) (*ListResult, error) {
	window, err := DecodeWindow(args)
	if err != nil {
		return nil, err
	}

	fetched, err := pagination.FetchAll(ctx, client, path, query, pagination.Options{
		MaxPages: e.maxPages,
		MaxItems: window.StartWith + window.Limit + 1,
	})
	if err != nil {
		return nil, err
	}
	e.metrics.ObservePages(fetched.Meta.Pages, fetched.Meta.Partial)
	if fetched.Meta.Partial {
		e.logger.WarnContext(ctx, "list returned partial results",
			"tool", desc.Name, "pages", fetched.Meta.Pages, "error", fetched.Meta.Err)
	}

	items := fetched.Items
	start := window.StartWith
	if start > len(items) {
		start = len(items)
	}
	end := start + window.Limit
	hasMore := end < len(items)
	if end > len(items) {
		end = len(items)
	}
	if fetched.Meta.TruncationReason == pagination.TruncatedByMaxPages && end == len(items) && end > start {
		hasMore = true
	}

	res := &ListResult{
		Data: items[start:end],
		Meta: ListMeta{
			Returned:         end - start,
			StartWith:        window.StartWith,
			Limit:            window.Limit,
			HasMore:          hasMore,
			PagesFetched:     fetched.Meta.Pages,
			Partial:          fetched.Meta.Partial,
			TruncationReason: fetched.Meta.TruncationReason,
		},
	}
	if hasMore {
		next := end
		res.Meta.NextStartWith = &next
	}
	return res, nil
}

// requestFields returns the non-path, non-control arguments, converting
// markdown fields when requested.
func (e *Endpoint) requestFields(desc registry.Descriptor, args map[string]interface{}) (map[string]interface{}, error) {
	pathParams := make(map[string]bool)
	for _, p := range desc.PathParams() {
		pathParams[p] = true
	}

	fields := make(map[string]interface{}, len(args))
	for k, v := range args {
		if controlArgs[k] || pathParams[k] || v == nil {
			continue
		}
		fields[k] = v
	}

	format, _ := args[registry.ArgDescriptionFormat].(string)
	switch strings.ToLower(format) {
	case "", "html":
		return fields, nil
	case "markdown":
	default:
		return nil, mcperrors.NewValidationError(registry.ArgDescriptionFormat, "must be html or markdown", format)
	}

	for _, name := range desc.MarkdownFields {
		src, ok := fields[name].(string)
		if !ok {
			continue
		}
		html, err := e.RenderMarkdown(src)
		if err != nil {
			return nil, mcperrors.NewValidationError(name, "markdown could not be rendered", nil)
		}
		fields[name] = html
	}
	return fields, nil
}

// RenderMarkdown converts markdown source to HTML
func (e *Endpoint) RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := e.markdown.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// Window is the caller-selected slice of a collection
type Window struct {
	Limit     int
	StartWith int
}

type windowArgs struct {
	Limit     *int `mapstructure:"limit"`
	StartWith *int `mapstructure:"startWith"`
}

// DecodeWindow reads limit and startWith. Limit defaults to 100 and is
// clamped to 100; values below 1 and negative offsets are rejected.
func DecodeWindow(args map[string]interface{}) (Window, error) {
	var raw windowArgs
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return Window{}, mcperrors.NewInternalError("failed to build argument decoder")
	}
	if err := decoder.Decode(args); err != nil {
		return Window{}, mcperrors.NewValidationError("limit", "limit and startWith must be integers", nil)
	}

	w := Window{Limit: DefaultListLimit}
	if raw.Limit != nil {
		if *raw.Limit < 1 {
			return Window{}, mcperrors.NewValidationError("limit", "must be at least 1", *raw.Limit)
		}
		w.Limit = *raw.Limit
		if w.Limit > MaxListLimit {
			w.Limit = MaxListLimit
		}
	}
	if raw.StartWith != nil {
		if *raw.StartWith < 0 {
			return Window{}, mcperrors.NewValidationError("startWith", "must not be negative", *raw.StartWith)
		}
		w.StartWith = *raw.StartWith
	}
	return w, nil
}

// CheckRequired reports the first required parameter that is absent or blank
func CheckRequired(desc registry.Descriptor, args map[string]interface{}) error {
	for _, p := range desc.RequiredParams {
		v, ok := args[p]
		if !ok || v == nil {
			return mcperrors.NewRequiredFieldError(p)
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return mcperrors.NewValidationError(p, "must not be empty", nil)
		}
	}
	return nil
}

// ExpandPath substitutes escaped path parameters into the path template
func ExpandPath(desc registry.Descriptor, args map[string]interface{}) (string, error) {
	path := desc.PathTemplate
	for _, p := range desc.PathParams() {
		v, ok := args[p]
		if !ok || v == nil {
			return "", mcperrors.NewRequiredFieldError(p)
		}
		path = strings.ReplaceAll(path, "{"+p+"}", url.PathEscape(scalarString(v)))
	}
	return path, nil
}

// ClientFrom returns the upstream client resolved for this call
func ClientFrom(ctx context.Context) (*productboard.Client, error) {
	c, err := productboard.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, mcperrors.NewInternalError("no Productboard instance resolved for this call")
	}
	return c, nil
}

func addQuery(query url.Values, name string, v interface{}) {
	if items, ok := v.([]interface{}); ok {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			parts = append(parts, scalarString(item))
		}
		query.Set(name, strings.Join(parts, ","))
		return
	}
	query.Set(name, scalarString(v))
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

func sortedNames(m map[string]interface{}) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
