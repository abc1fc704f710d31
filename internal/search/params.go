// Package search implements the generic entity search pipeline: parameter
// normalization, native/local filter split, retrieval, windowing,
// projection and summarization.
package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/entities"
	"productboard-mcp/internal/output"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Detail selects a predefined field subset for full output
type Detail string

const (
	DetailBasic    Detail = "basic"
	DetailStandard Detail = "standard"
	DetailFull     Detail = "full"
)

// Params is a validated, defaulted search request
type Params struct {
	EntityType     string      `json:"entityType"`
	Filters        []Filter    `json:"filters,omitempty"`
	Output         output.Spec `json:"output"`
	Limit          int         `json:"limit"`
	StartWith      int         `json:"startWith"`
	Detail         Detail      `json:"detail"`
	IncludeSubData bool        `json:"includeSubData"`
}

// rawParams mirrors the tool arguments before validation
type rawParams struct {
	EntityType     string                 `mapstructure:"entityType"`
	Filters        map[string]interface{} `mapstructure:"filters"`
	Operators      map[string]string      `mapstructure:"operators"`
	Output         interface{}            `mapstructure:"output"`
	Limit          *int                   `mapstructure:"limit"`
	StartWith      *int                   `mapstructure:"startWith"`
	Detail         string                 `mapstructure:"detail"`
	IncludeSubData bool                   `mapstructure:"includeSubData"`
}

// NormalizeParams validates raw tool arguments against the known entity
// types and applies defaults: limit 50 (clamped to 100), startWith 0,
// detail standard, output full, includeSubData false.
func NormalizeParams(args map[string]interface{}, registry *entities.Registry) (*Params, error) {
	var raw rawParams
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return nil, mcperrors.NewInternalError("failed to build argument decoder")
	}
	if err := decoder.Decode(args); err != nil {
		return nil, mcperrors.NewValidationError("arguments", "malformed search arguments: "+err.Error(), nil)
	}

	if raw.EntityType == "" {
		return nil, mcperrors.NewRequiredFieldError("entityType")
	}
	if _, ok := registry.Get(raw.EntityType); !ok {
		return nil, mcperrors.NewValidationError("entityType",
			fmt.Sprintf("unknown entity type %q; expected one of: %s", raw.EntityType, strings.Join(registry.Types(), ", ")),
			raw.EntityType)
	}

	p := &Params{
		EntityType:     raw.EntityType,
		Limit:          DefaultLimit,
		Detail:         DetailStandard,
		IncludeSubData: raw.IncludeSubData,
	}

	if raw.Limit != nil {
		if *raw.Limit < 1 {
			return nil, mcperrors.NewValidationError("limit", "must be at least 1", *raw.Limit)
		}
		p.Limit = ClampLimit(*raw.Limit)
	}

	if raw.StartWith != nil {
		if *raw.StartWith < 0 {
			return nil, mcperrors.NewValidationError("startWith", "must not be negative", *raw.StartWith)
		}
		p.StartWith = *raw.StartWith
	}

	if raw.Detail != "" {
		switch Detail(raw.Detail) {
		case DetailBasic, DetailStandard, DetailFull:
			p.Detail = Detail(raw.Detail)
		default:
			return nil, mcperrors.NewValidationError("detail", "must be one of basic, standard, full", raw.Detail)
		}
	}

	spec, err := normalizeOutput(raw.Output)
	if err != nil {
		return nil, err
	}
	p.Output = spec

	filters, err := normalizeFilters(raw.Filters, raw.Operators)
	if err != nil {
		return nil, err
	}
	p.Filters = filters

	return p, nil
}

// ClampLimit caps a positive limit at MaxLimit
func ClampLimit(limit int) int {
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func normalizeOutput(v interface{}) (output.Spec, error) {
	switch t := v.(type) {
	case nil:
		return output.Spec{Mode: output.ModeFull}, nil
	case string:
		switch output.Mode(t) {
		case "", output.ModeFull:
			return output.Spec{Mode: output.ModeFull}, nil
		case output.ModeSummary, output.ModeIDsOnly:
			return output.Spec{Mode: output.Mode(t)}, nil
		default:
			return output.Spec{}, mcperrors.NewValidationError("output",
				`must be "full", "summary", "ids-only" or a list of field names`, t)
		}
	case []interface{}:
		return fieldList(t)
	case []string:
		items := make([]interface{}, len(t))
		for i, s := range t {
			items[i] = s
		}
		return fieldList(items)
	default:
		return output.Spec{}, mcperrors.NewValidationError("output",
			`must be "full", "summary", "ids-only" or a list of field names`, v)
	}
}

func fieldList(items []interface{}) (output.Spec, error) {
	if len(items) == 0 {
		return output.Spec{}, mcperrors.NewValidationError("output", "field list must not be empty", nil)
	}
	fields := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return output.Spec{}, mcperrors.NewValidationError("output",
				fmt.Sprintf("field list entry %d must be a non-empty string", i), item)
		}
		fields = append(fields, strings.TrimSpace(s))
	}
	return output.Spec{Mode: output.ModeFields, Fields: fields}, nil
}

func normalizeFilters(values map[string]interface{}, operators map[string]string) ([]Filter, error) {
	fields := make(map[string]struct{}, len(values)+len(operators))
	for f := range values {
		fields[f] = struct{}{}
	}
	for f := range operators {
		fields[f] = struct{}{}
	}

	filters := make([]Filter, 0, len(fields))
	for field := range fields {
		if strings.TrimSpace(field) == "" {
			return nil, mcperrors.NewValidationError("filters", "filter field names must not be empty", nil)
		}

		op := OpEquals
		if name, ok := operators[field]; ok && name != "" {
			op = Operator(name)
			if !op.Valid() {
				return nil, mcperrors.NewValidationError("operators",
					fmt.Sprintf("unknown operator %q for %s; expected one of: %s", name, field, strings.Join(OperatorNames(), ", ")),
					name)
			}
		}

		raw, hasValue := values[field]
		value, err := filterValue(field, raw)
		if err != nil {
			return nil, err
		}

		if op.NeedsValue() {
			if !hasValue && op != OpEquals {
				return nil, mcperrors.NewValidationError("filters",
					fmt.Sprintf("operator %s on %s needs a filter value", op, field), nil)
			}
			if op.IsDate() {
				if _, ok := parseTime(value); !ok {
					return nil, mcperrors.NewValidationError("filters",
						fmt.Sprintf("%s needs a date (YYYY-MM-DD or RFC 3339) for %s", field, op), value)
				}
			}
		}

		filters = append(filters, Filter{Field: field, Operator: op, Value: value})
	}

	sort.Slice(filters, func(i, j int) bool { return filters[i].Field < filters[j].Field })
	return filters, nil
}

// filterValue renders a scalar filter value as a string; nil means blank
func filterValue(field string, v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return "", mcperrors.NewValidationError("filters",
			fmt.Sprintf("value for %s must be a string, number or boolean", field), v)
	}
}
