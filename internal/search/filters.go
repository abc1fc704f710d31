package search

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"productboard-mcp/internal/entities"
	"productboard-mcp/internal/output"
)

// Operator is a filter comparison
type Operator string

const (
	OpEquals     Operator = "equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpIsEmpty    Operator = "isEmpty"
	OpIsNotEmpty Operator = "isNotEmpty"
	OpBefore     Operator = "before"
	OpAfter      Operator = "after"
)

var operators = []Operator{OpEquals, OpContains, OpStartsWith, OpEndsWith, OpIsEmpty, OpIsNotEmpty, OpBefore, OpAfter}

// OperatorNames lists the supported filter operators
func OperatorNames() []string {
	names := make([]string, len(operators))
	for i, op := range operators {
		names[i] = string(op)
	}
	return names
}

// Valid reports whether op is a known operator
func (op Operator) Valid() bool {
	for _, known := range operators {
		if op == known {
			return true
		}
	}
	return false
}

// NeedsValue reports whether op compares against a filter value
func (op Operator) NeedsValue() bool {
	return op != OpIsEmpty && op != OpIsNotEmpty
}

// IsDate reports whether op compares dates
func (op Operator) IsDate() bool {
	return op == OpBefore || op == OpAfter
}

// Filter is one normalized predicate on a dot-path field
type Filter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// MatchesBlank reports whether the filter selects missing-or-blank values
func (f Filter) MatchesBlank() bool {
	return f.Operator == OpIsEmpty || (f.Operator == OpEquals && f.Value == "")
}

// Matches evaluates the filter against a record. Array fields match when
// any element matches, except for emptiness checks which look at the array.
func (f Filter) Matches(record map[string]interface{}) bool {
	raw, _ := output.GetPath(record, f.Field)

	switch {
	case f.MatchesBlank():
		return isBlank(raw)
	case f.Operator == OpIsNotEmpty:
		return !isBlank(raw)
	}

	if items, ok := raw.([]interface{}); ok {
		for _, item := range items {
			if f.matchScalar(elementValue(item)) {
				return true
			}
		}
		return false
	}
	return f.matchScalar(raw)
}

func (f Filter) matchScalar(raw interface{}) bool {
	if isBlank(raw) {
		return false
	}
	value := stringify(raw)

	switch f.Operator {
	case OpEquals:
		return strings.EqualFold(value, f.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(f.Value))
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(value), strings.ToLower(f.Value))
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(value), strings.ToLower(f.Value))
	case OpBefore, OpAfter:
		got, ok := parseTime(value)
		if !ok {
			return false
		}
		want, ok := parseTime(f.Value)
		if !ok {
			return false
		}
		if f.Operator == OpBefore {
			return got.Before(want)
		}
		return got.After(want)
	default:
		return false
	}
}

// elementValue unwraps array members such as tags {"name": "x"}
func elementValue(item interface{}) interface{} {
	if obj, ok := item.(map[string]interface{}); ok {
		for _, key := range []string{"name", "id", "email"} {
			if v, ok := obj[key]; ok {
				return v
			}
		}
	}
	return item
}

func isBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SplitFilters separates filters the upstream can apply (equality on a
// field with a native query parameter and a non-blank value) from those
// that must be evaluated locally.
func SplitFilters(mapping *entities.Mapping, filters []Filter) (url.Values, []Filter) {
	native := url.Values{}
	var local []Filter
	for _, f := range filters {
		param := mapping.Field(f.Field).NativeParam
		if param != "" && f.Operator == OpEquals && f.Value != "" {
			native.Set(param, f.Value)
			continue
		}
		local = append(local, f)
	}
	return native, local
}

// isNested reports whether a record is a sub-record per the mapping's marker
func isNested(mapping *entities.Mapping, record map[string]interface{}) bool {
	if mapping.Nested == nil {
		return false
	}
	v, _ := output.GetPath(record, mapping.Nested.Field)
	if mapping.Nested.Value == "" {
		return !isBlank(v)
	}
	return !isBlank(v) && stringify(v) == mapping.Nested.Value
}
