package output

import (
	"fmt"

	"productboard-mcp/internal/entities"
)

// Mode selects how records are shaped
type Mode string

const (
	ModeFull    Mode = "full"
	ModeSummary Mode = "summary"
	ModeIDsOnly Mode = "ids-only"
	ModeFields  Mode = "fields"
)

// Spec is a normalized output request
type Spec struct {
	Mode   Mode     `json:"mode"`
	Fields []string `json:"fields,omitempty"`
}

// Process shapes records according to spec. Full returns records
// unchanged, ids-only returns []string, the other modes return projected
// records. mapping may be nil.
func Process(records []map[string]interface{}, mapping *entities.Mapping, spec Spec) interface{} {
	switch spec.Mode {
	case ModeIDsOnly:
		ids := make([]string, 0, len(records))
		for _, r := range records {
			if id, ok := r["id"]; ok && id != nil {
				ids = append(ids, fmt.Sprint(id))
			}
		}
		return ids
	case ModeSummary:
		return projectAll(records, func(r map[string]interface{}) []string {
			return summaryFields(r, mapping)
		})
	case ModeFields:
		return projectAll(records, func(map[string]interface{}) []string {
			return spec.Fields
		})
	default:
		return records
	}
}

func projectAll(records []map[string]interface{}, fields func(map[string]interface{}) []string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		out = append(out, Project(r, fields(r)))
	}
	return out
}

// summaryFields returns the configured summary fields, or id plus
// name/title plus status when the entity has none configured.
func summaryFields(record map[string]interface{}, mapping *entities.Mapping) []string {
	if mapping != nil && len(mapping.SummaryFields) > 0 {
		return mapping.SummaryFields
	}
	fields := []string{"id"}
	if _, ok := record["name"]; ok {
		fields = append(fields, "name")
	} else if _, ok := record["title"]; ok {
		fields = append(fields, "title")
	}
	if _, ok := record["status"]; ok {
		fields = append(fields, "status")
	}
	return fields
}
