// Package entities describes the searchable Productboard entity types:
// where each lives upstream, how it is summarized and which fields filter.
package entities

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// FieldKind drives which operators make sense for a field
type FieldKind string

const (
	KindString FieldKind = "string"
	KindDate   FieldKind = "date"
	KindBool   FieldKind = "bool"
	KindRef    FieldKind = "ref"
)

// Field describes one filterable field
type Field struct {
	DisplayName string    `yaml:"displayName" json:"displayName"`
	Kind        FieldKind `yaml:"kind" json:"kind"`
	// NativeParam is the upstream query parameter that filters on this
	// field by equality. Empty means the field is filtered locally.
	NativeParam string `yaml:"nativeParam,omitempty" json:"nativeParam,omitempty"`
}

// NestedMarker identifies sub-records (e.g. subfeatures) that are hidden
// unless the caller asks for nested data.
type NestedMarker struct {
	Field string `yaml:"field" json:"field"`
	// Value the field must equal. Empty means "field is present and non-empty".
	Value string `yaml:"value,omitempty" json:"value,omitempty"`
}

// Mapping is the configuration of one entity type
type Mapping struct {
	Type          string           `yaml:"type" json:"type"`
	Endpoint      string           `yaml:"endpoint" json:"endpoint"`
	Singular      string           `yaml:"singular" json:"singular"`
	Plural        string           `yaml:"plural" json:"plural"`
	NameField     string           `yaml:"nameField" json:"nameField"`
	SummaryFields []string         `yaml:"summaryFields" json:"summaryFields"`
	BasicFields   []string         `yaml:"basicFields" json:"basicFields"`
	Fields        map[string]Field `yaml:"fields" json:"fields"`
	Nested        *NestedMarker    `yaml:"nested,omitempty" json:"nested,omitempty"`
}

// Field returns the field description for a dot path, synthesizing a
// string field for unknown names so arbitrary paths can still be filtered.
func (m *Mapping) Field(path string) Field {
	if f, ok := m.Fields[path]; ok {
		if f.DisplayName == "" {
			f.DisplayName = humanize(path)
		}
		if f.Kind == "" {
			f.Kind = KindString
		}
		return f
	}
	return Field{DisplayName: humanize(path), Kind: KindString}
}

// FieldNames returns the configured filterable field paths, sorted
func (m *Mapping) FieldNames() []string {
	names := make([]string, 0, len(m.Fields))
	for name := range m.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Title returns the plural display name in title case, e.g. "Release Groups"
func (m *Mapping) Title() string {
	return cases.Title(language.English).String(m.Plural)
}

// humanize turns "owner.email" or "releaseGroup" into "owner email" / "release group"
func humanize(path string) string {
	var b strings.Builder
	for i, r := range path {
		switch {
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(' ')
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				b.WriteRune(' ')
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return cases.Lower(language.English).String(b.String())
}

// Registry is the read-only set of mappings, built once at startup
type Registry struct {
	mappings map[string]*Mapping
}

// NewRegistry builds a registry from mappings, filling display defaults
func NewRegistry(mappings []Mapping) (*Registry, error) {
	r := &Registry{mappings: make(map[string]*Mapping, len(mappings))}
	for i := range mappings {
		m := mappings[i]
		if m.Type == "" || m.Endpoint == "" {
			return nil, fmt.Errorf("entity mapping %d: type and endpoint are required", i)
		}
		if m.Plural == "" {
			m.Plural = humanize(m.Type)
		}
		if m.Singular == "" {
			m.Singular = strings.TrimSuffix(m.Plural, "s")
		}
		if m.NameField == "" {
			m.NameField = "name"
		}
		if len(m.BasicFields) == 0 {
			m.BasicFields = []string{"id", m.NameField}
		}
		r.mappings[m.Type] = &m
	}
	return r, nil
}

// Get returns the mapping for an entity type
func (r *Registry) Get(entityType string) (*Mapping, bool) {
	m, ok := r.mappings[entityType]
	return m, ok
}

// Types returns every known entity type, sorted
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.mappings))
	for t := range r.mappings {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// mappingFile is the on-disk override format
type mappingFile struct {
	Entities []Mapping `yaml:"entities"`
}

// LoadRegistry returns the default registry with entries from a YAML file
// merged over it. Entries replace defaults of the same type wholesale.
func LoadRegistry(path string) (*Registry, error) {
	defaults := DefaultMappings()
	if path == "" {
		return NewRegistry(defaults)
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator-provided config path
	if err != nil {
		return nil, fmt.Errorf("reading entity mappings: %w", err)
	}
	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing entity mappings: %w", err)
	}

	index := make(map[string]int, len(defaults))
	for i, m := range defaults {
		index[m.Type] = i
	}
	for _, m := range file.Entities {
		if i, ok := index[m.Type]; ok {
			defaults[i] = m
			continue
		}
		defaults = append(defaults, m)
	}
	return NewRegistry(defaults)
}
