package registry

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Body envelopes for non-GET operations
const (
	EnvelopeData = "data"
	EnvelopeNone = "none"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// DefaultManifest returns the embedded operation catalog
func DefaultManifest() []byte {
	return defaultCatalog
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// Descriptor describes one catalog operation. Descriptors are immutable
// once loaded.
type Descriptor struct {
	Name           string   `yaml:"-" json:"name"`
	Category       string   `yaml:"category" json:"category"`
	HTTPMethod     string   `yaml:"httpMethod" json:"httpMethod"`
	PathTemplate   string   `yaml:"pathTemplate" json:"pathTemplate"`
	RequiredParams []string `yaml:"requiredParams,omitempty" json:"requiredParams,omitempty"`
	OptionalParams []string `yaml:"optionalParams,omitempty" json:"optionalParams,omitempty"`
	Description    string   `yaml:"description" json:"description"`

	// QueryParams of a non-GET operation that travel in the query string
	QueryParams []string `yaml:"queryParams,omitempty" json:"queryParams,omitempty"`
	// ParamTypes holds JSON schema types for non-string parameters
	ParamTypes map[string]string `yaml:"paramTypes,omitempty" json:"paramTypes,omitempty"`
	// MarkdownFields are converted to HTML when descriptionFormat is markdown
	MarkdownFields []string `yaml:"markdownFields,omitempty" json:"markdownFields,omitempty"`
	Paginated      bool     `yaml:"paginated,omitempty" json:"paginated,omitempty"`
	Envelope       string   `yaml:"envelope,omitempty" json:"envelope,omitempty"`
	// Handler names the implementation inside the category module; the
	// operation name is used when empty.
	Handler string `yaml:"handler,omitempty" json:"handler,omitempty"`
}

// HandlerName is the name the category module resolves
func (d Descriptor) HandlerName() string {
	if d.Handler != "" {
		return d.Handler
	}
	return d.Name
}

// PathParams lists the placeholders of the path template in order
func (d Descriptor) PathParams() []string {
	matches := placeholderPattern.FindAllStringSubmatch(d.PathTemplate, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// ParamType returns the schema type of a parameter, string by default
func (d Descriptor) ParamType(name string) string {
	if t, ok := d.ParamTypes[name]; ok && t != "" {
		return t
	}
	return "string"
}

// IsQueryParam reports whether a non-GET parameter belongs in the query
func (d Descriptor) IsQueryParam(name string) bool {
	for _, q := range d.QueryParams {
		if q == name {
			return true
		}
	}
	return false
}

func (d Descriptor) validate() error {
	if d.Category == "" {
		return fmt.Errorf("operation %s: category is required", d.Name)
	}
	switch d.HTTPMethod {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("operation %s: unsupported http method %q", d.Name, d.HTTPMethod)
	}
	if !strings.HasPrefix(d.PathTemplate, "/") {
		return fmt.Errorf("operation %s: path template must start with /", d.Name)
	}
	required := make(map[string]bool, len(d.RequiredParams))
	for _, p := range d.RequiredParams {
		required[p] = true
	}
	for _, p := range d.PathParams() {
		if !required[p] {
			return fmt.Errorf("operation %s: path parameter %s must be required", d.Name, p)
		}
	}
	switch d.Envelope {
	case "", EnvelopeData, EnvelopeNone:
	default:
		return fmt.Errorf("operation %s: unknown envelope %q", d.Name, d.Envelope)
	}
	return nil
}

// Manifest is a parsed operation catalog
type Manifest struct {
	Version    string                `yaml:"version"`
	Operations map[string]Descriptor `yaml:"operations"`
}

// Descriptors returns the operations sorted by name
func (m *Manifest) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(m.Operations))
	for _, d := range m.Operations {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ParseManifest decodes a YAML (or JSON) catalog and validates every entry
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse tool manifest: %w", err)
	}
	if len(m.Operations) == 0 {
		return nil, fmt.Errorf("tool manifest has no operations")
	}

	for name, d := range m.Operations {
		d.Name = name
		d.HTTPMethod = strings.ToUpper(d.HTTPMethod)
		d.Category = strings.ToLower(strings.TrimSpace(d.Category))
		if err := d.validate(); err != nil {
			return nil, err
		}
		m.Operations[name] = d
	}
	return &m, nil
}

// ReadManifest loads a catalog from disk
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied manifest path
	if err != nil {
		return nil, fmt.Errorf("failed to read tool manifest %s: %w", path, err)
	}
	return ParseManifest(data)
}
