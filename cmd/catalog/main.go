// catalog maintains the tool catalog: it generates a manifest from the
// Productboard OpenAPI document, validates manifests and lists the
// embedded catalog.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"productboard-mcp/internal/registry"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "generate":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		err = generate(context.Background(), os.Args[2], os.Stdout)
	case "validate":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		err = validate(os.Args[2], os.Stdout)
	case "list":
		err = list(registry.DefaultManifest(), os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: catalog <command>")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  generate <openapi.yaml>  - Print a tool manifest built from an OpenAPI document")
	fmt.Fprintln(os.Stderr, "  validate <manifest.yaml> - Validate a tool manifest")
	fmt.Fprintln(os.Stderr, "  list                     - List the embedded catalog")
}

func generate(ctx context.Context, specPath string, w io.Writer) error {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return fmt.Errorf("OpenAPI document is invalid: %w", err)
	}

	manifest, err := fromOpenAPI(doc)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(manifest); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	// the generated manifest must load exactly like a hand-written one
	if _, err := registry.ParseManifest(buf.Bytes()); err != nil {
		return fmt.Errorf("generated manifest does not load: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func validate(path string, w io.Writer) error {
	m, err := registry.ReadManifest(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "manifest is valid: %d operations\n", len(m.Operations))
	return nil
}

func list(data []byte, w io.Writer) error {
	m, err := registry.ParseManifest(data)
	if err != nil {
		return err
	}
	for _, d := range m.Descriptors() {
		fmt.Fprintf(w, "%-40s %-11s %-6s %s\n", d.Name, d.Category, d.HTTPMethod, d.PathTemplate)
	}
	return nil
}

// fromOpenAPI derives one descriptor per operation. The operation ID names
// the tool and the first tag names its category.
func fromOpenAPI(doc *openapi3.T) (*registry.Manifest, error) {
	m := &registry.Manifest{Operations: make(map[string]registry.Descriptor)}
	if doc.Info != nil {
		m.Version = doc.Info.Version
	}
	if doc.Paths == nil {
		return nil, fmt.Errorf("OpenAPI document has no paths")
	}

	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	for _, path := range keys {
		item := paths[path]
		for method, op := range item.Operations() {
			d := describe(path, strings.ToUpper(method), item.Parameters, op)
			if _, dup := m.Operations[d.Name]; dup {
				return nil, fmt.Errorf("duplicate operation name %s (%s %s)", d.Name, d.HTTPMethod, path)
			}
			m.Operations[d.Name] = d
		}
	}
	return m, nil
}

func describe(path, method string, shared openapi3.Parameters, op *openapi3.Operation) registry.Descriptor {
	d := registry.Descriptor{
		Name:         operationName(method, path, op.OperationID),
		Category:     category(path, op.Tags),
		HTTPMethod:   method,
		PathTemplate: path,
		Description:  strings.TrimSpace(op.Summary),
		ParamTypes:   make(map[string]string),
	}
	if d.Description == "" {
		d.Description = strings.TrimSpace(op.Description)
	}

	var required, optional []string
	seen := make(map[string]bool)
	addParam := func(name string, isRequired bool, schema *openapi3.SchemaRef) {
		if seen[name] {
			return
		}
		seen[name] = true
		if isRequired {
			required = append(required, name)
		} else {
			optional = append(optional, name)
		}
		if t := schemaType(schema); t != "" && t != "string" {
			d.ParamTypes[name] = t
		}
	}

	params := append(openapi3.Parameters{}, shared...)
	params = append(params, op.Parameters...)
	for _, ref := range params {
		p := ref.Value
		if p == nil || (p.In != openapi3.ParameterInPath && p.In != openapi3.ParameterInQuery) {
			continue
		}
		if p.In == openapi3.ParameterInQuery && method != http.MethodGet {
			d.QueryParams = append(d.QueryParams, p.Name)
		}
		addParam(p.Name, p.Required || p.In == openapi3.ParameterInPath, p.Schema)
	}

	if body := requestSchema(op); body != nil {
		d.Envelope = registry.EnvelopeNone
		if data, ok := body.Properties["data"]; ok && data.Value != nil {
			d.Envelope = registry.EnvelopeData
			body = data.Value
		}
		requiredBody := make(map[string]bool, len(body.Required))
		for _, r := range body.Required {
			requiredBody[r] = true
		}
		for _, name := range sortedKeys(body.Properties) {
			addParam(name, requiredBody[name], body.Properties[name])
		}
	}

	d.RequiredParams = required
	d.OptionalParams = optional
	d.Paginated = method == http.MethodGet && hasNextLink(op)
	if len(d.ParamTypes) == 0 {
		d.ParamTypes = nil
	}
	if d.Envelope == registry.EnvelopeData {
		d.Envelope = ""
	}
	return d
}

func requestSchema(op *openapi3.Operation) *openapi3.Schema {
	if op.RequestBody == nil || op.RequestBody.Value == nil {
		return nil
	}
	mt := op.RequestBody.Value.Content.Get("application/json")
	if mt == nil || mt.Schema == nil {
		return nil
	}
	return mt.Schema.Value
}

// hasNextLink reports whether the success response is a linked collection
func hasNextLink(op *openapi3.Operation) bool {
	if op.Responses == nil {
		return false
	}
	resp := op.Responses.Status(http.StatusOK)
	if resp == nil || resp.Value == nil {
		return false
	}
	mt := resp.Value.Content.Get("application/json")
	if mt == nil || mt.Schema == nil || mt.Schema.Value == nil {
		return false
	}
	links, ok := mt.Schema.Value.Properties["links"]
	if !ok || links.Value == nil {
		return false
	}
	_, ok = links.Value.Properties["next"]
	return ok
}

func schemaType(ref *openapi3.SchemaRef) string {
	if ref == nil || ref.Value == nil || ref.Value.Type == nil {
		return ""
	}
	for _, t := range []string{
		openapi3.TypeInteger, openapi3.TypeNumber, openapi3.TypeBoolean,
		openapi3.TypeArray, openapi3.TypeObject, openapi3.TypeString,
	} {
		if ref.Value.Type.Is(t) {
			return t
		}
	}
	return ""
}

func category(path string, tags []string) string {
	if len(tags) > 0 && strings.TrimSpace(tags[0]) != "" {
		return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(tags[0]), " ", "-"))
	}
	segment := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)[0]
	if segment == "" {
		return "general"
	}
	return strings.ToLower(segment)
}

// operationName snake-cases the operation ID, falling back to method and path
func operationName(method, path, operationID string) string {
	if operationID == "" {
		operationID = strings.ToLower(method) + "_" + strings.NewReplacer("{", "", "}", "", "/", "_", "-", "_").Replace(strings.Trim(path, "/"))
	}

	var b strings.Builder
	prevLower := false
	for _, r := range operationID {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteRune('_')
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return b.String()
}

func sortedKeys(m openapi3.Schemas) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
