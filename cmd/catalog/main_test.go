package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productboard-mcp/internal/registry"
)

const testDocument = `
openapi: 3.0.3
info:
  title: Productboard
  version: "1.0"
paths:
  /features:
    get:
      operationId: getFeatures
      tags: [Features]
      summary: List features
      parameters:
        - name: status.name
          in: query
          schema: {type: string}
        - name: archived
          in: query
          schema: {type: boolean}
      responses:
        "200":
          description: ok
          content:
            application/json:
              schema:
                type: object
                properties:
                  data: {type: array, items: {type: object}}
                  links:
                    type: object
                    properties:
                      next: {type: string}
    post:
      operationId: createFeature
      tags: [Features]
      summary: Create a feature
      requestBody:
        content:
          application/json:
            schema:
              type: object
              properties:
                data:
                  type: object
                  required: [name]
                  properties:
                    name: {type: string}
                    parent: {type: object}
      responses:
        "201": {description: created}
  /features/{id}:
    parameters:
      - name: id
        in: path
        required: true
        schema: {type: string}
    get:
      operationId: getFeature
      tags: [Features]
      summary: Retrieve a feature
      responses:
        "200": {description: ok}
  /notes:
    post:
      operationId: create-note
      summary: Create a note
      requestBody:
        content:
          application/json:
            schema:
              type: object
              required: [title, content]
              properties:
                title: {type: string}
                content: {type: string}
                tags: {type: array, items: {type: string}}
      responses:
        "201": {description: created}
`

func loadDocument(t *testing.T) *openapi3.T {
	t.Helper()
	doc, err := openapi3.NewLoader().LoadFromData([]byte(testDocument))
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))
	return doc
}

func TestFromOpenAPI(t *testing.T) {
	m, err := fromOpenAPI(loadDocument(t))
	require.NoError(t, err)
	assert.Equal(t, "1.0", m.Version)
	require.Len(t, m.Operations, 4)

	list := m.Operations["get_features"]
	assert.Equal(t, "features", list.Category)
	assert.True(t, list.Paginated)
	assert.Equal(t, []string{"status.name", "archived"}, list.OptionalParams)
	assert.Equal(t, "boolean", list.ParamType("archived"))
	assert.Empty(t, list.QueryParams)

	create := m.Operations["create_feature"]
	assert.Equal(t, []string{"name"}, create.RequiredParams)
	assert.Equal(t, []string{"parent"}, create.OptionalParams)
	assert.Equal(t, "object", create.ParamType("parent"))
	assert.Equal(t, "", create.Envelope)

	get := m.Operations["get_feature"]
	assert.Equal(t, []string{"id"}, get.RequiredParams)
	assert.False(t, get.Paginated)

	note := m.Operations["create_note"]
	assert.Equal(t, "notes", note.Category, "untagged operations fall back to the first path segment")
	assert.Equal(t, registry.EnvelopeNone, note.Envelope)
	assert.Equal(t, []string{"content", "title"}, note.RequiredParams)
	assert.Equal(t, "array", note.ParamType("tags"))
}

func TestGenerate_WritesLoadableManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testDocument), 0o600))

	var out bytes.Buffer
	require.NoError(t, generate(context.Background(), path, &out))

	m, err := registry.ParseManifest(out.Bytes())
	require.NoError(t, err)
	assert.Len(t, m.Operations, 4)
	assert.Equal(t, "GET", m.Operations["get_feature"].HTTPMethod)
}

func TestList_EmbeddedCatalog(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, list(registry.DefaultManifest(), &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	m, err := registry.ParseManifest(registry.DefaultManifest())
	require.NoError(t, err)
	assert.Len(t, lines, len(m.Operations))
	assert.Contains(t, out.String(), "get_features")
}

func TestOperationName(t *testing.T) {
	tests := []struct {
		method, path, id, want string
	}{
		{"GET", "/features", "getFeatures", "get_features"},
		{"POST", "/notes", "create-note", "create_note"},
		{"GET", "/features/{id}", "getFeatureByID", "get_feature_by_id"},
		{"DELETE", "/webhooks/{id}", "", "delete_webhooks_id"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, operationName(tt.method, tt.path, tt.id), tt.id)
	}
}
