package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultManifest_Parses(t *testing.T) {
	m, err := ParseManifest(DefaultManifest())
	require.NoError(t, err)

	categories := map[string]int{}
	for _, d := range m.Descriptors() {
		categories[d.Category]++
	}
	for _, c := range []string{"features", "notes", "releases", "objectives", "webhooks"} {
		assert.Greater(t, categories[c], 0, c)
	}

	d := m.Operations["get_feature"]
	assert.Equal(t, "get_feature", d.Name)
	assert.Equal(t, "GET", d.HTTPMethod)
	assert.Equal(t, []string{"id"}, d.PathParams())
	assert.Equal(t, "get_feature", d.HandlerName())

	note := m.Operations["create_note"]
	assert.Equal(t, EnvelopeNone, note.Envelope)
	assert.Equal(t, "array", note.ParamType("tags"))
	assert.Equal(t, "string", note.ParamType("title"))

	assign := m.Operations["update_feature_release_assignment"]
	assert.True(t, assign.IsQueryParam("release.id"))
	assert.False(t, assign.IsQueryParam("assigned"))
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "version: \"1\"\n"},
		{"not yaml", "operations: [\n"},
		{"missing category", "operations:\n  x:\n    httpMethod: GET\n    pathTemplate: /x\n"},
		{"bad method", "operations:\n  x:\n    category: a\n    httpMethod: TRACE\n    pathTemplate: /x\n"},
		{"relative path", "operations:\n  x:\n    category: a\n    httpMethod: GET\n    pathTemplate: x\n"},
		{"optional path param", "operations:\n  x:\n    category: a\n    httpMethod: GET\n    pathTemplate: /x/{id}\n    optionalParams: [id]\n"},
		{"bad envelope", "operations:\n  x:\n    category: a\n    httpMethod: POST\n    pathTemplate: /x\n    envelope: xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseManifest_NormalizesMethodAndCategory(t *testing.T) {
	m, err := ParseManifest([]byte("operations:\n  x:\n    category: ' Features '\n    httpMethod: get\n    pathTemplate: /x\n"))
	require.NoError(t, err)
	assert.Equal(t, "GET", m.Operations["x"].HTTPMethod)
	assert.Equal(t, "features", m.Operations["x"].Category)
}

func TestReadManifest_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	data := `{"operations":{"ping":{"category":"system","httpMethod":"GET","pathTemplate":"/ping","description":"Ping"}}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	m, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "Ping", m.Operations["ping"].Description)

	_, err = ReadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
