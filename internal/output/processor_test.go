package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productboard-mcp/internal/entities"
)

func sampleFeatures() []map[string]interface{} {
	return []map[string]interface{}{
		{
			"id":     "feat-1",
			"name":   "Dark mode",
			"type":   "feature",
			"status": map[string]interface{}{"id": "s1", "name": "In progress"},
			"owner":  map[string]interface{}{"email": "ana@example.com"},
		},
		{
			"id":   "feat-2",
			"name": "Export",
			"type": "feature",
		},
	}
}

func TestProcess_IDsOnly(t *testing.T) {
	out := Process(sampleFeatures(), nil, Spec{Mode: ModeIDsOnly})
	assert.Equal(t, []string{"feat-1", "feat-2"}, out)
}

func TestProcess_Full(t *testing.T) {
	records := sampleFeatures()
	out := Process(records, nil, Spec{Mode: ModeFull})
	assert.Equal(t, records, out)
}

func TestProcess_FieldList(t *testing.T) {
	out := Process(sampleFeatures()[:1], nil, Spec{Mode: ModeFields, Fields: []string{"id", "owner.email"}})

	assert.Equal(t, []map[string]interface{}{
		{"id": "feat-1", "owner": map[string]interface{}{"email": "ana@example.com"}},
	}, out)
}

func TestProcess_FieldListMissingPath(t *testing.T) {
	out := Process(sampleFeatures()[1:], nil, Spec{Mode: ModeFields, Fields: []string{"id", "owner.email"}})

	// Intermediate created, leaf left absent
	assert.Equal(t, []map[string]interface{}{
		{"id": "feat-2", "owner": map[string]interface{}{}},
	}, out)
}

func TestProcess_FieldListKeepsScalarParent(t *testing.T) {
	records := []map[string]interface{}{{"id": "feat-9", "owner": "alice"}}

	for _, fields := range [][]string{{"owner", "owner.email"}, {"owner.email", "owner"}} {
		out := Process(records, nil, Spec{Mode: ModeFields, Fields: fields})

		assert.Equal(t, []map[string]interface{}{{"owner": "alice"}}, out, "%v", fields)
	}
}

func TestProcess_SummaryUsesMapping(t *testing.T) {
	mapping := &entities.Mapping{SummaryFields: []string{"id", "status.name"}}

	out := Process(sampleFeatures()[:1], mapping, Spec{Mode: ModeSummary})

	assert.Equal(t, []map[string]interface{}{
		{"id": "feat-1", "status": map[string]interface{}{"name": "In progress"}},
	}, out)
}

func TestProcess_SummaryFallback(t *testing.T) {
	records := []map[string]interface{}{
		{"id": "n1", "title": "Call notes", "content": "long text", "status": "open"},
		{"id": "c1", "name": "Acme", "domain": "acme.com"},
	}

	out := Process(records, nil, Spec{Mode: ModeSummary})

	assert.Equal(t, []map[string]interface{}{
		{"id": "n1", "title": "Call notes", "status": "open"},
		{"id": "c1", "name": "Acme"},
	}, out)
}

func TestProject_DoesNotAliasSource(t *testing.T) {
	src := sampleFeatures()[0]

	out := Project(src, []string{"owner", "owner.email"})
	SetPath(out, "owner.email", "changed@example.com")

	email, ok := GetPath(src, "owner.email")
	require.True(t, ok)
	assert.Equal(t, "ana@example.com", email)
}

func TestGetSetPath_Symmetric(t *testing.T) {
	paths := []string{"id", "owner.email", "timeframe.startDate", "a.b.c.d"}
	record := map[string]interface{}{}

	for i, p := range paths {
		SetPath(record, p, i)
	}
	for i, p := range paths {
		v, ok := GetPath(record, p)
		require.True(t, ok, p)
		assert.Equal(t, i, v, p)
	}

	_, ok := GetPath(record, "owner.name")
	assert.False(t, ok)
	_, ok = GetPath(record, "id.nested")
	assert.False(t, ok)
}
