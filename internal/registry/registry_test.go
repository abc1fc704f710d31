package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	mcp "github.com/fredcamaral/gomcp-sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "productboard-mcp/internal/errors"
)

const testManifest = `
operations:
  get_features:
    category: features
    httpMethod: GET
    pathTemplate: /features
    paginated: true
    description: List features
  get_feature:
    category: features
    httpMethod: GET
    pathTemplate: /features/{id}
    requiredParams: [id]
    description: Get a feature
  create_note:
    category: notes
    httpMethod: POST
    pathTemplate: /notes
    requiredParams: [title]
    optionalParams: [tags]
    paramTypes: {tags: array}
    markdownFields: [content]
    handler: note_create
    description: Create a note
`

type mapModule map[string]Handler

func (m mapModule) Resolve(name string) (Handler, bool) {
	h, ok := m[name]
	return h, ok
}

func echoHandler(ctx context.Context, desc Descriptor, args map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"tool": desc.Name, "args": args}, nil
}

func newTestRegistry(t *testing.T, categories []string) (*Registry, *atomic.Int32) {
	t.Helper()
	r := New(categories, Options{})
	require.NoError(t, r.LoadManifestBytes([]byte(testManifest)))
	assert.Equal(t, 3, r.RegisterFromManifest())

	var loads atomic.Int32
	r.RegisterModule("features", func() (Module, error) {
		loads.Add(1)
		return mapModule{"get_features": echoHandler, "get_feature": echoHandler}, nil
	})
	r.RegisterModule("notes", func() (Module, error) {
		return mapModule{"note_create": echoHandler}, nil
	})
	return r, &loads
}

func toolNames(r *Registry) []string {
	var names []string
	for _, tool := range r.ToolDefinitions() {
		names = append(names, tool.Name)
	}
	return names
}

func TestNormalizeCategories(t *testing.T) {
	assert.Nil(t, normalizeCategories(nil))
	assert.Nil(t, normalizeCategories([]string{}))
	assert.Nil(t, normalizeCategories([]string{" ", ""}))
	assert.Nil(t, normalizeCategories([]string{"notes", "all"}))
	assert.Equal(t, map[string]bool{"notes": true, "features": true}, normalizeCategories([]string{" Notes", "features", "notes"}))
}

func TestRegistry_EmptyCategoryListEnablesAll(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	assert.Equal(t, []string{"create_note", "get_feature", "get_features"}, toolNames(r))
	assert.Nil(t, r.EnabledCategories())
}

func TestRegistry_CategoryAllowList(t *testing.T) {
	r, loads := newTestRegistry(t, []string{"notes"})
	assert.Equal(t, []string{"create_note"}, toolNames(r))

	_, err := r.ExecuteTool(context.Background(), "get_feature", map[string]interface{}{"id": "f-1"})
	var se *mcperrors.StandardError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, mcperrors.ErrorCodeNotFound, se.ErrorInfo.Code)
	assert.Equal(t, int32(0), loads.Load())
}

func TestRegistry_UpdateEnabledCategories(t *testing.T) {
	r, _ := newTestRegistry(t, []string{"notes"})

	r.UpdateEnabledCategories([]string{"features"})
	assert.Equal(t, []string{"get_feature", "get_features"}, toolNames(r))
	assert.Equal(t, []string{"features"}, r.EnabledCategories())

	_, err := r.ExecuteTool(context.Background(), "get_feature", nil)
	require.NoError(t, err)

	r.UpdateEnabledCategories(nil)
	assert.Len(t, r.ToolDefinitions(), 3)
}

func TestRegistry_UnknownToolIsNotFound(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	_, err := r.ExecuteTool(context.Background(), "get_everything", nil)
	var se *mcperrors.StandardError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, mcperrors.ErrorCodeNotFound, se.ErrorInfo.Code)
	assert.Equal(t, "tool 'get_everything' not found", se.Error())
}

func TestRegistry_ExecuteResolvesHandlerOverride(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	out, err := r.ExecuteTool(context.Background(), "create_note", map[string]interface{}{"title": "Hi"})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{
		"tool": "create_note",
		"args": map[string]interface{}{"title": "Hi"},
	}, out)
}

func TestRegistry_HandlerErrorsPropagateUnchanged(t *testing.T) {
	boom := errors.New("upstream exploded")
	r := New(nil, Options{})
	require.NoError(t, r.LoadManifestBytes([]byte(testManifest)))
	r.RegisterFromManifest()
	r.RegisterModule("features", func() (Module, error) {
		return mapModule{"get_feature": func(context.Context, Descriptor, map[string]interface{}) (interface{}, error) {
			return nil, boom
		}}, nil
	})

	_, err := r.ExecuteTool(context.Background(), "get_feature", nil)
	assert.Same(t, boom, err)
}

func TestRegistry_ModuleLoadedOnceUnderRace(t *testing.T) {
	r, loads := newTestRegistry(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		name := "get_feature"
		if i%2 == 0 {
			name = "get_features"
		}
		go func() {
			defer wg.Done()
			_, err := r.ExecuteTool(context.Background(), name, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	stats := r.GetStats()
	assert.Equal(t, []string{"features"}, stats.LoadedModules)
	assert.Equal(t, int64(1), stats.ModuleLoads)
}

func TestRegistry_ModuleWithoutFactory(t *testing.T) {
	r := New(nil, Options{})
	require.NoError(t, r.LoadManifestBytes([]byte(testManifest)))
	r.RegisterFromManifest()

	_, err := r.ExecuteTool(context.Background(), "get_feature", nil)
	var se *mcperrors.StandardError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, mcperrors.ErrorCodeNotFound, se.ErrorInfo.Code)
}

func TestRegistry_FailedModuleLoadIsRetried(t *testing.T) {
	r := New(nil, Options{})
	require.NoError(t, r.LoadManifestBytes([]byte(testManifest)))
	r.RegisterFromManifest()

	var calls int
	r.RegisterModule("features", func() (Module, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("not ready")
		}
		return mapModule{"get_feature": echoHandler}, nil
	})

	_, err := r.ExecuteTool(context.Background(), "get_feature", nil)
	require.Error(t, err)
	_, err = r.ExecuteTool(context.Background(), "get_feature", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRegistry_MissingHandlerInModule(t *testing.T) {
	r := New(nil, Options{})
	require.NoError(t, r.LoadManifestBytes([]byte(testManifest)))
	r.RegisterFromManifest()
	r.RegisterModule("features", func() (Module, error) { return mapModule{}, nil })

	_, err := r.ExecuteTool(context.Background(), "get_features", nil)
	var se *mcperrors.StandardError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, mcperrors.ErrorCodeNotFound, se.ErrorInfo.Code)
}

func TestRegistry_CustomTools(t *testing.T) {
	r, _ := newTestRegistry(t, []string{"notes"})

	search := mcp.NewTool("search", "Search entities", mcp.ObjectSchema("Search", map[string]interface{}{}, nil))
	status := mcp.NewTool("server_status", "Status", mcp.ObjectSchema("Status", map[string]interface{}{}, nil))
	r.RegisterCustomTool(search, "search", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "searched", nil
	})
	r.RegisterCustomTool(status, "", func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		return "ok", nil
	})

	assert.Equal(t, []string{"create_note", "server_status"}, toolNames(r))

	out, err := r.ExecuteTool(context.Background(), "server_status", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	_, err = r.ExecuteTool(context.Background(), "search", nil)
	require.Error(t, err)

	r.UpdateEnabledCategories([]string{"search"})
	out, err = r.ExecuteTool(context.Background(), "search", nil)
	require.NoError(t, err)
	assert.Equal(t, "searched", out)
	assert.Equal(t, []string{"features", "notes", "search"}, r.Categories())
}

func TestRegistry_RegisterFromManifestKeepsResolvedLoaders(t *testing.T) {
	r, loads := newTestRegistry(t, nil)

	_, err := r.ExecuteTool(context.Background(), "get_feature", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, r.RegisterFromManifest())
	_, err = r.ExecuteTool(context.Background(), "get_feature", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), loads.Load())
}

func TestToolDefinitions_Schema(t *testing.T) {
	r, _ := newTestRegistry(t, nil)

	byName := map[string]map[string]interface{}{}
	for _, tool := range r.ToolDefinitions() {
		byName[tool.Name] = tool.InputSchema
	}

	get := byName["get_feature"]
	assert.Equal(t, "object", get["type"])
	assert.Equal(t, []string{"id"}, get["required"])
	props := get["properties"].(map[string]interface{})
	assert.Contains(t, props, "id")
	assert.Contains(t, props, ArgInstance)
	assert.Contains(t, props, ArgWorkspaceID)
	assert.NotContains(t, props, ArgLimit)

	list := byName["get_features"]["properties"].(map[string]interface{})
	assert.Equal(t, 100, list[ArgLimit].(map[string]interface{})["maximum"])
	assert.Contains(t, list, ArgStartWith)

	note := byName["create_note"]["properties"].(map[string]interface{})
	assert.Equal(t, "array", note["tags"].(map[string]interface{})["type"])
	assert.Equal(t, []string{"html", "markdown"}, note[ArgDescriptionFormat].(map[string]interface{})["enum"])
}
