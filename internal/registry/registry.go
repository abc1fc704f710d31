// Package registry resolves catalog operations to their implementations.
// Category modules are constructed lazily on first use, at most once per
// process, and handlers are dispatched by operation name.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fredcamaral/gomcp-sdk/protocol"
	"golang.org/x/sync/singleflight"

	mcperrors "productboard-mcp/internal/errors"
	"productboard-mcp/internal/logging"
)

// Handler executes one catalog operation
type Handler func(ctx context.Context, desc Descriptor, args map[string]interface{}) (interface{}, error)

// CustomHandler executes a tool that has no catalog descriptor
type CustomHandler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Module is the implementation unit of a category
type Module interface {
	Resolve(handlerName string) (Handler, bool)
}

// ModuleFactory builds the module of a category
type ModuleFactory func() (Module, error)

// Options configures a Registry
type Options struct {
	Logger logging.Logger
}

// loader resolves one descriptor's handler on first use and keeps it
type loader struct {
	desc    Descriptor
	mu      sync.Mutex
	handler Handler
}

type customTool struct {
	tool     protocol.Tool
	category string
	handler  CustomHandler
}

// Registry maps tool names to descriptors and their deferred loaders
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	loaders     map[string]*loader
	custom      map[string]customTool
	factories   map[string]ModuleFactory
	modules     map[string]Module
	enabled     map[string]bool

	group       singleflight.Group
	moduleLoads atomic.Int64
	logger      logging.Logger
}

// New creates a registry. An empty category list enables every category.
func New(enabledCategories []string, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Registry{
		descriptors: make(map[string]Descriptor),
		loaders:     make(map[string]*loader),
		custom:      make(map[string]customTool),
		factories:   make(map[string]ModuleFactory),
		modules:     make(map[string]Module),
		enabled:     normalizeCategories(enabledCategories),
		logger:      logger.WithComponent("registry"),
	}
}

// normalizeCategories returns the allow-list as a set. An empty list, or
// one naming "all", is the sentinel for every category and yields nil.
func normalizeCategories(categories []string) map[string]bool {
	set := make(map[string]bool, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if c == "all" || c == "*" {
			return nil
		}
		set[c] = true
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

// LoadManifest reads a catalog file and adds its descriptors
func (r *Registry) LoadManifest(path string) error {
	m, err := ReadManifest(path)
	if err != nil {
		return err
	}
	r.addDescriptors(m)
	return nil
}

// LoadManifestBytes adds the descriptors of an in-memory catalog
func (r *Registry) LoadManifestBytes(data []byte) error {
	m, err := ParseManifest(data)
	if err != nil {
		return err
	}
	r.addDescriptors(m)
	return nil
}

func (r *Registry) addDescriptors(m *Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, d := range m.Operations {
		r.descriptors[name] = d
	}
}

// RegisterModule supplies the factory for a category's implementation module
func (r *Registry) RegisterModule(category string, factory ModuleFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(category)] = factory
}

// RegisterFromManifest creates a deferred loader for every descriptor.
// Loaders that already exist are kept along with their resolved handler.
func (r *Registry) RegisterFromManifest() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for name, d := range r.descriptors {
		if existing, ok := r.loaders[name]; ok && existing.desc.HandlerName() == d.HandlerName() && existing.desc.Category == d.Category {
			continue
		}
		r.loaders[name] = &loader{desc: d}
		added++
	}
	r.logger.Debug("registered catalog loaders", "added", added, "total", len(r.loaders))
	return added
}

// RegisterCustomTool adds a tool that is not part of the catalog. An empty
// category keeps the tool enabled regardless of the allow-list.
func (r *Registry) RegisterCustomTool(tool protocol.Tool, category string, handler CustomHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[tool.Name] = customTool{tool: tool, category: strings.ToLower(category), handler: handler}
}

// UpdateEnabledCategories swaps the allow-list without reloading descriptors
func (r *Registry) UpdateEnabledCategories(categories []string) {
	enabled := normalizeCategories(categories)
	r.mu.Lock()
	r.enabled = enabled
	r.mu.Unlock()
	r.logger.Info("enabled categories updated", "categories", categories)
}

// EnabledCategories returns the allow-list, nil meaning every category
func (r *Registry) EnabledCategories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.enabled == nil {
		return nil
	}
	out := make([]string, 0, len(r.enabled))
	for c := range r.enabled {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// categoryEnabled must be called with r.mu held
func (r *Registry) categoryEnabled(category string) bool {
	return r.enabled == nil || category == "" || r.enabled[category]
}

// Categories lists every category that has descriptors or custom tools
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]bool)
	for _, d := range r.descriptors {
		set[d.Category] = true
	}
	for _, c := range r.custom {
		if c.category != "" {
			set[c.category] = true
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Descriptor returns the catalog entry for name
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}

// ToolDefinitions returns schemas for every enabled catalog operation and
// custom tool, sorted by name.
func (r *Registry) ToolDefinitions() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]protocol.Tool, 0, len(r.loaders)+len(r.custom))
	for _, l := range r.loaders {
		if r.categoryEnabled(l.desc.Category) {
			tools = append(tools, toolDefinition(l.desc))
		}
	}
	for name, c := range r.custom {
		if _, shadowed := r.loaders[name]; shadowed {
			continue
		}
		if r.categoryEnabled(c.category) {
			tools = append(tools, c.tool)
		}
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// ExecuteTool resolves name and invokes its handler. Unknown and disabled
// tools are reported as not found; handler errors are returned unchanged.
func (r *Registry) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	l, isCatalog := r.loaders[name]
	c, isCustom := r.custom[name]
	enabled := (isCatalog && r.categoryEnabled(l.desc.Category)) ||
		(!isCatalog && isCustom && r.categoryEnabled(c.category))
	r.mu.RUnlock()

	if !enabled {
		return nil, mcperrors.NewNotFoundError("tool", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	if !isCatalog {
		return c.handler(ctx, args)
	}

	handler, err := r.resolve(l)
	if err != nil {
		return nil, err
	}
	return handler(ctx, l.desc, args)
}

// resolve materializes a loader's handler, loading its module if needed
func (r *Registry) resolve(l *loader) (Handler, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handler != nil {
		return l.handler, nil
	}

	module, err := r.module(l.desc.Category)
	if err != nil {
		return nil, err
	}
	handler, ok := module.Resolve(l.desc.HandlerName())
	if !ok || handler == nil {
		r.logger.Error("category module has no handler",
			"category", l.desc.Category, "handler", l.desc.HandlerName())
		return nil, mcperrors.NewNotFoundError("handler", l.desc.HandlerName())
	}
	l.handler = handler
	return handler, nil
}

// module returns the category module, constructing it exactly once even
// when first uses race.
func (r *Registry) module(category string) (Module, error) {
	r.mu.RLock()
	m, ok := r.modules[category]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	v, err, _ := r.group.Do(category, func() (interface{}, error) {
		r.mu.RLock()
		m, ok := r.modules[category]
		factory, hasFactory := r.factories[category]
		r.mu.RUnlock()
		if ok {
			return m, nil
		}
		if !hasFactory {
			return nil, mcperrors.NewNotFoundError("category module", category)
		}

		m, err := factory()
		if err != nil {
			r.logger.Error("failed to load category module", "category", category, "error", err)
			return nil, fmt.Errorf("load %s module: %w", category, err)
		}
		r.moduleLoads.Add(1)

		r.mu.Lock()
		r.modules[category] = m
		r.mu.Unlock()
		r.logger.Debug("loaded category module", "category", category)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Module), nil
}

// Stats is a point-in-time view of the registry
type Stats struct {
	Descriptors       int      `json:"descriptors"`
	CustomTools       int      `json:"customTools"`
	EnabledTools      int      `json:"enabledTools"`
	LoadedModules     []string `json:"loadedModules"`
	ModuleLoads       int64    `json:"moduleLoads"`
	EnabledCategories []string `json:"enabledCategories,omitempty"`
}

// GetStats reports descriptor counts and loaded modules
func (r *Registry) GetStats() Stats {
	enabledTools := len(r.ToolDefinitions())

	r.mu.RLock()
	loaded := make([]string, 0, len(r.modules))
	for c := range r.modules {
		loaded = append(loaded, c)
	}
	stats := Stats{
		Descriptors:   len(r.loaders),
		CustomTools:   len(r.custom),
		EnabledTools:  enabledTools,
		LoadedModules: loaded,
		ModuleLoads:   r.moduleLoads.Load(),
	}
	r.mu.RUnlock()

	sort.Strings(stats.LoadedModules)
	stats.EnabledCategories = r.EnabledCategories()
	return stats
}
