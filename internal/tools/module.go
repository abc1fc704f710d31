package tools

import (
	"productboard-mcp/internal/registry"
)

// Module is a category module: specific handlers by name, with the generic
// endpoint handler for every other operation of the category.
type Module struct {
	category string
	handlers map[string]registry.Handler
	fallback registry.Handler
}

// NewModule creates a module for category backed by ep
func NewModule(category string, ep *Endpoint) *Module {
	return &Module{
		category: category,
		handlers: make(map[string]registry.Handler),
		fallback: ep.Handle,
	}
}

// Handle registers a specific handler for an operation
func (m *Module) Handle(name string, h registry.Handler) *Module {
	m.handlers[name] = h
	return m
}

// Category returns the category the module implements
func (m *Module) Category() string {
	return m.category
}

// Resolve implements registry.Module
func (m *Module) Resolve(name string) (registry.Handler, bool) {
	if h, ok := m.handlers[name]; ok {
		return h, true
	}
	return m.fallback, m.fallback != nil
}
