package tools

import (
	"sort"
	"sync"
)

// Registry manages the collection of available tools.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// NewCatalogRegistry registers one CatalogTool per catalog entry.
func NewCatalogRegistry(c *Catalog) *Registry {
	r := NewRegistry()
	for _, spec := range c.Tools {
		r.Register(NewCatalogTool(spec))
	}
	return r
}

// Register adds a new tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// List returns all registered tools ordered by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name() < tools[j].Name()
	})
	return tools
}

// Definitions returns the MCP definitions of all registered tools.
func (r *Registry) Definitions() []Definition {
	list := r.List()
	defs := make([]Definition, 0, len(list))
	for _, tool := range list {
		defs = append(defs, tool.Definition())
	}
	return defs
}
