package tools

import (
	"airtable-mcp-go/internal/airtable"
)

// Tool is the interface that all tools must implement.
type Tool interface {
	// Name returns the name of the tool.
	Name() string

	// Definition returns the tool definition in MCP format.
	Definition() Definition

	// Prepare validates params and assembles the remote call. It never
	// touches the network.
	Prepare(params Params, defaults Defaults) (*Call, *airtable.Failure)
}

// BaseResolver picks the base a call addresses. An empty id asks for the
// configured default, which may itself be empty.
type BaseResolver interface {
	ResolveBase(id string) string
}

// Defaults are values a tool falls back to when a parameter is absent.
type Defaults struct {
	// Bases is optional. Without it base parameters have no default.
	Bases    BaseResolver
	PageSize int
}

// Call is a validated tool call ready to be sent.
type Call struct {
	Request airtable.RequestDescriptor
	// Listing is set for paginated tools; its Factory returns Request.
	Listing *airtable.PageRequest
}

// Definition describes a tool to MCP clients.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	Annotations map[string]any `json:"annotations,omitempty"`
}
