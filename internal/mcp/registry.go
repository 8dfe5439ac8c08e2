package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Registry is an ordered set of tools.
type Registry struct {
	name    string
	version string

	mu    sync.RWMutex
	tools []*registeredTool
}

type registeredTool struct {
	tool    *mcp.Tool
	handler mcp.ToolHandler
}

// ToolSpec is the exported description of one tool.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"` //nolint:tagliatelle // export format uses snake_case
}

// NewRegistry creates an empty registry for a server with the given
// implementation name and version.
func NewRegistry(name, version string) *Registry {
	return &Registry{
		name:    name,
		version: version,
		tools:   make([]*registeredTool, 0, 8),
	}
}

// Name returns the server implementation name.
func (r *Registry) Name() string {
	return r.name
}

// Version returns the server implementation version.
func (r *Registry) Version() string {
	return r.version
}

// Add registers a tool. A nil schema means an object with no properties.
// Adding a name twice replaces the earlier tool in place.
func (r *Registry) Add(
	name, description string,
	schema *jsonschema.Schema,
	handler mcp.ToolHandler,
) *Registry {
	return r.AddTool(NewTool(name, description, schema), handler)
}

// AddTool registers a fully described tool.
func (r *Registry) AddTool(tool *mcp.Tool, handler mcp.ToolHandler) *Registry {
	if tool.InputSchema == nil {
		tool.InputSchema = &jsonschema.Schema{Type: "object"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &registeredTool{tool: tool, handler: handler}

	if i := r.indexLocked(tool.Name); i >= 0 {
		r.tools[i] = entry

		return r
	}

	r.tools = append(r.tools, entry)

	return r
}

func (r *Registry) indexLocked(name string) int {
	return slices.IndexFunc(r.tools, func(t *registeredTool) bool {
		return t.tool.Name == name
	})
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

// Tools returns the registered tool descriptors in registration order.
func (r *Registry) Tools() []*mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*mcp.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.tool)
	}

	return out
}

// Specs returns the export form of every tool.
func (r *Registry) Specs() []ToolSpec {
	tools := r.Tools()

	specs := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	return specs
}

// WriteJSON writes Specs as an indented JSON array.
func (r *Registry) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(r.Specs()); err != nil {
		return fmt.Errorf("encode tool specs: %w", err)
	}

	return nil
}

// Install adds every registered tool to server.
func (r *Registry) Install(server *mcp.Server) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tools {
		server.AddTool(t.tool, t.handler)
	}
}

// NewServer creates a go-sdk server named after the registry with every tool
// installed.
func (r *Registry) NewServer(opts *mcp.ServerOptions) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: r.name, Version: r.version}, opts)
	r.Install(server)

	return server
}

// CallTool invokes a tool in-process. Unknown tools and handler errors are
// reported as error results, the way a server reports them to its client.
func (r *Registry) CallTool(ctx context.Context, name string, input map[string]any) (*mcp.CallToolResult, error) {
	r.mu.RLock()

	var handler mcp.ToolHandler
	if i := r.indexLocked(name); i >= 0 {
		handler = r.tools[i].handler
	}

	r.mu.RUnlock()

	if handler == nil {
		return ErrorResult("Tool not found: " + name), nil
	}

	if input == nil {
		input = map[string]any{}
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments: %w", err)
	}

	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Name:      name,
			Arguments: raw,
		},
	}

	result, err := handler(ctx, req)
	if err != nil {
		return ErrorResult("Tool execution failed: " + err.Error()), nil
	}

	return result, nil
}
