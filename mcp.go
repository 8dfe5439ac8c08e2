package mcpstdio

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	internalmcp "github.com/wagiedev/mcp-stdio-go/internal/mcp"
)

// Re-export MCP SDK types for public API.
// These are the official MCP protocol types.
type (
	// Tool is a tool definition as listed by a server.
	Tool = mcp.Tool

	// InitializeResult is the server's answer to initialize.
	InitializeResult = mcp.InitializeResult

	// Implementation names a client or server and its version.
	Implementation = mcp.Implementation

	// CallToolResult is a server's response to a tool call.
	// Use TextResult or ErrorResult to create results.
	CallToolResult = mcp.CallToolResult

	// CallToolRequest is the request passed to tool handlers.
	CallToolRequest = mcp.CallToolRequest

	// ToolHandler is the function signature for tool handlers.
	ToolHandler = mcp.ToolHandler

	// Schema is a JSON Schema object for tool input validation.
	Schema = jsonschema.Schema

	// Registry is an ordered set of tools served by an MCP server.
	Registry = internalmcp.Registry

	// ToolSpec is the exported description of one tool.
	ToolSpec = internalmcp.ToolSpec
)

// NewRegistry creates an empty tool registry for a server with the given
// name and version.
//
// Example:
//
//	reg := mcpstdio.NewRegistry("calculator", "1.0.0").
//	    Add("add", "Add two numbers",
//	        mcpstdio.SimpleSchema(map[string]string{"a": "float64", "b": "float64"}),
//	        func(ctx context.Context, req *mcpstdio.CallToolRequest) (*mcpstdio.CallToolResult, error) {
//	            args, err := mcpstdio.ParseArguments(req)
//	            if err != nil {
//	                return mcpstdio.ErrorResult(err.Error()), nil
//	            }
//	            a, _ := args["a"].(float64)
//	            b, _ := args["b"].(float64)
//	            return mcpstdio.TextResult(fmt.Sprintf("%v", a+b)), nil
//	        })
//
//	err := reg.NewServer(nil).Run(ctx, &mcp.StdioTransport{})
func NewRegistry(name, version string) *Registry {
	return internalmcp.NewRegistry(name, version)
}

// SimpleSchema creates a JSON Schema from a map of property names to Go type
// strings. Every property is required.
func SimpleSchema(props map[string]string) *Schema {
	return internalmcp.SimpleSchema(props)
}

// TextResult creates a CallToolResult with text content.
func TextResult(text string) *CallToolResult {
	return internalmcp.TextResult(text)
}

// ErrorResult creates a CallToolResult indicating an error.
func ErrorResult(message string) *CallToolResult {
	return internalmcp.ErrorResult(message)
}

// ParseArguments unmarshals CallToolRequest arguments into a map.
func ParseArguments(req *CallToolRequest) (map[string]any, error) {
	return internalmcp.ParseArguments(req)
}

// BindArguments unmarshals CallToolRequest arguments into v.
func BindArguments(req *CallToolRequest, v any) error {
	return internalmcp.BindArguments(req, v)
}
