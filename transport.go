package mcpstdio

import (
	"github.com/wagiedev/mcp-stdio-go/internal/config"
	"github.com/wagiedev/mcp-stdio-go/internal/jsonrpc"
)

// Transport carries newline-delimited JSON-RPC messages to and from a server.
// Implement this to provide custom transports for testing, mocking,
// or servers that are not child processes.
//
// The default implementation spawns the server as a subprocess.
// Custom transports can be injected via WithTransport.
type Transport = config.Transport

// Message is one decoded JSON-RPC message.
type Message = jsonrpc.Message
