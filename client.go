package mcpstdio

import (
	"context"
	"encoding/json"

	"github.com/wagiedev/mcp-stdio-go/internal/client"
)

// Client is a connection manager for one MCP server process.
//
// A Client is reusable: Stop ends the current server and a later Start spawns
// a new one. All methods are safe for concurrent use.
//
// Example usage:
//
//	client := NewClient(WithCommand("weather-server"))
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop()
//
//	alerts, err := client.CallTool(ctx, "get_alerts", map[string]any{"state": "CA"})
type Client interface {
	// Start spawns the server and performs the initialize handshake.
	// It is a no-op while a server is running. A failed handshake is logged
	// and does not fail Start.
	// Returns ConnectionError if the server cannot be spawned.
	Start(ctx context.Context) error

	// Stop terminates the server. Outstanding requests fail with
	// ErrConnectionClosed. Stop is idempotent.
	Stop() error

	// Initialize repeats the initialize handshake.
	Initialize(ctx context.Context) error

	// Request sends a JSON-RPC request and waits for its result.
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a JSON-RPC notification.
	Notify(ctx context.Context, method string, params any) error

	// CallTool invokes a tool and returns its primary value: the text of the
	// first content element when there is one.
	CallTool(ctx context.Context, name string, arguments map[string]any) (any, error)

	// ListTools returns every tool the server offers, following pagination.
	ListTools(ctx context.Context) ([]*Tool, error)

	// ServerInfo returns the initialize result, or nil before a successful
	// handshake.
	ServerInfo() *InitializeResult

	// Running reports whether a server process is live.
	Running() bool

	// PID returns the server's process id, or 0 when not running.
	PID() int
}

// Compile-time check that the internal client implements Client.
var _ Client = (*client.Client)(nil)

// NewClient creates a client. No process is spawned until Start.
func NewClient(opts ...Option) Client {
	return client.New(applyOptions(opts))
}

// UnwrapToolResult extracts the primary value from a raw tools/call result
// the same way CallTool does.
func UnwrapToolResult(raw json.RawMessage) (any, error) {
	return client.UnwrapToolResult(raw)
}
