package config

import (
	"context"

	"github.com/wagiedev/mcp-stdio-go/internal/jsonrpc"
)

// Transport defines the interface for talking to an MCP server.
// Implement this to provide custom transports for testing, mocking,
// or alternative communication methods.
//
// The default implementation is subprocess.Process which spawns the server
// as a child process. Custom transports can be injected via Options.Transport.
type Transport interface {
	// Start initializes the transport and prepares it for communication.
	// This is called before any messages are sent or received.
	Start(ctx context.Context) error

	// ReadMessages returns channels for receiving decoded frames and the
	// terminal error, if any. Both channels are closed when the server's
	// output ends.
	ReadMessages(ctx context.Context) (<-chan *jsonrpc.Message, <-chan error)

	// SendMessage writes one encoded frame. A newline is appended if missing.
	// This method must be safe for concurrent use.
	SendMessage(ctx context.Context, data []byte) error

	// Close terminates the transport and releases resources.
	// It's safe to call Close multiple times.
	Close() error

	// IsReady returns true if the transport is ready for communication.
	IsReady() bool

	// EndInput signals that no more input will be sent.
	EndInput() error
}
