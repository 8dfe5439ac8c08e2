package mcpstdio

import "github.com/wagiedev/mcp-stdio-go/internal/errors"

// Re-export error types from internal package

// ClientError is the error type returned by client operations.
type ClientError = errors.ClientError

// ErrorKind classifies a ClientError.
type ErrorKind = errors.Kind

// ConnectionError indicates the server process could not be spawned.
type ConnectionError = errors.ConnectionError

// ProcessError indicates the server process exited unexpectedly.
type ProcessError = errors.ProcessError

// JSONDecodeError indicates a line of server output was not JSON.
type JSONDecodeError = errors.JSONDecodeError

// MCPClientError is the base interface for all client errors.
type MCPClientError = errors.MCPClientError

// Error kinds.
const (
	KindNotRunning       = errors.KindNotRunning
	KindWriteFailure     = errors.KindWriteFailure
	KindTimeout          = errors.KindTimeout
	KindRemoteError      = errors.KindRemoteError
	KindMalformedInput   = errors.KindMalformedInput
	KindConnectionClosed = errors.KindConnectionClosed
	KindCancelled        = errors.KindCancelled
)

// Re-export sentinel errors from internal package.
var (
	// ErrNotRunning indicates no server process is running.
	ErrNotRunning = errors.ErrNotRunning

	// ErrWriteFailure indicates a write to the server's stdin failed.
	ErrWriteFailure = errors.ErrWriteFailure

	// ErrTimeout indicates a request timed out.
	ErrTimeout = errors.ErrTimeout

	// ErrRemote indicates the server answered with a JSON-RPC error.
	ErrRemote = errors.ErrRemote

	// ErrMalformedInput indicates the server wrote a line that is not JSON.
	ErrMalformedInput = errors.ErrMalformedInput

	// ErrConnectionClosed indicates the connection closed with the request
	// outstanding.
	ErrConnectionClosed = errors.ErrConnectionClosed

	// ErrCancelled indicates the caller cancelled the request.
	ErrCancelled = errors.ErrCancelled
)
