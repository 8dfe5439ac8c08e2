package errors

import (
	"errors"
	"fmt"
)

// MCPClientError is the base interface for all client errors.
type MCPClientError interface {
	error
	IsMCPClientError() bool
}

// Compile-time verification that all error types implement MCPClientError.
var (
	_ MCPClientError = (*ClientError)(nil)
	_ MCPClientError = (*ConnectionError)(nil)
	_ MCPClientError = (*ProcessError)(nil)
	_ MCPClientError = (*JSONDecodeError)(nil)
)

// Kind classifies a ClientError.
type Kind int

const (
	// KindNotRunning means no child process is running.
	KindNotRunning Kind = iota + 1
	// KindWriteFailure means the child's stdin rejected a write.
	KindWriteFailure
	// KindTimeout means no response arrived within the request window.
	KindTimeout
	// KindRemoteError means the child answered with an error member.
	KindRemoteError
	// KindMalformedInput means a line from the child was not valid JSON.
	KindMalformedInput
	// KindConnectionClosed means the connection was stopped or the child exited
	// while the request was outstanding.
	KindConnectionClosed
	// KindCancelled means the caller's context was cancelled.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindNotRunning:
		return "not_running"
	case KindWriteFailure:
		return "write_failure"
	case KindTimeout:
		return "timeout"
	case KindRemoteError:
		return "remote_error"
	case KindMalformedInput:
		return "malformed_input"
	case KindConnectionClosed:
		return "connection_closed"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel errors, one per Kind. A *ClientError matches the sentinel of its
// Kind under errors.Is.
var (
	// ErrNotRunning indicates no MCP server process is running.
	ErrNotRunning = errors.New("MCP server is not running")

	// ErrWriteFailure indicates a write to the server's stdin failed.
	ErrWriteFailure = errors.New("failed to write to MCP server")

	// ErrTimeout indicates a request timed out.
	ErrTimeout = errors.New("request timeout")

	// ErrRemote indicates the server returned a JSON-RPC error.
	ErrRemote = errors.New("remote error")

	// ErrMalformedInput indicates the server wrote a line that is not JSON.
	ErrMalformedInput = errors.New("malformed input")

	// ErrConnectionClosed indicates the connection closed with the request outstanding.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrCancelled indicates the caller cancelled the request.
	ErrCancelled = errors.New("request cancelled")
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotRunning:
		return ErrNotRunning
	case KindWriteFailure:
		return ErrWriteFailure
	case KindTimeout:
		return ErrTimeout
	case KindRemoteError:
		return ErrRemote
	case KindMalformedInput:
		return ErrMalformedInput
	case KindConnectionClosed:
		return ErrConnectionClosed
	case KindCancelled:
		return ErrCancelled
	default:
		return nil
	}
}

// ClientError is the single error type returned by client operations.
//
// For KindRemoteError, Message is the remote-supplied message verbatim and
// Code is the JSON-RPC error code.
type ClientError struct {
	Kind    Kind
	Method  string
	Message string
	Code    int
	Err     error
}

func (e *ClientError) Error() string {
	msg := e.Message
	if msg == "" {
		if s := e.Kind.sentinel(); s != nil {
			msg = s.Error()
		} else {
			msg = "MCP client error"
		}
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's Kind.
func (e *ClientError) Is(target error) bool {
	s := e.Kind.sentinel()

	return s != nil && target == s
}

// IsMCPClientError implements MCPClientError.
func (e *ClientError) IsMCPClientError() bool { return true }

// NewClientError builds a ClientError of the given kind.
func NewClientError(kind Kind, method, message string, err error) *ClientError {
	return &ClientError{
		Kind:    kind,
		Method:  method,
		Message: message,
		Err:     err,
	}
}

// ConnectionError indicates failure to spawn or wire the server process.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to start MCP server: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsMCPClientError implements MCPClientError.
func (e *ConnectionError) IsMCPClientError() bool { return true }

// ProcessError indicates the server process exited unexpectedly.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("MCP server exited (exit %d): %v", e.ExitCode, e.Err)
	}

	return fmt.Sprintf("MCP server exited (exit %d): %s", e.ExitCode, e.Stderr)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// IsMCPClientError implements MCPClientError.
func (e *ProcessError) IsMCPClientError() bool { return true }

// JSONDecodeError indicates a line of server output was not a JSON-RPC message.
// This error preserves the original raw data that failed to parse.
type JSONDecodeError struct {
	RawData string
	Err     error
}

func (e *JSONDecodeError) Error() string {
	return fmt.Sprintf("failed to decode JSON from MCP server: %v", e.Err)
}

func (e *JSONDecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrMalformedInput.
func (e *JSONDecodeError) Is(target error) bool {
	return target == ErrMalformedInput
}

// IsMCPClientError implements MCPClientError.
func (e *JSONDecodeError) IsMCPClientError() bool { return true }
