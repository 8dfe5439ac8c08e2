// Package config provides configuration types for the MCP stdio client and the
// binaries built on it.
package config

import (
	"log/slog"
	"time"
)

const (
	// DefaultRequestTimeout bounds how long a request waits for its response.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultSettleDelay is the pause between spawning the server and the
	// initialize handshake.
	DefaultSettleDelay = 200 * time.Millisecond

	// DefaultGracePeriod is how long Stop waits after SIGTERM before killing.
	DefaultGracePeriod = 2 * time.Second

	// DefaultProtocolVersion is the MCP protocol version sent in initialize.
	DefaultProtocolVersion = "2024-11-05"

	// DefaultClientName is the clientInfo name sent in initialize.
	DefaultClientName = "mcp-stdio-go"

	// DefaultClientVersion is the clientInfo version sent in initialize.
	DefaultClientVersion = "1.0.0"
)

// Options configures an MCP stdio client.
type Options struct {
	// Logger is the slog logger for debug output.
	// If nil, logging is disabled (silent operation).
	Logger *slog.Logger

	// Command is the server argv. The first element is resolved against PATH.
	Command []string

	// Cwd sets the working directory for the server process.
	// Defaults to the current directory.
	Cwd string

	// Env provides additional environment variables for the server process.
	Env map[string]string

	// RequestTimeout bounds each request. Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// SettleDelay is the pause before the handshake. Zero means
	// DefaultSettleDelay; a negative value disables the pause.
	SettleDelay time.Duration

	// GracePeriod is the termination grace window. Zero means DefaultGracePeriod.
	GracePeriod time.Duration

	// Stderr, if set, receives every line the server writes to stderr.
	Stderr func(string)

	// ClientName and ClientVersion populate clientInfo in initialize.
	ClientName    string
	ClientVersion string

	// ProtocolVersion is sent in initialize. Empty means DefaultProtocolVersion.
	ProtocolVersion string

	// SkipInitialize disables the handshake in Start.
	SkipInitialize bool

	// Transport replaces the subprocess transport. Command, Cwd, Env and
	// Stderr are ignored when it is set.
	Transport Transport
}

// WithDefaults returns a copy of o with zero values replaced by defaults.
func (o *Options) WithDefaults() *Options {
	out := Options{}
	if o != nil {
		out = *o
	}

	if out.RequestTimeout <= 0 {
		out.RequestTimeout = DefaultRequestTimeout
	}

	if out.SettleDelay == 0 {
		out.SettleDelay = DefaultSettleDelay
	} else if out.SettleDelay < 0 {
		out.SettleDelay = 0
	}

	if out.GracePeriod <= 0 {
		out.GracePeriod = DefaultGracePeriod
	}

	if out.ClientName == "" {
		out.ClientName = DefaultClientName
	}

	if out.ClientVersion == "" {
		out.ClientVersion = DefaultClientVersion
	}

	if out.ProtocolVersion == "" {
		out.ProtocolVersion = DefaultProtocolVersion
	}

	return &out
}
