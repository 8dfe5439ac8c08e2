package mcpstdio

import (
	"log/slog"
	"time"

	"github.com/wagiedev/mcp-stdio-go/internal/config"
)

// Options configures a Client.
type Options = config.Options

// Option configures Options using the functional options pattern.
type Option func(*Options)

// applyOptions applies functional options to a fresh Options.
func applyOptions(opts []Option) *Options {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	return options
}

// WithLogger sets the logger for debug output.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithCommand sets the server argv. The first element is resolved against
// PATH.
func WithCommand(command ...string) Option {
	return func(o *Options) {
		o.Command = command
	}
}

// WithCwd sets the working directory for the server process.
func WithCwd(cwd string) Option {
	return func(o *Options) {
		o.Cwd = cwd
	}
}

// WithEnv adds environment variables for the server process on top of the
// parent environment. Repeated calls merge.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string, len(env))
		}

		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithRequestTimeout bounds how long each request waits for its response.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.RequestTimeout = timeout
	}
}

// WithSettleDelay sets the pause between spawning the server and the
// handshake. A negative value disables the pause.
func WithSettleDelay(delay time.Duration) Option {
	return func(o *Options) {
		o.SettleDelay = delay
	}
}

// WithGracePeriod sets how long Stop waits after SIGTERM before killing.
func WithGracePeriod(grace time.Duration) Option {
	return func(o *Options) {
		o.GracePeriod = grace
	}
}

// WithStderr sets a callback that receives every line the server writes to
// stderr. Lines are logged either way.
func WithStderr(handler func(string)) Option {
	return func(o *Options) {
		o.Stderr = handler
	}
}

// WithClientInfo sets the clientInfo sent in initialize.
func WithClientInfo(name, version string) Option {
	return func(o *Options) {
		o.ClientName = name
		o.ClientVersion = version
	}
}

// WithProtocolVersion sets the protocol version sent in initialize.
func WithProtocolVersion(version string) Option {
	return func(o *Options) {
		o.ProtocolVersion = version
	}
}

// WithoutInitialize makes Start skip the handshake. Call Initialize
// explicitly when needed.
func WithoutInitialize() Option {
	return func(o *Options) {
		o.SkipInitialize = true
	}
}

// WithTransport replaces the subprocess transport. Command, Cwd, Env and
// Stderr are ignored.
func WithTransport(transport Transport) Option {
	return func(o *Options) {
		o.Transport = transport
	}
}
