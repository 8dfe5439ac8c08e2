package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/mcp-stdio-go/internal/config"
	"github.com/wagiedev/mcp-stdio-go/internal/errors"
	"github.com/wagiedev/mcp-stdio-go/internal/protocol"
	"github.com/wagiedev/mcp-stdio-go/internal/subprocess"
)

const (
	// MethodInitialize opens the MCP session.
	MethodInitialize = "initialize"
	// MethodInitialized confirms the handshake.
	MethodInitialized = "notifications/initialized"
	// MethodToolsList lists the server's tools.
	MethodToolsList = "tools/list"
	// MethodToolsCall invokes a tool.
	MethodToolsCall = "tools/call"

	// maxToolPages bounds tools/list pagination against a server that never
	// stops returning cursors.
	maxToolPages = 100
)

// Client manages the connection to one MCP server.
type Client struct {
	log     *slog.Logger
	options *config.Options

	mu   sync.Mutex
	sess *session
}

// session is one live connection: a started transport and its controller.
type session struct {
	id         string
	log        *slog.Logger
	transport  config.Transport
	controller *protocol.Controller
	cancel     context.CancelFunc
	eg         *errgroup.Group

	infoMu     sync.RWMutex
	serverInfo *mcp.InitializeResult
}

// pidReporter is implemented by transports backed by a process.
type pidReporter interface {
	PID() int
}

// initializeParams is the initialize request payload. capabilities is always
// sent as an empty object.
type initializeParams struct {
	ProtocolVersion string              `json:"protocolVersion"`
	Capabilities    struct{}            `json:"capabilities"`
	ClientInfo      *mcp.Implementation `json:"clientInfo"`
}

type callToolParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

// New creates a client. No process is spawned until Start.
func New(options *config.Options) *Client {
	options = options.WithDefaults()

	log := options.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		log:     log.With("component", "client"),
		options: options,
	}
}

// Start spawns the MCP server and performs the initialize handshake.
//
// Start is a no-op while a server is running. If the previous server died on
// its own, its session is torn down and a new server is spawned. A failed
// handshake is logged and does not fail Start; the server stays running.
//
// Returns ConnectionError if the process cannot be spawned.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil {
		if c.sess.alive() {
			c.log.Debug("MCP server already running", "session", c.sess.id)

			return nil
		}

		c.log.Info("Previous MCP server is gone, restarting", "session", c.sess.id)

		if err := c.sess.close(); err != nil {
			c.log.Debug("Error tearing down stale session", "error", err)
		}

		c.sess = nil
	}

	id := ulid.Make().String()
	log := c.log.With("session", id)

	transport := c.options.Transport
	if transport == nil {
		transport = subprocess.NewProcess(log, c.options)
	} else {
		log.Debug("Using injected custom transport")
	}

	if err := transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	if p, ok := transport.(pidReporter); ok {
		log = log.With("pid", p.PID())
	}

	sessCtx, cancel := context.WithCancel(context.Background())

	controller := protocol.NewController(log, transport)
	if err := controller.Start(sessCtx); err != nil {
		cancel()
		_ = transport.Close()

		return fmt.Errorf("start protocol controller: %w", err)
	}

	eg, egCtx := errgroup.WithContext(sessCtx)

	s := &session{
		id:         id,
		log:        log,
		transport:  transport,
		controller: controller,
		cancel:     cancel,
		eg:         eg,
	}

	eg.Go(func() error {
		return s.watch(egCtx)
	})

	c.sess = s

	log.Info("MCP server started")

	if c.options.SettleDelay > 0 {
		select {
		case <-time.After(c.options.SettleDelay):
		case <-ctx.Done():
			c.sess = nil
			_ = s.close()

			return ctx.Err()
		}
	}

	if c.options.SkipInitialize {
		return nil
	}

	if err := c.initialize(ctx, s); err != nil {
		log.Warn("MCP initialize handshake failed, continuing", "error", err)
	}

	return nil
}

// watch logs an unexpected loss of the server.
func (s *session) watch(ctx context.Context) error {
	select {
	case <-s.controller.Done():
		if err := s.controller.FatalError(); err != nil {
			s.log.Error("MCP server connection lost", "error", err)
		}
	case <-ctx.Done():
	}

	return nil
}

func (s *session) alive() bool {
	select {
	case <-s.controller.Done():
		return false
	default:
		return s.transport.IsReady()
	}
}

// close stops the controller, terminates the server and waits for the
// session goroutines.
func (s *session) close() error {
	s.cancel()
	s.controller.Stop()

	closeErr := s.transport.Close()

	if err := s.eg.Wait(); err != nil && closeErr == nil {
		closeErr = err
	}

	s.log.Info("MCP server stopped")

	return closeErr
}

// Stop terminates the MCP server.
//
// Outstanding requests fail with ConnectionClosed. Stop is safe to call
// multiple times, concurrently with requests, and without a prior Start.
func (c *Client) Stop() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	return s.close()
}

// Running reports whether a live server is connected.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sess != nil && c.sess.alive()
}

// PID returns the server's process id, or 0 when no process is running.
func (c *Client) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return 0
	}

	if p, ok := c.sess.transport.(pidReporter); ok {
		return p.PID()
	}

	return 0
}

// SessionID returns the current session's identifier, or "" when stopped.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return ""
	}

	return c.sess.id
}

// live returns the running session or a NotRunning error.
func (c *Client) live(method string) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil || !c.sess.alive() {
		return nil, errors.NewClientError(errors.KindNotRunning, method, "", nil)
	}

	return c.sess, nil
}

// Initialize performs the MCP handshake: initialize, then
// notifications/initialized. Start calls it automatically.
func (c *Client) Initialize(ctx context.Context) error {
	s, err := c.live(MethodInitialize)
	if err != nil {
		return err
	}

	return c.initialize(ctx, s)
}

func (c *Client) initialize(ctx context.Context, s *session) error {
	params := &initializeParams{
		ProtocolVersion: c.options.ProtocolVersion,
		ClientInfo: &mcp.Implementation{
			Name:    c.options.ClientName,
			Version: c.options.ClientVersion,
		},
	}

	raw, err := s.controller.Request(ctx, MethodInitialize, params, c.options.RequestTimeout)
	if err != nil {
		return err
	}

	var result mcp.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return errors.NewClientError(errors.KindMalformedInput, MethodInitialize,
			"invalid initialize result", err)
	}

	s.infoMu.Lock()
	s.serverInfo = &result
	s.infoMu.Unlock()

	attrs := []any{"protocol_version", result.ProtocolVersion}
	if result.ServerInfo != nil {
		attrs = append(attrs, "server", result.ServerInfo.Name, "server_version", result.ServerInfo.Version)
	}

	s.log.Info("MCP session initialized", attrs...)

	return s.controller.Notify(ctx, MethodInitialized, nil)
}

// ServerInfo returns the server's initialize result, or nil if the handshake
// has not completed.
func (c *Client) ServerInfo() *mcp.InitializeResult {
	c.mu.Lock()
	s := c.sess
	c.mu.Unlock()

	if s == nil {
		return nil
	}

	s.infoMu.RLock()
	defer s.infoMu.RUnlock()

	return s.serverInfo
}

// Request sends a JSON-RPC request and returns the raw result.
//
// It fails fast with NotRunning when no server is running, WriteFailure when
// the frame cannot be written, Timeout when no response arrives within the
// request timeout or before ctx's deadline, Cancelled when ctx is cancelled,
// ConnectionClosed when the server goes away, and RemoteError when the server
// answers with an error.
func (c *Client) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s, err := c.live(method)
	if err != nil {
		return nil, err
	}

	return s.controller.Request(ctx, method, params, c.options.RequestTimeout)
}

// Notify sends a JSON-RPC notification.
func (c *Client) Notify(ctx context.Context, method string, params any) error {
	s, err := c.live(method)
	if err != nil {
		return err
	}

	return s.controller.Notify(ctx, method, params)
}

// CallTool invokes a tool through tools/call and unwraps the result.
//
// When the result carries content, the first element decides the value: the
// text of a text-bearing object, the compact JSON of any other object, or the
// element itself for scalars. Without content the decoded result is returned
// unchanged.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (any, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}

	raw, err := c.Request(ctx, MethodToolsCall, &callToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}

	value, err := UnwrapToolResult(raw)
	if err != nil {
		return nil, errors.NewClientError(errors.KindMalformedInput, MethodToolsCall,
			"invalid tools/call result", err)
	}

	return value, nil
}

// ListTools returns every tool the server offers, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	var (
		tools  []*mcp.Tool
		cursor string
	)

	for range maxToolPages {
		raw, err := c.Request(ctx, MethodToolsList, &mcp.ListToolsParams{Cursor: cursor})
		if err != nil {
			return nil, err
		}

		var page mcp.ListToolsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, errors.NewClientError(errors.KindMalformedInput, MethodToolsList,
				"invalid tools/list result", err)
		}

		tools = append(tools, page.Tools...)

		if page.NextCursor == "" {
			return tools, nil
		}

		cursor = page.NextCursor
	}

	return tools, fmt.Errorf("tools/list: more than %d pages", maxToolPages)
}

// UnwrapToolResult extracts the primary value of a tools/call result.
func UnwrapToolResult(raw json.RawMessage) (any, error) {
	var envelope struct {
		Content []json.RawMessage `json:"content"`
	}

	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Content) > 0 {
		return unwrapContent(envelope.Content[0])
	}

	var value any
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}

	return value, nil
}

func unwrapContent(first json.RawMessage) (any, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(first, &obj); err == nil && obj != nil {
		if text, ok := obj["text"]; ok {
			var value any
			if err := json.Unmarshal(text, &value); err != nil {
				return nil, err
			}

			return value, nil
		}

		return compactJSON(first)
	}

	var s string
	if err := json.Unmarshal(first, &s); err == nil {
		return s, nil
	}

	return compactJSON(first)
}

func compactJSON(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}

	return buf.String(), nil
}
