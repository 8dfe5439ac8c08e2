package protocol

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wagiedev/mcp-stdio-go/internal/errors"
	"github.com/wagiedev/mcp-stdio-go/internal/jsonrpc"
)

// cancelNotifyTimeout bounds the best-effort notifications/cancelled write.
const cancelNotifyTimeout = time.Second

// Transport defines the minimal interface needed for protocol operations.
//
// This interface is satisfied by subprocess.Process but allows for testing
// with mock transports.
type Transport interface {
	ReadMessages(ctx context.Context) (<-chan *jsonrpc.Message, <-chan error)
	SendMessage(ctx context.Context, data []byte) error
}

// Controller correlates JSON-RPC requests with their responses.
//
// The Controller handles:
//   - Sending requests with unique integer ids
//   - Routing responses to the waiting caller, at most once
//   - Request timeout enforcement
//   - Answering requests sent by the server (ping, registered handlers)
//   - Failing every waiter once the transport closes or Stop is called
//
// The Controller must be started with Start() before use and manages its own
// goroutine for reading and routing messages.
type Controller struct {
	log       *slog.Logger
	transport Transport

	nextID atomic.Int64

	// Correlation table
	pendingMu sync.Mutex
	pending   map[int64]*pendingRequest

	// Server requests being handled, keyed by the server's request id
	inFlightMu sync.Mutex
	inFlight   map[int64]context.CancelFunc

	// Handler registry for incoming requests
	handlersMu sync.RWMutex
	handlers   map[string]RequestHandler

	// Fatal error handling - stores error and broadcasts via done channel
	errMu    sync.RWMutex
	fatalErr error

	// Lifecycle management
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewController creates a new protocol controller.
//
// The logger will receive debug, info, warn, and error messages during
// protocol operations. The transport must be connected before calling Start().
func NewController(log *slog.Logger, transport Transport) *Controller {
	c := &Controller{
		log:       log.With("component", "protocol"),
		transport: transport,
		pending:   make(map[int64]*pendingRequest, 10),
		inFlight:  make(map[int64]context.CancelFunc, 4),
		handlers:  make(map[string]RequestHandler, 4),
		done:      make(chan struct{}),
	}

	c.handlers[MethodPing] = pingHandler

	return c
}

// closeDone safely closes the done channel exactly once.
func (c *Controller) closeDone() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// SetFatalError stores a fatal error and broadcasts to all waiters by closing done.
func (c *Controller) SetFatalError(err error) {
	c.errMu.Lock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}

	c.errMu.Unlock()

	c.closeDone()
}

// FatalError returns the fatal error if one occurred.
func (c *Controller) FatalError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.fatalErr
}

// Done returns a channel that is closed when the controller stops.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Start begins reading messages from the transport and routing them.
//
// The routing goroutine stops when the transport closes its message channel,
// when Stop is called, or when ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	c.log.Debug("Starting protocol controller")

	messages, errs := c.transport.ReadMessages(ctx)

	c.wg.Add(1)

	go c.readLoop(ctx, messages, errs)

	c.log.Debug("Protocol controller started")

	return nil
}

// Stop shuts down the controller.
//
// Every outstanding request fails with ConnectionClosed, in-flight server
// requests are cancelled, and Stop waits for the routing goroutine. It's safe
// to call Stop multiple times.
func (c *Controller) Stop() {
	c.log.Debug("Stopping protocol controller")

	c.closeDone()
	c.cancelAllInFlight()
	c.wg.Wait()

	c.log.Debug("Protocol controller stopped")
}

// RegisterHandler registers a handler for requests the server sends.
//
// Registering a handler for the same method twice overrides the previous one.
// ping is answered by default.
func (c *Controller) RegisterHandler(method string, handler RequestHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.log.Debug("Registering request handler", "method", method)
	c.handlers[method] = handler
}

// PendingCount returns the number of requests awaiting a response.
func (c *Controller) PendingCount() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	return len(c.pending)
}

// Request sends a request and waits for its response.
//
// The wait ends on the matching response, after timeout (if positive), when
// ctx ends, or when the controller stops. A JSON-RPC error response is
// returned as a RemoteError carrying the server's code and message.
func (c *Controller) Request(
	ctx context.Context,
	method string,
	params any,
	timeout time.Duration,
) (json.RawMessage, error) {
	select {
	case <-c.done:
		return nil, c.closedError(method)
	default:
	}

	id := c.nextID.Add(1)

	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}

	data, err := jsonrpc.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", method, err)
	}

	responseChan := make(chan *jsonrpc.Message, 1)

	c.pendingMu.Lock()
	c.pending[id] = &pendingRequest{
		method:   method,
		response: responseChan,
		sent:     time.Now(),
	}
	c.pendingMu.Unlock()

	c.log.Debug("Sending request", "id", id, "method", method)

	if err := c.transport.SendMessage(ctx, data); err != nil {
		c.unregister(id)
		c.log.Debug("Failed to send request", "id", id, "method", method, "error", err)

		return nil, c.sendError(ctx, method, err)
	}

	var timeoutC <-chan time.Time

	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		timeoutC = timer.C
	}

	select {
	case resp := <-responseChan:
		return c.complete(id, method, resp)

	case <-c.done:
		c.unregister(id)

		// A response routed just before shutdown still wins.
		select {
		case resp := <-responseChan:
			return c.complete(id, method, resp)
		default:
		}

		c.log.Debug("Controller stopped during request", "id", id, "method", method)

		return nil, c.closedError(method)

	case <-timeoutC:
		c.unregister(id)
		c.log.Warn("Request timed out", "id", id, "method", method, "timeout", timeout)

		return nil, errors.NewClientError(errors.KindTimeout, method,
			"Timeout waiting for response to "+method, nil)

	case <-ctx.Done():
		c.unregister(id)
		c.notifyCancelled(ctx, id, ctx.Err())

		return nil, contextError(ctx, method)
	}
}

// complete turns a routed response into the caller's result.
func (c *Controller) complete(id int64, method string, resp *jsonrpc.Message) (json.RawMessage, error) {
	if resp.Kind == jsonrpc.KindError {
		msg := resp.Error.Message
		if msg == "" {
			msg = "Unknown error"
		}

		c.log.Debug("Request returned error", "id", id, "method", method, "code", resp.Error.Code, "error", msg)

		ce := errors.NewClientError(errors.KindRemoteError, method, msg, nil)
		ce.Code = resp.Error.Code

		return nil, ce
	}

	c.log.Debug("Received response", "id", id, "method", method)

	return resp.Result, nil
}

// Notify sends a notification. Notifications have no response.
func (c *Controller) Notify(ctx context.Context, method string, params any) error {
	select {
	case <-c.done:
		return c.closedError(method)
	default:
	}

	msg, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("build %s notification: %w", method, err)
	}

	data, err := jsonrpc.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s notification: %w", method, err)
	}

	c.log.Debug("Sending notification", "method", method)

	if err := c.transport.SendMessage(ctx, data); err != nil {
		return c.sendError(ctx, method, err)
	}

	return nil
}

func (c *Controller) unregister(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// claim removes and returns the pending request for id.
func (c *Controller) claim(id int64) (*pendingRequest, bool) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	pending, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}

	return pending, ok
}

func (c *Controller) closedError(method string) error {
	return errors.NewClientError(errors.KindConnectionClosed, method, "", c.FatalError())
}

// sendError maps a transport write failure onto the client error kinds.
func (c *Controller) sendError(ctx context.Context, method string, err error) error {
	if ctx.Err() != nil && (stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)) {
		return contextError(ctx, method)
	}

	if ce, ok := stderrors.AsType[*errors.ClientError](err); ok {
		if ce.Method == "" {
			ce.Method = method
		}

		return ce
	}

	return errors.NewClientError(errors.KindWriteFailure, method, "", err)
}

// contextError reports why ctx ended: a passed deadline is a timeout, anything
// else a cancellation.
func contextError(ctx context.Context, method string) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewClientError(errors.KindTimeout, method, "", ctx.Err())
	}

	return errors.NewClientError(errors.KindCancelled, method, "", ctx.Err())
}

// notifyCancelled tells the server the caller gave up on id. Best effort; it
// is not tracked by wg because Stop may already be waiting.
func (c *Controller) notifyCancelled(ctx context.Context, id int64, cause error) {
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelNotifyTimeout)
		defer cancel()

		params := CancelledParams{RequestID: id, Reason: cause.Error()}
		if err := c.Notify(sendCtx, MethodCancelled, params); err != nil {
			c.log.Debug("Could not send cancellation", "id", id, "error", err)
		}
	}()
}

// readLoop reads messages from the transport and routes them.
func (c *Controller) readLoop(
	ctx context.Context,
	messages <-chan *jsonrpc.Message,
	errs <-chan error,
) {
	defer c.wg.Done()
	defer c.log.Debug("Protocol read loop stopped")

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				c.log.Debug("Message channel closed")
				c.transportClosed(errs)

				return
			}

			c.handleMessage(ctx, msg)

		case <-c.done:
			c.log.Debug("Protocol controller stop signal received")

			return

		case <-ctx.Done():
			c.log.Debug("Context cancelled in protocol read loop")
			c.closeDone()

			return
		}
	}
}

// transportClosed records the transport's terminal error, if any, and fails
// every waiter.
func (c *Controller) transportClosed(errs <-chan error) {
	for err := range errs {
		if err != nil {
			c.log.Warn("MCP server connection lost", "error", err)
			c.SetFatalError(err)

			return
		}
	}

	c.log.Info("MCP server closed its output")
	c.closeDone()
}

// handleMessage routes a message based on its kind.
func (c *Controller) handleMessage(ctx context.Context, msg *jsonrpc.Message) {
	switch msg.Kind {
	case jsonrpc.KindResult, jsonrpc.KindError:
		c.handleResponse(msg)

	case jsonrpc.KindRequest:
		c.handleRequest(ctx, msg)

	case jsonrpc.KindNotification:
		c.handleNotification(msg)
	}
}

// handleResponse routes a response to the waiting request.
func (c *Controller) handleResponse(msg *jsonrpc.Message) {
	if !msg.HasID {
		c.log.Warn("Received error response without id",
			"code", msg.Error.Code, "error", msg.Error.Message)

		return
	}

	pending, ok := c.claim(msg.ID)
	if !ok {
		c.log.Warn("Received response for unknown id", "id", msg.ID)

		return
	}

	c.log.Debug("Routing response", "id", msg.ID, "method", pending.method,
		"elapsed", time.Since(pending.sent))

	// We own the entry now; the channel is buffered so this never blocks.
	pending.response <- msg
}

func (c *Controller) handleNotification(msg *jsonrpc.Message) {
	if msg.Method == MethodCancelled {
		var params CancelledParams
		if err := json.Unmarshal(msg.Params, &params); err == nil {
			c.cancelInFlight(params.RequestID, params.Reason)
		}

		return
	}

	c.log.Debug("Ignoring notification from MCP server", "method", msg.Method)
}

// handleRequest answers a request sent by the server.
func (c *Controller) handleRequest(ctx context.Context, msg *jsonrpc.Message) {
	c.log.Debug("Received request from MCP server", "id", msg.ID, "method", msg.Method)

	c.handlersMu.RLock()
	handler, exists := c.handlers[msg.Method]
	c.handlersMu.RUnlock()

	if !exists {
		c.log.Debug("No handler for server request", "method", msg.Method)
		c.sendResponse(ctx, jsonrpc.NewError(msg.ID, jsonrpc.CodeMethodNotFound, "Method not found"))

		return
	}

	opCtx, cancel := context.WithCancel(ctx)

	c.inFlightMu.Lock()
	c.inFlight[msg.ID] = cancel
	c.inFlightMu.Unlock()

	c.wg.Go(func() {
		defer func() {
			c.inFlightMu.Lock()
			delete(c.inFlight, msg.ID)
			c.inFlightMu.Unlock()

			cancel()
		}()

		result, err := handler(opCtx, msg.Params)

		if opCtx.Err() != nil {
			c.log.Debug("Server request cancelled, not responding", "id", msg.ID, "method", msg.Method)

			return
		}

		if err != nil {
			c.log.Warn("Request handler returned error", "id", msg.ID, "method", msg.Method, "error", err)

			if rpcErr, ok := stderrors.AsType[*jsonrpc.Error](err); ok {
				c.sendResponse(ctx, jsonrpc.NewError(msg.ID, rpcErr.Code, rpcErr.Message))

				return
			}

			c.sendResponse(ctx, jsonrpc.NewError(msg.ID, jsonrpc.CodeInternalError, err.Error()))

			return
		}

		resp, err := jsonrpc.NewResult(msg.ID, result)
		if err != nil {
			c.sendResponse(ctx, jsonrpc.NewError(msg.ID, jsonrpc.CodeInternalError, err.Error()))

			return
		}

		c.sendResponse(ctx, resp)
	})
}

func (c *Controller) sendResponse(ctx context.Context, msg *jsonrpc.Message) {
	data, err := jsonrpc.Encode(msg)
	if err != nil {
		c.log.Error("Failed to encode response", "id", msg.ID, "error", err)

		return
	}

	if err := c.transport.SendMessage(ctx, data); err != nil {
		// Expected while shutting down.
		if ctx.Err() != nil {
			c.log.Debug("Could not send response during shutdown", "error", err)

			return
		}

		c.log.Error("Failed to send response", "id", msg.ID, "error", err)
	}
}

func (c *Controller) cancelInFlight(id int64, reason string) {
	c.inFlightMu.Lock()
	cancel, ok := c.inFlight[id]
	c.inFlightMu.Unlock()

	if !ok {
		c.log.Debug("Cancellation for unknown server request", "id", id)

		return
	}

	c.log.Debug("Cancelling server request", "id", id, "reason", reason)
	cancel()
}

func (c *Controller) cancelAllInFlight() {
	c.inFlightMu.Lock()
	defer c.inFlightMu.Unlock()

	for _, cancel := range c.inFlight {
		cancel()
	}
}
