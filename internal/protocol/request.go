package protocol

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wagiedev/mcp-stdio-go/internal/jsonrpc"
)

// MethodPing is the liveness request either side may send.
const MethodPing = "ping"

// MethodCancelled is the notification announcing an abandoned request.
const MethodCancelled = "notifications/cancelled"

// pendingRequest tracks an outgoing request awaiting response.
type pendingRequest struct {
	method   string
	response chan *jsonrpc.Message
	sent     time.Time
}

// CancelledParams is the payload of notifications/cancelled.
type CancelledParams struct {
	RequestID int64  `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

// RequestHandler handles a request the server sends to the client.
//
// The returned value is marshaled as the JSON-RPC result. Returning a
// *jsonrpc.Error sends that error; any other error is reported as an
// internal error.
type RequestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// pingHandler answers ping with an empty object.
func pingHandler(context.Context, json.RawMessage) (any, error) {
	return struct{}{}, nil
}
