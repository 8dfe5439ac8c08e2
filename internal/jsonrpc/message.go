package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version tag carried by every message.
const Version = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Kind tags the variant a Message holds.
type Kind int

const (
	// KindRequest carries a method and an id and demands one response.
	KindRequest Kind = iota + 1
	// KindNotification carries a method and no id.
	KindNotification
	// KindResult is a successful response.
	KindResult
	// KindError is an error response.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResult:
		return "result"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// IsResponse reports whether the kind is one of the two response variants.
func (k Kind) IsResponse() bool {
	return k == KindResult || k == KindError
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error lets request handlers return an *Error to choose the response code.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Message is one decoded frame.
//
// ID is meaningful for KindRequest and the response kinds. HasID is false for
// notifications and for error responses that carry a null id. Params belongs to
// requests and notifications, Result to KindResult and Error to KindError.
type Message struct {
	Kind   Kind
	Method string
	ID     int64
	HasID  bool
	Params json.RawMessage
	Result json.RawMessage
	Error  *Error
}

// NewRequest builds a request frame. Params may be nil.
func NewRequest(id int64, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	return &Message{
		Kind:   KindRequest,
		Method: method,
		ID:     id,
		HasID:  true,
		Params: raw,
	}, nil
}

// NewNotification builds a notification frame. Params may be nil.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	return &Message{
		Kind:   KindNotification,
		Method: method,
		Params: raw,
	}, nil
}

// NewResult builds a successful response to the request with the given id.
func NewResult(id int64, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	return &Message{
		Kind:   KindResult,
		ID:     id,
		HasID:  true,
		Result: raw,
	}, nil
}

// NewError builds an error response to the request with the given id.
func NewError(id int64, code int, message string) *Message {
	return &Message{
		Kind:  KindError,
		ID:    id,
		HasID: true,
		Error: &Error{Code: code, Message: message},
	}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}

	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	return raw, nil
}
