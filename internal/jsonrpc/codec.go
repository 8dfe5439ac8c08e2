package jsonrpc

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"

	"github.com/wagiedev/mcp-stdio-go/internal/errors"
)

var nullJSON = json.RawMessage("null")

// errNotRPC is the decode error for JSON objects that are neither a request,
// a notification, nor a response.
var errNotRPC = stderrors.New("not a JSON-RPC message")

// outbound is the wire layout used for encoding.
type outbound struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// inbound is the wire layout used for decoding. Every member is kept raw so
// that presence and null can be told apart.
type inbound struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// Encode serializes msg as a single newline-terminated line.
func Encode(msg *Message) ([]byte, error) {
	out := outbound{JSONRPC: Version}

	switch msg.Kind {
	case KindRequest:
		out.ID = strconv.AppendInt(nil, msg.ID, 10)
		out.Method = msg.Method
		out.Params = msg.Params
	case KindNotification:
		out.Method = msg.Method
		out.Params = msg.Params
	case KindResult:
		out.ID = encodeResponseID(msg)
		out.Result = msg.Result

		if len(out.Result) == 0 {
			out.Result = nullJSON
		}
	case KindError:
		out.ID = encodeResponseID(msg)
		out.Error = msg.Error

		if out.Error == nil {
			out.Error = &Error{Code: CodeInternalError, Message: "Unknown error"}
		}
	default:
		return nil, fmt.Errorf("encode message: unknown kind %d", msg.Kind)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	return append(data, '\n'), nil
}

func encodeResponseID(msg *Message) json.RawMessage {
	if !msg.HasID {
		return nullJSON
	}

	return strconv.AppendInt(nil, msg.ID, 10)
}

// Decode parses one line of server output.
//
// Lines that are not JSON objects, or JSON objects that are not JSON-RPC
// messages, return a *errors.JSONDecodeError carrying the raw line. A missing
// "jsonrpc" member is tolerated.
func Decode(line []byte) (*Message, error) {
	line = bytes.TrimSpace(line)

	var in inbound
	if err := json.Unmarshal(line, &in); err != nil {
		return nil, &errors.JSONDecodeError{RawData: string(line), Err: err}
	}

	hasID := present(in.ID)
	hasError := present(in.Error)

	msg := &Message{Method: in.Method}

	if hasID {
		msg.ID = decodeID(in.ID)
		msg.HasID = true
	}

	switch {
	case in.Method != "" && hasID:
		msg.Kind = KindRequest
		msg.Params = in.Params
	case in.Method != "":
		msg.Kind = KindNotification
		msg.Params = in.Params
	case hasError:
		msg.Kind = KindError
		msg.Error = decodeError(in.Error)
	case hasID:
		msg.Kind = KindResult
		msg.Result = in.Result

		if len(msg.Result) == 0 {
			msg.Result = nullJSON
		}
	default:
		return nil, &errors.JSONDecodeError{RawData: string(line), Err: errNotRPC}
	}

	return msg, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, nullJSON)
}

// decodeID returns the integer value of an id. Numeric strings are accepted;
// any other id maps to 0, which is never issued, so such responses route as
// unknown.
func decodeID(raw json.RawMessage) int64 {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
			return int64(f)
		}

		return 0
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}

	return 0
}

func decodeError(raw json.RawMessage) *Error {
	var e Error
	if err := json.Unmarshal(raw, &e); err == nil {
		return &e
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &Error{Code: CodeInternalError, Message: s}
	}

	return &Error{Code: CodeInternalError, Message: string(raw)}
}
