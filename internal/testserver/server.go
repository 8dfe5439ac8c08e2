// Package testserver implements a scripted MCP server used by tests.
//
// Test binaries re-execute themselves as the server: TestMain calls
// RunIfRequested, which takes over the process when EnvVar is set.
package testserver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/wagiedev/mcp-stdio-go/internal/jsonrpc"
)

// EnvVar selects the server mode in a re-executed test binary.
const EnvVar = "MCP_STDIO_TEST_SERVER"

// Modes understood by the server.
const (
	// ModeDefault answers requests only.
	ModeDefault = "default"
	// ModeNoisy also emits garbage, notifications and stray responses.
	ModeNoisy = "noisy"
	// ModeCrash writes to stderr and exits with status 3 immediately.
	ModeCrash = "crash"
	// ModeStubborn ignores SIGTERM and stdin EOF.
	ModeStubborn = "stubborn"
	// ModeNoInit never answers initialize.
	ModeNoInit = "noinit"
)

// ServerRequestID is the id the server uses for requests it sends.
const ServerRequestID = 7001

// Command returns the argv that re-executes the current test binary.
func Command() []string {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}

	return []string{exe, "-test.run=^$"}
}

// Env returns the environment selecting mode.
func Env(mode string) map[string]string {
	return map[string]string{EnvVar: mode}
}

// RunIfRequested runs the server and exits when EnvVar is set.
func RunIfRequested() {
	mode := os.Getenv(EnvVar)
	if mode == "" {
		return
	}

	os.Exit(Run(mode, os.Stdin, os.Stdout, os.Stderr))
}

// Run serves mode over the given streams and returns the exit status.
func Run(mode string, in io.Reader, out, errOut io.Writer) int {
	s := &server{mode: mode, out: out, errOut: errOut, waiting: map[int64]int64{}}

	switch mode {
	case ModeCrash:
		fmt.Fprintln(errOut, "fatal: boom")

		return 3
	case ModeStubborn:
		signal.Ignore(syscall.SIGTERM)
	case ModeNoisy:
		fmt.Fprintln(errOut, "fake server starting")
		fmt.Fprintln(errOut, "[fake] already prefixed")
		s.writeRaw("this is not json")
		s.writeRaw("")
		s.writeRaw(`{"jsonrpc":"2.0","id":424242,"result":{"stray":true}}`)
		s.writeRaw(`{"jsonrpc":"2.0","method":"notifications/message","params":{"level":"info"}}`)
	}

	reader := bufio.NewReader(in)

	for {
		line, err := reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			if code, exit := s.handle(line); exit {
				s.wg.Wait()

				return code
			}
		}

		if err != nil {
			break
		}
	}

	s.wg.Wait()

	if mode == ModeStubborn {
		time.Sleep(time.Hour)
	}

	return 0
}

type server struct {
	mode   string
	out    io.Writer
	errOut io.Writer
	mu     sync.Mutex
	wg     sync.WaitGroup

	// waiting maps a server-issued request id to the client request
	// that triggered it.
	waiting map[int64]int64
}

func (s *server) writeRaw(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(s.out, line)
}

func (s *server) send(msg *jsonrpc.Message) {
	data, err := jsonrpc.Encode(msg)
	if err != nil {
		fmt.Fprintln(s.errOut, "encode:", err)

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.out.Write(data)
}

func (s *server) result(id int64, v any) {
	msg, err := jsonrpc.NewResult(id, v)
	if err != nil {
		s.send(jsonrpc.NewError(id, jsonrpc.CodeInternalError, err.Error()))

		return
	}

	s.send(msg)
}

func (s *server) handle(line []byte) (int, bool) {
	msg, err := jsonrpc.Decode(line)
	if err != nil {
		fmt.Fprintln(s.errOut, "bad frame:", string(line))

		return 0, false
	}

	switch msg.Kind {
	case jsonrpc.KindNotification:
		return 0, false
	case jsonrpc.KindResult, jsonrpc.KindError:
		s.answerWaiting(msg)

		return 0, false
	}

	switch msg.Method {
	case "initialize":
		if s.mode == ModeNoInit {
			return 0, false
		}

		s.result(msg.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "fake", "version": "0.0.1"},
		})
	case "ping":
		s.result(msg.ID, "pong")
	case "boom":
		s.writeRaw(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"message":"bad thing"}}`, msg.ID))
	case "echo":
		s.result(msg.ID, map[string]any{"params": msg.Params})
	case "slow":
		var p struct {
			Ms  int `json:"ms"`
			Tag any `json:"tag"`
		}

		_ = json.Unmarshal(msg.Params, &p)

		s.wg.Go(func() {
			time.Sleep(time.Duration(p.Ms) * time.Millisecond)
			s.result(msg.ID, map[string]any{"tag": p.Tag})
		})
	case "never":
	case "error":
		s.send(jsonrpc.NewError(msg.ID, jsonrpc.CodeInvalidParams, "bad params"))
	case "error-empty":
		s.send(jsonrpc.NewError(msg.ID, -32000, ""))
	case "exit":
		fmt.Fprintln(s.errOut, "exiting on request")

		return 4, true
	case "ask-ping", "ask-unknown":
		method := "ping"
		if msg.Method == "ask-unknown" {
			method = "sampling/createMessage"
		}

		s.mu.Lock()
		s.waiting[ServerRequestID] = msg.ID
		s.mu.Unlock()

		req, _ := jsonrpc.NewRequest(ServerRequestID, method, nil)
		s.send(req)
	case "tools/list":
		s.listTools(msg)
	case "tools/call":
		s.callTool(msg)
	default:
		s.send(jsonrpc.NewError(msg.ID, jsonrpc.CodeMethodNotFound, "Method not found: "+msg.Method))
	}

	return 0, false
}

func (s *server) answerWaiting(msg *jsonrpc.Message) {
	s.mu.Lock()
	callerID, ok := s.waiting[msg.ID]
	delete(s.waiting, msg.ID)
	s.mu.Unlock()

	if !ok {
		return
	}

	if msg.Kind == jsonrpc.KindError {
		s.result(callerID, map[string]any{"error_code": msg.Error.Code})

		return
	}

	s.result(callerID, map[string]any{"pong": msg.Result})
}

func (s *server) listTools(msg *jsonrpc.Message) {
	var p struct {
		Cursor string `json:"cursor"`
	}

	_ = json.Unmarshal(msg.Params, &p)

	schema := map[string]any{"type": "object"}

	if p.Cursor == "" {
		s.result(msg.ID, map[string]any{
			"tools": []any{
				map[string]any{"name": "echo", "description": "Echo text", "inputSchema": schema},
			},
			"nextCursor": "page-2",
		})

		return
	}

	s.result(msg.ID, map[string]any{
		"tools": []any{
			map[string]any{"name": "add", "description": "Add numbers", "inputSchema": schema},
		},
	})
}

func (s *server) callTool(msg *jsonrpc.Message) {
	var p struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}

	_ = json.Unmarshal(msg.Params, &p)

	switch p.Name {
	case "echo":
		text, ok := p.Arguments["text"]
		if !ok {
			text = "ok"
		}

		s.result(msg.ID, map[string]any{
			"content": []any{map[string]any{"text": text}},
		})
	case "image":
		s.result(msg.ID, map[string]any{
			"content": []any{map[string]any{"type": "image", "data": "AAAA"}},
		})
	case "bare":
		s.result(msg.ID, map[string]any{"content": []any{"plain"}})
	case "raw":
		s.result(msg.ID, map[string]any{"value": 42})
	default:
		s.send(jsonrpc.NewError(msg.ID, -32000, "Unknown tool: "+p.Name))
	}
}
