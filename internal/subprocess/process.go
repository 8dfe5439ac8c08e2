package subprocess

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/wagiedev/mcp-stdio-go/internal/config"
	"github.com/wagiedev/mcp-stdio-go/internal/errors"
	"github.com/wagiedev/mcp-stdio-go/internal/jsonrpc"
)

const (
	// maxStderrTail is how much trailing stderr is kept for ProcessError.
	// Stderr reading continues indefinitely (the callback receives all lines).
	maxStderrTail = 64 * 1024

	// reapTimeout bounds the wait for the reader after a forced kill.
	reapTimeout = time.Second

	// writeAbandonTimeout bounds the wait for a write goroutine after stdin
	// has been closed to unblock it.
	writeAbandonTimeout = time.Second

	serverLogPrefix       = "[MCP server] "
	serverOutputLogPrefix = "[MCP server output] "
)

// Process implements config.Transport by spawning the MCP server as a child
// process and exchanging newline-delimited JSON-RPC frames over its pipes.
type Process struct {
	log            *slog.Logger
	options        *config.Options
	cmd            *exec.Cmd
	stdin          io.WriteCloser
	stdout         io.ReadCloser
	stderr         io.ReadCloser
	stderrCallback func(string)

	mu          sync.Mutex // Protects stdin writes and the flags below
	closing     bool       // Close() has been called (intentional shutdown)
	stdinClosed bool       // stdin was closed (EndInput, cancellation or Close)

	messages chan *jsonrpc.Message
	errs     chan error

	// discard is closed once nobody consumes messages any more; the stdout
	// reader keeps draining so the child never blocks on a full pipe.
	discard     chan struct{}
	discardOnce sync.Once

	// exited is closed after cmd.Wait returns.
	exited chan struct{}

	// shutdown is closed when Close begins; it aborts blocked writes.
	shutdown chan struct{}

	stderrWg   sync.WaitGroup
	stderrMu   sync.Mutex
	stderrTail []byte

	closeOnce sync.Once
	closeErr  error
}

// Compile-time verification that Process implements the Transport interface.
var _ config.Transport = (*Process)(nil)

// NewProcess creates a transport for the server described by options.Command.
//
// Nothing is spawned until Start is called.
func NewProcess(log *slog.Logger, options *config.Options) *Process {
	return &Process{
		log:            log.With("component", "subprocess"),
		options:        options,
		stderrCallback: options.Stderr,
		shutdown:       make(chan struct{}),
	}
}

// Start spawns the server process.
//
// The first element of Command is resolved against PATH, the process runs in
// Cwd (default: the current directory) with the parent environment plus Env.
// The child is not tied to ctx: it lives until Close.
//
// Returns ConnectionError if the process cannot be spawned.
func (p *Process) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(p.options.Command) == 0 {
		return &errors.ConnectionError{Err: fmt.Errorf("no server command configured")}
	}

	p.log.Info("Starting MCP server subprocess", "command", p.options.Command)

	path, err := exec.LookPath(p.options.Command[0])
	if err != nil {
		p.log.Error("MCP server executable not found", "command", p.options.Command[0], "error", err)

		return &errors.ConnectionError{Err: fmt.Errorf("resolve %q: %w", p.options.Command[0], err)}
	}

	cwd := p.options.Cwd
	if cwd == "" {
		cwd, err = os.Getwd()
		if err != nil {
			return &errors.ConnectionError{Err: fmt.Errorf("get working directory: %w", err)}
		}
	}

	p.log.Debug("Set working directory", "cwd", cwd)

	//nolint:gosec // G204: launching a configured server command is the point of this transport
	cmd := exec.Command(path, p.options.Command[1:]...)
	cmd.Dir = cwd
	cmd.Env = buildEnvironment(p.options.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &errors.ConnectionError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &errors.ConnectionError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &errors.ConnectionError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		p.log.Error("Failed to start MCP server process", "error", err)

		return &errors.ConnectionError{Err: fmt.Errorf("start process: %w", err)}
	}

	p.mu.Lock()
	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdout
	p.stderr = stderr
	p.messages = make(chan *jsonrpc.Message)
	p.errs = make(chan error, 1)
	p.discard = make(chan struct{})
	p.exited = make(chan struct{})
	p.mu.Unlock()

	// Both pipes must be fully read before cmd.Wait.
	// See: https://pkg.go.dev/os/exec#Cmd.StdoutPipe
	p.stderrWg.Go(p.readStderr)

	go p.readStdout()

	p.log.Info("MCP server subprocess started", "pid", cmd.Process.Pid)

	return nil
}

// buildEnvironment returns the parent environment with extra applied on top.
func buildEnvironment(extra map[string]string) []string {
	env := os.Environ()

	for _, key := range slices.Sorted(maps.Keys(extra)) {
		env = append(env, key+"="+extra[key])
	}

	return env
}

// ReadMessages returns the decoded frames read from the server's stdout and a
// channel carrying the terminal error, if any.
//
// Malformed lines are logged as server output and skipped. When ctx ends,
// frames are discarded instead of delivered, but stdout is still drained
// until EOF so the child can always be reaped. Both channels are closed once
// the process has exited.
func (p *Process) ReadMessages(
	ctx context.Context,
) (<-chan *jsonrpc.Message, <-chan error) {
	p.mu.Lock()
	messages, errs := p.messages, p.errs
	p.mu.Unlock()

	if messages == nil {
		closedMessages := make(chan *jsonrpc.Message)
		closedErrs := make(chan error, 1)

		closedErrs <- errors.NewClientError(errors.KindNotRunning, "", "", nil)

		close(closedMessages)
		close(closedErrs)

		return closedMessages, closedErrs
	}

	context.AfterFunc(ctx, p.stopDelivery)

	return messages, errs
}

func (p *Process) stopDelivery() {
	p.discardOnce.Do(func() { close(p.discard) })
}

func (p *Process) readStdout() {
	defer close(p.exited)
	defer close(p.messages)
	defer close(p.errs)
	defer p.log.Debug("stdout reader stopped")

	reader := bufio.NewReader(p.stdout)
	messageCount := 0

	for {
		line, readErr := reader.ReadBytes('\n')

		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			if msg, ok := p.decodeLine(trimmed); ok {
				messageCount++
				p.log.Debug("Received message from MCP server",
					"kind", msg.Kind.String(), "message_count", messageCount)

				select {
				case p.messages <- msg:
				case <-p.discard:
					p.log.Debug("Discarding message after reader shutdown", "kind", msg.Kind.String())
				}
			}
		}

		if readErr != nil {
			if !stderrors.Is(readErr, io.EOF) && !stderrors.Is(readErr, os.ErrClosed) {
				p.log.Debug("stdout read ended", "error", readErr)
			}

			break
		}
	}

	p.stderrWg.Wait()

	p.log.Debug("Waiting for MCP server process to exit")

	err := p.cmd.Wait()

	p.mu.Lock()
	isClosing := p.closing
	p.mu.Unlock()

	switch {
	case isClosing:
		p.log.Debug("MCP server process terminated during shutdown")
	case err != nil:
		exitCode := -1
		if exitErr, ok := stderrors.AsType[*exec.ExitError](err); ok {
			exitCode = exitErr.ExitCode()
		}

		tail := p.stderrSnapshot()

		p.log.Error("MCP server process exited with error", "exit_code", exitCode, "stderr", tail)

		p.errs <- &errors.ProcessError{
			ExitCode: exitCode,
			Stderr:   tail,
			Err:      err,
		}
	default:
		p.log.Info("MCP server process exited")
	}
}

// decodeLine decodes one stdout line. Lines that are not JSON-RPC are logged
// as server output.
func (p *Process) decodeLine(line []byte) (*jsonrpc.Message, bool) {
	msg, err := jsonrpc.Decode(line)
	if err == nil {
		return msg, true
	}

	text := string(line)
	p.log.Debug("Failed to decode line from MCP server", "error", err)

	if strings.HasPrefix(text, "[") {
		p.log.Info(text)
	} else {
		p.log.Info(serverOutputLogPrefix + text)
	}

	return nil, false
}

func (p *Process) readStderr() {
	reader := bufio.NewReader(p.stderr)

	for {
		raw, err := reader.ReadString('\n')

		if line := strings.TrimRight(raw, "\r\n"); line != "" {
			p.appendStderr(line)

			if strings.HasPrefix(line, "[") {
				p.log.Info(line)
			} else {
				p.log.Info(serverLogPrefix + line)
			}

			if p.stderrCallback != nil {
				p.stderrCallback(line)
			}
		}

		if err != nil {
			if !stderrors.Is(err, io.EOF) && !stderrors.Is(err, os.ErrClosed) {
				p.log.Debug("stderr read ended", "error", err)
			}

			return
		}
	}
}

func (p *Process) appendStderr(line string) {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()

	if len(p.stderrTail) > 0 {
		p.stderrTail = append(p.stderrTail, '\n')
	}

	p.stderrTail = append(p.stderrTail, line...)

	if over := len(p.stderrTail) - maxStderrTail; over > 0 {
		p.stderrTail = slices.Clone(p.stderrTail[over:])
	}
}

func (p *Process) stderrSnapshot() string {
	p.stderrMu.Lock()
	defer p.stderrMu.Unlock()

	return strings.TrimSpace(string(p.stderrTail))
}

// SendMessage writes one frame to the server's stdin.
//
// This method is safe for concurrent use; writes are serialized so frames
// never interleave. If ctx ends during a blocked write, stdin is closed to
// unblock it and later calls fail with NotRunning.
func (p *Process) SendMessage(ctx context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdin == nil || p.stdinClosed {
		return errors.NewClientError(errors.KindNotRunning, "", "", nil)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Copy rather than append so the caller's backing array is never touched.
	if len(data) == 0 || data[len(data)-1] != '\n' {
		framed := make([]byte, len(data)+1)
		copy(framed, data)
		framed[len(data)] = '\n'
		data = framed
	}

	done := make(chan error, 1)

	go func() {
		_, err := p.stdin.Write(data)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			p.log.Error("Failed to write message to MCP server", "error", err)

			return errors.NewClientError(errors.KindWriteFailure, "", "", err)
		}

		p.log.Debug("Message sent", "bytes", len(data))

		return nil

	case <-ctx.Done():
		p.log.Debug("Context cancelled during write, closing stdin")
		p.abandonWrite(done)

		return ctx.Err()

	case <-p.shutdown:
		p.log.Debug("Transport closing during write, closing stdin")
		p.abandonWrite(done)

		return errors.NewClientError(errors.KindNotRunning, "", "", nil)
	}
}

// abandonWrite closes stdin to unblock a pending write. Must hold p.mu.
func (p *Process) abandonWrite(done <-chan error) {
	_ = p.stdin.Close()
	p.stdinClosed = true

	select {
	case <-done:
	case <-time.After(writeAbandonTimeout):
		p.log.Warn("Write goroutine did not exit after stdin close")
	}
}

// IsReady reports whether the process is running and stdin is open.
func (p *Process) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.stdin == nil || p.stdinClosed || p.closing {
		return false
	}

	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// PID returns the server's process id, or 0 before Start.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}

	return p.cmd.Process.Pid
}

// Exited returns a channel closed once the process has been reaped.
// It returns nil before Start.
func (p *Process) Exited() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exited
}

// EndInput closes the server's stdin.
func (p *Process) EndInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closeStdinLocked()
}

func (p *Process) closeStdinLocked() error {
	if p.stdin == nil || p.stdinClosed {
		return nil
	}

	p.log.Debug("Closing stdin pipe")

	p.stdinClosed = true

	return p.stdin.Close()
}

// Close terminates the server process.
//
// Stdin is closed and SIGTERM sent; if the process has not exited within the
// grace period it is killed. Close waits for the process to be reaped and is
// safe to call multiple times or before Start.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.terminate()
	})

	return p.closeErr
}

func (p *Process) terminate() error {
	// Closed without p.mu, which a blocked SendMessage may be holding.
	if p.shutdown != nil {
		close(p.shutdown)
	}

	p.mu.Lock()

	p.closing = true

	if p.cmd == nil || p.cmd.Process == nil {
		p.mu.Unlock()

		return nil
	}

	_ = p.closeStdinLocked()

	proc := p.cmd.Process
	exited := p.exited
	p.mu.Unlock()

	p.stopDelivery()

	grace := p.options.GracePeriod
	if grace <= 0 {
		grace = config.DefaultGracePeriod
	}

	select {
	case <-exited:
		p.log.Debug("MCP server exited after stdin close", "pid", proc.Pid)

		return nil
	default:
	}

	p.log.Debug("Terminating MCP server", "pid", proc.Pid, "grace", grace)

	if err := proc.Signal(syscall.SIGTERM); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		p.log.Debug("SIGTERM failed", "pid", proc.Pid, "error", err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-exited:
		return nil
	case <-timer.C:
	}

	p.log.Warn("MCP server did not exit within grace period, killing", "pid", proc.Pid)

	if err := proc.Kill(); err != nil && !stderrors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill MCP server (pid %d): %w", proc.Pid, err)
	}

	select {
	case <-exited:
		return nil
	case <-time.After(reapTimeout):
		p.log.Warn("MCP server output still open after kill", "pid", proc.Pid)

		return nil
	}
}
