package subprocess

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wagiedev/mcp-stdio-go/internal/config"
	"github.com/wagiedev/mcp-stdio-go/internal/errors"
	"github.com/wagiedev/mcp-stdio-go/internal/jsonrpc"
	"github.com/wagiedev/mcp-stdio-go/internal/testserver"
)

func TestMain(m *testing.M) {
	testserver.RunIfRequested()
	os.Exit(m.Run())
}

// lockedBuffer is a log sink that can be read while goroutines write to it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func newFakeServer(t *testing.T, mode string, opts *config.Options) (*Process, *lockedBuffer) {
	t.Helper()

	if opts == nil {
		opts = &config.Options{}
	}

	opts.Command = testserver.Command()
	opts.Env = testserver.Env(mode)

	logs := &lockedBuffer{}
	log := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := NewProcess(log, opts)
	require.NoError(t, p.Start(context.Background()))

	t.Cleanup(func() { _ = p.Close() })

	return p, logs
}

func nextMessage(t *testing.T, ch <-chan *jsonrpc.Message) *jsonrpc.Message {
	t.Helper()

	select {
	case msg, ok := <-ch:
		require.True(t, ok, "message channel closed")

		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")

		return nil
	}
}

func sendRequest(t *testing.T, p *Process, id int64, method string, params any) {
	t.Helper()

	req, err := jsonrpc.NewRequest(id, method, params)
	require.NoError(t, err)

	data, err := jsonrpc.Encode(req)
	require.NoError(t, err)

	require.NoError(t, p.SendMessage(context.Background(), data))
}

func TestStart_Errors(t *testing.T) {
	log := slog.Default()

	t.Run("no command", func(t *testing.T) {
		p := NewProcess(log, &config.Options{})

		err := p.Start(context.Background())

		_, ok := stderrors.AsType[*errors.ConnectionError](err)
		require.True(t, ok, "expected ConnectionError, got %T", err)
	})

	t.Run("executable not found", func(t *testing.T) {
		p := NewProcess(log, &config.Options{
			Command: []string{"definitely-not-an-mcp-server-binary"},
		})

		err := p.Start(context.Background())

		connErr, ok := stderrors.AsType[*errors.ConnectionError](err)
		require.True(t, ok, "expected ConnectionError, got %T", err)
		require.Contains(t, connErr.Error(), "failed to start MCP server")
		require.False(t, p.IsReady())
		require.Zero(t, p.PID())
	})

	t.Run("nonexistent cwd", func(t *testing.T) {
		p := NewProcess(log, &config.Options{
			Command: testserver.Command(),
			Cwd:     "/nonexistent/path/that/does/not/exist",
		})

		err := p.Start(context.Background())

		_, ok := stderrors.AsType[*errors.ConnectionError](err)
		require.True(t, ok, "expected ConnectionError, got %T", err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := NewProcess(log, &config.Options{Command: testserver.Command()})

		require.ErrorIs(t, p.Start(ctx), context.Canceled)
	})
}

func TestProcess_RoundTrip(t *testing.T) {
	p, _ := newFakeServer(t, testserver.ModeDefault, nil)

	require.True(t, p.IsReady())
	require.NotZero(t, p.PID())

	messages, _ := p.ReadMessages(context.Background())

	sendRequest(t, p, 1, "echo", map[string]any{"n": 1})

	msg := nextMessage(t, messages)
	require.Equal(t, jsonrpc.KindResult, msg.Kind)
	require.Equal(t, int64(1), msg.ID)
	require.JSONEq(t, `{"params":{"n":1}}`, string(msg.Result))
}

func TestProcess_NoisyOutput(t *testing.T) {
	var (
		mu          sync.Mutex
		stderrLines []string
	)

	p, logs := newFakeServer(t, testserver.ModeNoisy, &config.Options{
		Stderr: func(line string) {
			mu.Lock()
			defer mu.Unlock()

			stderrLines = append(stderrLines, line)
		},
	})

	messages, _ := p.ReadMessages(context.Background())

	sendRequest(t, p, 1, "echo", nil)

	stray := nextMessage(t, messages)
	require.Equal(t, jsonrpc.KindResult, stray.Kind)
	require.Equal(t, int64(424242), stray.ID)

	note := nextMessage(t, messages)
	require.Equal(t, jsonrpc.KindNotification, note.Kind)
	require.Equal(t, "notifications/message", note.Method)

	reply := nextMessage(t, messages)
	require.Equal(t, int64(1), reply.ID)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(stderrLines) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, []string{"fake server starting", "[fake] already prefixed"}, stderrLines[:2])
	mu.Unlock()

	out := logs.String()
	require.Contains(t, out, "[MCP server] fake server starting")
	require.Contains(t, out, "[MCP server output] this is not json")
	require.Contains(t, out, "[fake] already prefixed")
	require.NotContains(t, out, "[MCP server] [fake]")
}

func TestProcess_UnexpectedExit(t *testing.T) {
	p, _ := newFakeServer(t, testserver.ModeCrash, nil)

	messages, errs := p.ReadMessages(context.Background())

	for range messages {
		t.Fatal("crashing server should not produce messages")
	}

	err, ok := <-errs
	require.True(t, ok, "expected a terminal error")

	procErr, ok := stderrors.AsType[*errors.ProcessError](err)
	require.True(t, ok, "expected ProcessError, got %T", err)
	require.Equal(t, 3, procErr.ExitCode)
	require.Contains(t, procErr.Stderr, "fatal: boom")

	<-p.Exited()
	require.False(t, p.IsReady())
}

func TestProcess_CleanExitAfterEndInput(t *testing.T) {
	p, _ := newFakeServer(t, testserver.ModeDefault, nil)

	messages, errs := p.ReadMessages(context.Background())

	require.NoError(t, p.EndInput())
	require.NoError(t, p.EndInput())

	for range messages {
	}

	_, ok := <-errs
	require.False(t, ok, "clean exit should not report an error")
	require.False(t, p.IsReady())
}

func TestProcess_ReaderDrainsWithoutConsumer(t *testing.T) {
	p, _ := newFakeServer(t, testserver.ModeDefault, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, _ = p.ReadMessages(ctx)

	for i := range 5 {
		sendRequest(t, p, int64(i+1), "echo", nil)
	}

	cancel()
	require.NoError(t, p.EndInput())

	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("process was not reaped while nobody consumed its output")
	}
}

func TestClose(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		p := NewProcess(slog.Default(), &config.Options{})

		require.NoError(t, p.Close())
		require.NoError(t, p.Close())
	})

	t.Run("idempotent", func(t *testing.T) {
		p, _ := newFakeServer(t, testserver.ModeDefault, nil)
		_, _ = p.ReadMessages(context.Background())

		require.NoError(t, p.Close())
		require.NoError(t, p.Close())

		<-p.Exited()
		require.False(t, p.IsReady())

		err := p.SendMessage(context.Background(), []byte(`{}`))
		require.ErrorIs(t, err, errors.ErrNotRunning)
	})

	t.Run("kills server ignoring SIGTERM", func(t *testing.T) {
		p, _ := newFakeServer(t, testserver.ModeStubborn, &config.Options{
			GracePeriod: 100 * time.Millisecond,
		})
		_, _ = p.ReadMessages(context.Background())

		// Give the child time to install its signal handler.
		time.Sleep(200 * time.Millisecond)

		start := time.Now()
		require.NoError(t, p.Close())
		require.Less(t, time.Since(start), 3*time.Second)

		select {
		case <-p.Exited():
		case <-time.After(5 * time.Second):
			t.Fatal("stubborn server was not reaped")
		}
	})

	t.Run("no error reported for intentional shutdown", func(t *testing.T) {
		p, _ := newFakeServer(t, testserver.ModeStubborn, &config.Options{
			GracePeriod: 50 * time.Millisecond,
		})
		messages, errs := p.ReadMessages(context.Background())

		time.Sleep(200 * time.Millisecond)
		require.NoError(t, p.Close())

		for range messages {
		}

		_, ok := <-errs
		require.False(t, ok)
	})
}

func TestReadMessages_BeforeStart(t *testing.T) {
	p := NewProcess(slog.Default(), &config.Options{})

	messages, errs := p.ReadMessages(context.Background())

	_, ok := <-messages
	require.False(t, ok)

	err := <-errs
	require.ErrorIs(t, err, errors.ErrNotRunning)
}

// TestConcurrentWrites_AreSerialized tests that concurrent frames never interleave.
func TestConcurrentWrites_AreSerialized(t *testing.T) {
	reader, writer := io.Pipe()
	defer reader.Close()

	transport := &Process{
		log:   slog.Default(),
		stdin: writer,
	}

	const numWriters = 20

	var (
		wg    sync.WaitGroup
		lines []string
	)

	collected := make(chan struct{})

	go func() {
		defer close(collected)

		data, _ := io.ReadAll(reader)
		lines = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	}()

	for i := range numWriters {
		wg.Go(func() {
			payload := `{"id":` + strconv.Itoa(i) + `,"pad":"` + strings.Repeat("x", 4096) + `"}`
			require.NoError(t, transport.SendMessage(context.Background(), []byte(payload)))
		})
	}

	wg.Wait()
	require.NoError(t, writer.Close())
	<-collected

	require.Len(t, lines, numWriters)

	for _, line := range lines {
		require.True(t, strings.HasPrefix(line, `{"id":`), "interleaved frame: %.40q", line)
		require.True(t, strings.HasSuffix(line, `"}`), "interleaved frame: %.40q", line)
	}
}

func TestSendMessage(t *testing.T) {
	log := slog.Default()

	t.Run("before start", func(t *testing.T) {
		transport := &Process{log: log}

		err := transport.SendMessage(context.Background(), []byte(`{}`))
		require.ErrorIs(t, err, errors.ErrNotRunning)
	})

	t.Run("cancelled context", func(t *testing.T) {
		reader, writer := io.Pipe()
		defer reader.Close()
		defer writer.Close()

		transport := &Process{log: log, stdin: writer}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := transport.SendMessage(ctx, []byte(`{}`))
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("write failure", func(t *testing.T) {
		reader, writer := io.Pipe()
		_ = reader.Close()

		transport := &Process{log: log, stdin: writer}

		err := transport.SendMessage(context.Background(), []byte(`{}`))
		require.ErrorIs(t, err, errors.ErrWriteFailure)
		require.ErrorIs(t, err, io.ErrClosedPipe)
	})

	t.Run("does not mutate caller slice", func(t *testing.T) {
		reader, writer := io.Pipe()
		defer reader.Close()

		go func() { _, _ = io.Copy(io.Discard, reader) }()

		transport := &Process{log: log, stdin: writer}

		backing := make([]byte, 2, 16)
		copy(backing, "{}")
		backing = append(backing, 'Z')[:2]

		require.NoError(t, transport.SendMessage(context.Background(), backing))
		require.Equal(t, byte('Z'), backing[:3][2])
	})
}

// TestSendMessage_CancellationDuringWrite tests that SendMessage respects context
// cancellation even when blocked on a write operation.
func TestSendMessage_CancellationDuringWrite(t *testing.T) {
	reader, writer := io.Pipe()
	defer reader.Close()

	transport := &Process{log: slog.Default(), stdin: writer}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- transport.SendMessage(ctx, []byte(`{"blocked":true}`))
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("SendMessage did not respect context cancellation")
	}

	err := transport.SendMessage(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, errors.ErrNotRunning)
}

// hungWriter blocks every Write until unblocked, even after Close.
type hungWriter struct {
	unblock chan struct{}
	mu      sync.Mutex
	closed  bool
}

func (h *hungWriter) Write(p []byte) (int, error) {
	<-h.unblock

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0, io.ErrClosedPipe
	}

	return len(p), nil
}

func (h *hungWriter) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true

	return nil
}

// TestSendMessage_HungWriteAfterClose tests that SendMessage returns promptly
// even when Write does not return after stdin is closed.
func TestSendMessage_HungWriteAfterClose(t *testing.T) {
	hw := &hungWriter{unblock: make(chan struct{})}
	defer close(hw.unblock)

	transport := &Process{log: slog.Default(), stdin: hw}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := transport.SendMessage(ctx, []byte(`{}`))

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), writeAbandonTimeout+time.Second)
}

// TestSendMessage_AbortedByClose tests that Close unblocks a stuck write.
func TestSendMessage_AbortedByClose(t *testing.T) {
	reader, writer := io.Pipe()
	defer reader.Close()

	transport := &Process{
		log:      slog.Default(),
		options:  &config.Options{},
		stdin:    writer,
		shutdown: make(chan struct{}),
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- transport.SendMessage(context.Background(), []byte(`{"blocked":true}`))
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, transport.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, errors.ErrNotRunning)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not abort the blocked write")
	}
}

func TestStderrTail_IsCapped(t *testing.T) {
	p := &Process{}

	line := strings.Repeat("e", 1000)
	for range 200 {
		p.appendStderr(line)
	}

	p.appendStderr("last line")

	tail := p.stderrSnapshot()
	require.LessOrEqual(t, len(tail), maxStderrTail)
	require.True(t, strings.HasSuffix(tail, "last line"))
}

func TestBuildEnvironment(t *testing.T) {
	t.Setenv("MCP_STDIO_PARENT", "inherited")

	env := buildEnvironment(map[string]string{"B_KEY": "2", "A_KEY": "1"})

	require.Contains(t, env, "MCP_STDIO_PARENT=inherited")
	require.Equal(t, []string{"A_KEY=1", "B_KEY=2"}, env[len(env)-2:])
}
