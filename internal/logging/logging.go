// Package logging opens the append-mode log files the weather binaries write.
//
// Every file lives in one directory and shares a single level, so raising the
// level at runtime affects all loggers handed out by a Dir.
package logging

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log file names.
const (
	ServerLog      = "weather_server.log"
	AgentToolsLog  = "agent_tools.log"
	MCPServerLog   = "mcp_server.log"
	AIResponsesLog = "ai_responses.log"
)

// Dir hands out loggers backed by files in one directory.
type Dir struct {
	path  string
	level *slog.LevelVar

	mu    sync.Mutex
	files map[string]*os.File
}

// Open creates dir if needed. level is parsed with ParseLevel.
func Open(dir, level string) (*Dir, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	d := &Dir{
		path:  dir,
		level: new(slog.LevelVar),
		files: make(map[string]*os.File, 4),
	}
	d.level.Set(lvl)

	return d, nil
}

// Path returns the directory holding the log files.
func (d *Dir) Path() string {
	return d.path
}

// SetLevel changes the level of every logger from d.
func (d *Dir) SetLevel(level slog.Level) {
	d.level.Set(level)
}

// Writer returns the append-mode file name inside the directory. Repeated
// calls with the same name share one file.
func (d *Dir) Writer(name string) (io.Writer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if f, ok := d.files[name]; ok {
		return f, nil
	}

	path := filepath.Join(d.path, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	d.files[name] = f

	return f, nil
}

// Logger returns a text logger writing to the file name.
func (d *Dir) Logger(name string) (*slog.Logger, error) {
	w, err := d.Writer(name)
	if err != nil {
		return nil, err
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: d.level})), nil
}

// Close closes every file opened through d.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, f := range d.files {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}

		delete(d.files, name)
	}

	return stderrors.Join(errs...)
}

// ParseLevel parses debug, info, warn or error. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}

	return lvl, nil
}

// WithComponent returns log with the component attribute attached.
//
// Example:
//
//	log := logging.WithComponent(root, "agent")
//	log.Info("tool call", "tool", name)
//	// Output: level=INFO msg="tool call" component=agent tool=get_alerts
func WithComponent(log *slog.Logger, component string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}

	return log.With("component", component)
}
