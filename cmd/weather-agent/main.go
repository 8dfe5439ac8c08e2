// Command weather-agent is an interactive weather assistant. It launches
// weather-server as a child process, offers the server's tools to the model,
// and answers questions in a read-eval-print loop.
//
// Usage:
//
//	weather-agent [-config app.yaml]
//
// The Anthropic API key is read from ANTHROPIC_API_KEY. Type quit, exit or
// bye (or press Ctrl-C) to leave.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"

	mcpstdio "github.com/wagiedev/mcp-stdio-go"
	"github.com/wagiedev/mcp-stdio-go/internal/agent"
	"github.com/wagiedev/mcp-stdio-go/internal/config"
	"github.com/wagiedev/mcp-stdio-go/internal/logging"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weather-agent: %v\n", err)

		return 1
	}

	logs, err := logging.Open(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weather-agent: %v\n", err)

		return 1
	}
	defer logs.Close()

	toolLog, err := logs.Logger(logging.AgentToolsLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weather-agent: %v\n", err)

		return 1
	}

	mcpLog, err := logs.Logger(logging.MCPServerLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weather-agent: %v\n", err)

		return 1
	}

	responses, err := logs.Writer(logging.AIResponsesLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weather-agent: %v\n", err)

		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printBanner(os.Stdout)

	client := mcpstdio.NewClient(
		mcpstdio.WithCommand(cfg.Server.Command...),
		mcpstdio.WithCwd(cfg.Server.Cwd),
		mcpstdio.WithEnv(map[string]string{"LOG_DIR": cfg.LogDir}),
		mcpstdio.WithRequestTimeout(cfg.Server.RequestTimeout),
		mcpstdio.WithClientInfo("weather-agent", version),
		mcpstdio.WithLogger(mcpLog),
	)

	if err := client.Start(ctx); err != nil {
		toolLog.Error("failed to start MCP server", "error", err)
		fmt.Println("✗ Failed to start MCP server (see agent log for details).")

		return 1
	}

	toolLog.Info("MCP Weather Server started", "pid", client.PID())

	defer func() {
		if err := client.Stop(); err != nil {
			toolLog.Warn("failed to stop MCP server", "error", err)
		}

		toolLog.Info("MCP Weather Server stopped")
		fmt.Println("✓ MCP Weather Server stopped")
	}()

	anthropicClient := anthropic.NewClient()

	assistant := agent.New(&anthropicClient.Messages, client, agent.Config{
		Model:     cfg.Agent.Model,
		MaxTokens: cfg.Agent.MaxTokens,
		Logger:    toolLog,
		Responses: responses,
		Output:    os.Stdout,
	})

	if err := assistant.LoadTools(ctx); err != nil {
		toolLog.Error("failed to load tools", "error", err)
		fmt.Printf("✗ Failed to load tools from MCP server: %v\n", err)

		return 1
	}

	return repl(ctx, assistant, os.Stdin, os.Stdout)
}

func printBanner(w io.Writer) {
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "🌤️  Personal Weather Assistant Agent")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "\nThis agent uses MCP to access weather data.")
	fmt.Fprintln(w, "Ask me about weather forecasts, alerts, or conditions!")
	fmt.Fprintln(w, "\nCommands: 'quit' or 'exit' to stop")
}

// chatter is the part of the agent the loop drives.
type chatter interface {
	Chat(ctx context.Context, userMessage string) (string, error)
}

func repl(ctx context.Context, assistant chatter, in io.Reader, out io.Writer) int {
	lines := make(chan string)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "\n💬 You: ")

		var input string

		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\n\n👋 Goodbye!")

			return 0
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out, "\n\n👋 Goodbye!")

				return 0
			}

			input = strings.TrimSpace(line)
		}

		switch strings.ToLower(input) {
		case "quit", "exit", "bye":
			fmt.Fprintln(out, "\n👋 Goodbye!")

			return 0
		case "":
			continue
		}

		fmt.Fprintln(out, "\n🤔 Agent thinking...")

		reply, err := assistant.Chat(ctx, input)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(out, "\n\n👋 Goodbye!")

				return 0
			}

			fmt.Fprintf(out, "\n❌ Error: %v\n", err)

			return 1
		}

		fmt.Fprintf(out, "\n🌤️  Agent: %s\n", reply)
	}
}
