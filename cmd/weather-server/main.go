// Command weather-server serves the weather tools over MCP on stdin/stdout.
//
// Usage:
//
//	weather-server [-config app.yaml]
//	weather-server -export-tools tools.json
//
// Logs go to weather_server.log under LOG_DIR. Stdout carries protocol
// traffic only.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/mcp-stdio-go/internal/config"
	"github.com/wagiedev/mcp-stdio-go/internal/logging"
	"github.com/wagiedev/mcp-stdio-go/internal/mcp"
	"github.com/wagiedev/mcp-stdio-go/internal/weather"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "optional YAML configuration file")
	exportPath := flag.String("export-tools", "", "write the tool specs as JSON to this path (- for stdout) and exit")
	flag.Parse()

	cfg, err := config.LoadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weather-server: %v\n", err)

		return 1
	}

	logs, err := logging.Open(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weather-server: %v\n", err)

		return 1
	}
	defer logs.Close()

	log, err := logs.Logger(logging.ServerLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "weather-server: %v\n", err)

		return 1
	}

	client := weather.New(weather.Config{
		NWSBaseURL:      cfg.Weather.NWSBaseURL,
		GeocodingAPIKey: cfg.Weather.GeocodingAPIKey,
		Logger:          log,
	})
	reg := weather.Register(mcp.NewRegistry(weather.ServerName, version), client)

	if *exportPath != "" {
		if err := exportTools(reg, *exportPath); err != nil {
			fmt.Fprintf(os.Stderr, "weather-server: %v\n", err)

			return 1
		}

		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("weather server starting", "version", version, "tools", reg.Len())
	fmt.Fprintf(os.Stderr, "weather server %s ready with %d tools, logging to %s\n",
		version, reg.Len(), filepath.Join(logs.Path(), logging.ServerLog))

	if err := reg.NewServer(nil).Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("weather server stopped", "error", err)

		return 1
	}

	log.Info("weather server stopped")

	return 0
}

func exportTools(reg *mcp.Registry, path string) error {
	if path == "-" {
		return reg.WriteJSON(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := reg.WriteJSON(f); err != nil {
		f.Close()

		return err
	}

	return f.Close()
}
