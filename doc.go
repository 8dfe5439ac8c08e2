// Package mcpstdio is a client for Model Context Protocol servers that speak
// JSON-RPC 2.0 over a child process's standard input and output.
//
// The client spawns the server, performs the initialize handshake, and
// multiplexes any number of concurrent requests over the one pipe pair.
// Responses are matched to callers by request id. Anything the server writes
// to stderr, and any stdout line that is not a JSON-RPC message, is logged
// and never reaches a caller.
//
// # Basic Usage
//
//	client := mcpstdio.NewClient(
//	    mcpstdio.WithCommand("weather-server"),
//	    mcpstdio.WithLogger(slog.Default()),
//	)
//	if err := client.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Stop()
//
//	forecast, err := client.CallTool(ctx, "get_forecast", map[string]any{
//	    "latitude":  37.77,
//	    "longitude": -122.42,
//	})
//
// Or let WithClient manage the lifecycle:
//
//	err := mcpstdio.WithClient(ctx, func(c mcpstdio.Client) error {
//	    tools, err := c.ListTools(ctx)
//	    ...
//	}, mcpstdio.WithCommand("weather-server"))
//
// # Errors
//
// Request failures are *ClientError values classified by Kind. Match them
// with errors.Is against the sentinels:
//
//	_, err := client.Request(ctx, "tools/call", params)
//	switch {
//	case errors.Is(err, mcpstdio.ErrTimeout):
//	case errors.Is(err, mcpstdio.ErrRemote):
//	case errors.Is(err, mcpstdio.ErrConnectionClosed):
//	}
//
// When the server dies, outstanding requests fail with ErrConnectionClosed
// wrapping a *ProcessError that carries the exit code and the tail of the
// server's stderr.
//
// # Servers
//
// Registry builds the tool surface of a server on the official go-sdk. The
// weather-server command in this module is built that way.
package mcpstdio
