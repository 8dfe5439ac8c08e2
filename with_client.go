package mcpstdio

import (
	"context"
	"fmt"
)

// WithClient manages client lifecycle with automatic cleanup.
//
// This helper creates a client with the provided options, starts it, executes
// the callback function, and always stops the server when done.
//
// If the callback returns an error, it is returned to the caller.
// If Stop fails, a warning is logged but does not override the callback's error.
//
// Example usage:
//
//	err := mcpstdio.WithClient(ctx, func(c mcpstdio.Client) error {
//	    forecast, err := c.CallTool(ctx, "get_forecast", map[string]any{
//	        "latitude": 37.77, "longitude": -122.42,
//	    })
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(forecast)
//	    return nil
//	},
//	    mcpstdio.WithCommand("weather-server"),
//	    mcpstdio.WithLogger(log),
//	)
func WithClient(ctx context.Context, fn func(Client) error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	options := applyOptions(opts)

	log := options.Logger
	if log == nil {
		log = NopLogger()
	}

	client := NewClient(opts...)
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	defer func() {
		if stopErr := client.Stop(); stopErr != nil {
			log.Warn("failed to stop client", "error", stopErr)
		}
	}()

	return fn(client)
}
