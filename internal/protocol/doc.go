// Package protocol implements JSON-RPC request/response correlation for MCP
// servers.
//
// The Controller assigns each outbound request a unique integer id, records
// it in a correlation table and routes responses read from the transport back
// to the waiting caller. It also answers requests the server sends to the
// client and drops notifications.
//
// Example usage:
//
//	transport := subprocess.NewProcess(log, options)
//	transport.Start(ctx)
//
//	controller := protocol.NewController(log, transport)
//	controller.Start(ctx)
//
//	// Send a request with timeout
//	result, err := controller.Request(ctx, "tools/list", nil, 10*time.Second)
package protocol
