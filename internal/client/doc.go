// Package client implements the MCP stdio client.
//
// A Client owns at most one live connection to an MCP server child process.
// Start spawns the server and performs the initialize handshake; Request,
// Notify, CallTool and ListTools may then be called concurrently from any
// number of goroutines; Stop terminates the server and fails anything still
// waiting.
//
// The Client uses the subprocess package for the child process and the
// protocol package for request/response correlation.
package client
