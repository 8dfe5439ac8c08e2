// Package subprocess provides the child-process transport for MCP servers.
//
// Process spawns the server with three pipes, writes newline-delimited frames
// to its stdin, decodes frames from its stdout and relays its stderr to the
// log. It owns the process lifecycle: graceful termination with a grace
// period, a forced kill after it, and reaping of the child in every case.
package subprocess
