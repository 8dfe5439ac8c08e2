// Package mcp builds the tool surface an MCP server exposes.
//
// A Registry collects tools (name, description, input schema, handler) and is
// then installed into a go-sdk server. The same Registry can export its tool
// specs as JSON and invoke tools directly in-process.
package mcp
