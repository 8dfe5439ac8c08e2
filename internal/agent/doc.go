// Package agent runs the weather assistant's conversation loop.
//
// An Agent keeps the conversation history, offers the tools listed by an MCP
// server to the model, and executes every tool the model asks for through
// the MCP client until the model ends its turn.
package agent
