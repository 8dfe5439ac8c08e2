// Package errors defines error types for the MCP stdio client.
//
// Every failure a caller can observe is reported as a *ClientError whose Kind
// distinguishes the cause. Process-level and decoding failures have their own
// structured types. All error types support error unwrapping and can be checked
// using errors.Is, errors.As, and errors.AsType.
package errors
