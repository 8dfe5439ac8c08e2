// Package jsonrpc frames JSON-RPC 2.0 messages for newline-delimited stdio.
//
// Messages are decoded exactly once, at the wire boundary, into a Message whose
// Kind tells downstream code whether it is a request, a notification, a
// successful response, or an error response. Nothing past this package inspects
// raw maps.
//
// Wire format, one message per line:
//
//	{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{}}}
//	{"jsonrpc":"2.0","method":"notifications/initialized"}
//	{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"ok"}]}}
//	{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}
package jsonrpc
