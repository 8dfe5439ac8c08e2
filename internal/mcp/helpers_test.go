package mcp

import (
	"encoding/json"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleSchema(t *testing.T) {
	schema := SimpleSchema(map[string]string{
		"state":     "string",
		"latitude":  "float64",
		"count":     "int",
		"enabled":   "bool",
		"tags":      "[]string",
		"something": "unknown",
	})

	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, []string{"count", "enabled", "latitude", "something", "state", "tags"}, schema.Required)

	tests := []struct {
		prop string
		want string
	}{
		{"state", "string"},
		{"latitude", "number"},
		{"count", "integer"},
		{"enabled", "boolean"},
		{"tags", "array"},
		{"something", "string"},
	}

	for _, tt := range tests {
		t.Run(tt.prop, func(t *testing.T) {
			require.Contains(t, schema.Properties, tt.prop)
			assert.Equal(t, tt.want, schema.Properties[tt.prop].Type)
		})
	}

	assert.Equal(t, "string", schema.Properties["tags"].Items.Type)
}

func TestDescribe(t *testing.T) {
	schema := Describe(SimpleSchema(map[string]string{"state": "string"}), map[string]string{
		"state":   "Two-letter US state code",
		"missing": "ignored",
	})

	assert.Equal(t, "Two-letter US state code", schema.Properties["state"].Description)
	assert.NotContains(t, schema.Properties, "missing")
}

func TestResults(t *testing.T) {
	text := TextResult("hello")
	assert.False(t, text.IsError)
	assert.Equal(t, "hello", text.Content[0].(*mcp.TextContent).Text)

	failed := ErrorResult("bad")
	assert.True(t, failed.IsError)
	assert.Equal(t, "bad", failed.Content[0].(*mcp.TextContent).Text)
}

func TestNewTool(t *testing.T) {
	tool := NewTool("x", "does x", nil)
	assert.Nil(t, tool.InputSchema)

	schema := &jsonschema.Schema{Type: "object"}
	tool = NewTool("x", "does x", schema)
	assert.Same(t, schema, tool.InputSchema)
}

func TestParseArguments(t *testing.T) {
	tests := []struct {
		name    string
		req     *mcp.CallToolRequest
		want    map[string]any
		wantErr bool
	}{
		{name: "nil request", req: nil, want: map[string]any{}},
		{name: "nil params", req: &mcp.CallToolRequest{}, want: map[string]any{}},
		{
			name: "json null",
			req:  &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`null`)}},
			want: map[string]any{},
		},
		{
			name: "object",
			req:  &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`{"a":1}`)}},
			want: map[string]any{"a": float64(1)},
		},
		{
			name:    "not an object",
			req:     &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{Arguments: json.RawMessage(`[1]`)}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArguments(tt.req)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBindArguments(t *testing.T) {
	var args struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}

	req := &mcp.CallToolRequest{Params: &mcp.CallToolParamsRaw{
		Arguments: json.RawMessage(`{"latitude":37.77,"longitude":-122.42}`),
	}}

	require.NoError(t, BindArguments(req, &args))
	assert.InDelta(t, 37.77, args.Latitude, 1e-9)
	assert.InDelta(t, -122.42, args.Longitude, 1e-9)

	require.NoError(t, BindArguments(nil, &args))
}
