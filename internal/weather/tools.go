package weather

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/mcp-stdio-go/internal/mcp"
)

// Tool names.
const (
	ToolGetAlerts   = "get_alerts"
	ToolGetForecast = "get_forecast"
	ToolGeocode     = "geocode"
)

// ServerName is the implementation name weather-server reports.
const ServerName = "weather"

// closedObject returns an object schema that rejects unknown properties.
func closedObject(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
}

// Register adds the weather tools backed by c to reg.
func Register(reg *mcp.Registry, c *Client) *mcp.Registry {
	return reg.
		Add(ToolGetAlerts,
			"Get weather alerts for a US state.",
			closedObject(map[string]*jsonschema.Schema{
				"state": {Type: "string", Description: "Two-letter US state code (e.g., CA, NY, TX)"},
			}, "state"),
			c.handleAlerts).
		Add(ToolGetForecast,
			"Get weather forecast for a location.",
			closedObject(map[string]*jsonschema.Schema{
				"latitude":  {Type: "number", Description: "Latitude of the location"},
				"longitude": {Type: "number", Description: "Longitude of the location"},
			}, "latitude", "longitude"),
			c.handleForecast).
		Add(ToolGeocode,
			"Convert a location name to coordinates using Google Geocoding API.",
			closedObject(map[string]*jsonschema.Schema{
				"location": {Type: "string", Description: "Name of the city or location"},
			}, "location"),
			c.handleGeocode)
}

func (c *Client) handleAlerts(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
	var args struct {
		State string `json:"state"`
	}

	if err := mcp.BindArguments(req, &args); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}

	return mcp.TextResult(c.Alerts(ctx, args.State)), nil
}

func (c *Client) handleForecast(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
	var args struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}

	if err := mcp.BindArguments(req, &args); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}

	return mcp.TextResult(c.Forecast(ctx, args.Latitude, args.Longitude)), nil
}

func (c *Client) handleGeocode(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
	var args struct {
		Location string `json:"location"`
	}

	if err := mcp.BindArguments(req, &args); err != nil {
		return mcp.ErrorResult(err.Error()), nil
	}

	return mcp.TextResult(c.Geocode(ctx, args.Location)), nil
}
