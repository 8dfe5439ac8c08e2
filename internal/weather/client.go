package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultNWSBaseURL is the National Weather Service API root.
	DefaultNWSBaseURL = "https://api.weather.gov"
	// DefaultGeocodeURL is the Google Geocoding JSON endpoint.
	DefaultGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

	userAgent        = "weather-app/1.0"
	nwsTimeout       = 30 * time.Second
	geocodeTimeout   = 10 * time.Second
	maxForecastItems = 5
	sectionSeparator = "\n---\n"
)

// Config configures a Client.
type Config struct {
	// NWSBaseURL defaults to DefaultNWSBaseURL.
	NWSBaseURL string
	// GeocodeURL defaults to DefaultGeocodeURL.
	GeocodeURL string
	// GeocodingAPIKey is required by Geocode.
	GeocodingAPIKey string
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the upstream weather and geocoding APIs.
type Client struct {
	log        *slog.Logger
	http       *http.Client
	nwsBase    string
	geocodeURL string
	apiKey     string
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		log:        cfg.Logger,
		http:       cfg.HTTPClient,
		nwsBase:    strings.TrimRight(cfg.NWSBaseURL, "/"),
		geocodeURL: cfg.GeocodeURL,
		apiKey:     cfg.GeocodingAPIKey,
	}

	if c.log == nil {
		c.log = slog.New(slog.DiscardHandler)
	}

	c.log = c.log.With("component", "weather")

	if c.http == nil {
		c.http = http.DefaultClient
	}

	if c.nwsBase == "" {
		c.nwsBase = DefaultNWSBaseURL
	}

	if c.geocodeURL == "" {
		c.geocodeURL = DefaultGeocodeURL
	}

	return c
}

type alertsResponse struct {
	Features []struct {
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

// Alerts returns the active alerts for a two-letter US state code.
func (c *Client) Alerts(ctx context.Context, state string) string {
	var data *alertsResponse
	if err := c.getNWS(ctx, c.nwsBase+"/alerts/active/area/"+url.PathEscape(state), &data); err != nil ||
		data == nil || data.Features == nil {
		return "Unable to fetch alerts or no alerts found."
	}

	if len(data.Features) == 0 {
		return "No active alerts for this state."
	}

	alerts := make([]string, 0, len(data.Features))
	for _, f := range data.Features {
		alerts = append(alerts, formatAlert(f.Properties))
	}

	return strings.Join(alerts, sectionSeparator)
}

func formatAlert(props map[string]any) string {
	return fmt.Sprintf("\nEvent: %s\nArea: %s\nSeverity: %s\nDescription: %s\nInstructions: %s\n",
		prop(props, "event", "Unknown"),
		prop(props, "areaDesc", "Unknown"),
		prop(props, "severity", "Unknown"),
		prop(props, "description", "No description available"),
		prop(props, "instruction", "No specific instructions provided"),
	)
}

func prop(props map[string]any, key, fallback string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return fallback
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprint(v)
}

type pointsResponse struct {
	Properties struct {
		Forecast string `json:"forecast"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []forecastPeriod `json:"periods"`
	} `json:"properties"`
}

type forecastPeriod struct {
	Name             string      `json:"name"`
	Temperature      json.Number `json:"temperature"`
	TemperatureUnit  string      `json:"temperatureUnit"`
	WindSpeed        string      `json:"windSpeed"`
	WindDirection    string      `json:"windDirection"`
	DetailedForecast string      `json:"detailedForecast"`
}

// Forecast returns the next few forecast periods for a coordinate.
func (c *Client) Forecast(ctx context.Context, latitude, longitude float64) string {
	pointsURL := fmt.Sprintf("%s/points/%s,%s", c.nwsBase, formatCoord(latitude), formatCoord(longitude))

	var points *pointsResponse
	if err := c.getNWS(ctx, pointsURL, &points); err != nil || points == nil || points.Properties.Forecast == "" {
		return "Unable to fetch forecast data for this location."
	}

	var forecast *forecastResponse
	if err := c.getNWS(ctx, points.Properties.Forecast, &forecast); err != nil || forecast == nil {
		return "Unable to fetch detailed forecast."
	}

	periods := forecast.Properties.Periods
	if len(periods) > maxForecastItems {
		periods = periods[:maxForecastItems]
	}

	out := make([]string, 0, len(periods))
	for _, p := range periods {
		out = append(out, fmt.Sprintf("\n%s:\nTemperature: %s°%s\nWind: %s %s\nForecast: %s\n",
			p.Name, p.Temperature, p.TemperatureUnit, p.WindSpeed, p.WindDirection, p.DetailedForecast))
	}

	return strings.Join(out, sectionSeparator)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

type geocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode resolves a place name to coordinates, biased towards US results.
func (c *Client) Geocode(ctx context.Context, location string) string {
	if c.apiKey == "" {
		return "Google Geocoding API key is not set. Please set the GOOGLE_GEOCODING_API_KEY environment variable."
	}

	query := url.Values{}
	query.Set("address", location)
	query.Set("key", c.apiKey)
	query.Set("region", "us")

	var data geocodeResponse
	if err := c.getJSON(ctx, c.geocodeURL+"?"+query.Encode(), geocodeTimeout, nil, &data); err != nil {
		c.log.Error("[Geocoding] Google API failed", "error", err)

		return "Geocoding error: " + err.Error()
	}

	switch {
	case data.Status == "OK" && len(data.Results) > 0:
		result := data.Results[0]

		address := result.FormattedAddress
		if address == "" {
			address = location
		}

		c.log.Info("[Geocoding] Google API found: " + address)

		return fmt.Sprintf("\nLocation: %s\nLatitude: %s\nLongitude: %s\n",
			address, formatCoord(result.Geometry.Location.Lat), formatCoord(result.Geometry.Location.Lng))
	case data.Status == "ZERO_RESULTS":
		return fmt.Sprintf("Could not find coordinates for '%s'. Please check the spelling or be more specific.", location)
	default:
		return fmt.Sprintf("Google Geocoding API returned status: %s. Unable to geocode '%s'.", data.Status, location)
	}
}

func (c *Client) getNWS(ctx context.Context, rawURL string, out any) error {
	headers := map[string]string{
		"User-Agent": userAgent,
		"Accept":     "application/geo+json",
	}

	if err := c.getJSON(ctx, rawURL, nwsTimeout, headers, out); err != nil {
		c.log.Error("[NWS API Error] "+err.Error(), "url", rawURL)

		return err
	}

	return nil
}

func (c *Client) getJSON(
	ctx context.Context,
	rawURL string,
	timeout time.Duration,
	headers map[string]string,
	out any,
) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// url.Error repeats the full URL, which for geocoding carries the key.
		if urlErr, ok := errors.AsType[*url.Error](err); ok {
			err = urlErr.Err
		}

		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
