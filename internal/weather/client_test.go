package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNWS(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()

	var server *httptest.Server

	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "application/geo+json", r.Header.Get("Accept"))

		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)

			return
		}

		w.Header().Set("Content-Type", "application/geo+json")
		fmt.Fprint(w, strings.ReplaceAll(body, "{{base}}", server.URL))
	}))
	t.Cleanup(server.Close)

	return server
}

func TestClient_Alerts(t *testing.T) {
	server := newNWS(t, map[string]string{
		"/alerts/active/area/CA": `{"features":[
			{"properties":{"event":"Heat Advisory","areaDesc":"Inland Empire","severity":"Moderate",
				"description":"Hot.","instruction":"Drink water."}},
			{"properties":{"event":"Wind Advisory","instruction":null}}
		]}`,
		"/alerts/active/area/VT": `{"features":[]}`,
		"/alerts/active/area/XX": `{"type":"FeatureCollection"}`,
	})

	client := New(Config{NWSBaseURL: server.URL + "/"})
	ctx := context.Background()

	t.Run("formats each alert", func(t *testing.T) {
		got := client.Alerts(ctx, "CA")

		want := "\nEvent: Heat Advisory\nArea: Inland Empire\nSeverity: Moderate\nDescription: Hot.\nInstructions: Drink water.\n" +
			"\n---\n" +
			"\nEvent: Wind Advisory\nArea: Unknown\nSeverity: Unknown\nDescription: No description available\n" +
			"Instructions: No specific instructions provided\n"
		assert.Equal(t, want, got)
	})

	t.Run("no alerts", func(t *testing.T) {
		assert.Equal(t, "No active alerts for this state.", client.Alerts(ctx, "VT"))
	})

	t.Run("missing features", func(t *testing.T) {
		assert.Equal(t, "Unable to fetch alerts or no alerts found.", client.Alerts(ctx, "XX"))
	})

	t.Run("upstream failure", func(t *testing.T) {
		assert.Equal(t, "Unable to fetch alerts or no alerts found.", client.Alerts(ctx, "NY"))
	})
}

func TestClient_Forecast(t *testing.T) {
	var periods []string
	for i := 1; i <= 7; i++ {
		periods = append(periods, fmt.Sprintf(`{"name":"Period %d","temperature":%d,"temperatureUnit":"F",
			"windSpeed":"5 mph","windDirection":"NW","detailedForecast":"Sunny %d."}`, i, 60+i, i))
	}

	server := newNWS(t, map[string]string{
		"/points/37.7749,-122.4194": `{"properties":{"forecast":"{{base}}/gridpoints/MTR/85,105/forecast"}}`,
		"/gridpoints/MTR/85,105/forecast": `{"properties":{"periods":[` + strings.Join(periods, ",") + `]}}`,
		"/points/10,10":  `{"properties":{"forecast":"{{base}}/gridpoints/none"}}`,
		"/points/20,20":  `{"properties":{}}`,
	})

	client := New(Config{NWSBaseURL: server.URL})
	ctx := context.Background()

	t.Run("first five periods", func(t *testing.T) {
		got := client.Forecast(ctx, 37.7749, -122.4194)

		blocks := strings.Split(got, "\n---\n")
		require.Len(t, blocks, 5)
		assert.Equal(t, "\nPeriod 1:\nTemperature: 61°F\nWind: 5 mph NW\nForecast: Sunny 1.\n", blocks[0])
		assert.Contains(t, blocks[4], "Period 5:")
		assert.NotContains(t, got, "Period 6")
	})

	t.Run("points lookup fails", func(t *testing.T) {
		assert.Equal(t, "Unable to fetch forecast data for this location.", client.Forecast(ctx, 1, 1))
	})

	t.Run("points without forecast url", func(t *testing.T) {
		assert.Equal(t, "Unable to fetch forecast data for this location.", client.Forecast(ctx, 20, 20))
	})

	t.Run("forecast lookup fails", func(t *testing.T) {
		assert.Equal(t, "Unable to fetch detailed forecast.", client.Forecast(ctx, 10, 10))
	})
}

func TestClient_Geocode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "secret", q.Get("key"))
		assert.Equal(t, "us", q.Get("region"))

		switch q.Get("address") {
		case "San Francisco":
			fmt.Fprint(w, `{"status":"OK","results":[{"formatted_address":"San Francisco, CA, USA",
				"geometry":{"location":{"lat":37.7749295,"lng":-122.4194155}}}]}`)
		case "Nowhere":
			fmt.Fprint(w, `{"status":"ZERO_RESULTS","results":[]}`)
		case "Denied":
			fmt.Fprint(w, `{"status":"REQUEST_DENIED"}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := New(Config{GeocodeURL: server.URL, GeocodingAPIKey: "secret"})
	ctx := context.Background()

	tests := []struct {
		location string
		want     string
	}{
		{"San Francisco", "\nLocation: San Francisco, CA, USA\nLatitude: 37.7749295\nLongitude: -122.4194155\n"},
		{"Nowhere", "Could not find coordinates for 'Nowhere'. Please check the spelling or be more specific."},
		{"Denied", "Google Geocoding API returned status: REQUEST_DENIED. Unable to geocode 'Denied'."},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, client.Geocode(ctx, tt.location))
		})
	}

	t.Run("http error", func(t *testing.T) {
		got := client.Geocode(ctx, "Broken")
		assert.True(t, strings.HasPrefix(got, "Geocoding error: "), got)
		assert.Contains(t, got, "500")
	})

	t.Run("missing key", func(t *testing.T) {
		got := New(Config{GeocodeURL: server.URL}).Geocode(ctx, "San Francisco")
		assert.Equal(t,
			"Google Geocoding API key is not set. Please set the GOOGLE_GEOCODING_API_KEY environment variable.", got)
	})

	t.Run("transport error hides key", func(t *testing.T) {
		got := New(Config{GeocodeURL: "http://127.0.0.1:1/geocode", GeocodingAPIKey: "secret"}).Geocode(ctx, "x")
		assert.True(t, strings.HasPrefix(got, "Geocoding error: "), got)
		assert.NotContains(t, got, "secret")
	})
}

func TestNew_Defaults(t *testing.T) {
	client := New(Config{})

	assert.Equal(t, DefaultNWSBaseURL, client.nwsBase)
	assert.Equal(t, DefaultGeocodeURL, client.geocodeURL)
	assert.Same(t, http.DefaultClient, client.http)
	assert.NotNil(t, client.log)
}
