// Package weather implements the weather procedures served by weather-server:
// active alerts and forecasts from the National Weather Service, and place
// name geocoding through the Google Geocoding API.
//
// Every procedure returns user-facing text. Upstream failures are logged and
// reported as a short explanatory message rather than an error, so the model
// driving the conversation can relay them.
package weather
