package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Weather reports current conditions for a city via an Open-Meteo-compatible
// geocoding + forecast API.
type Weather struct {
	geocodeURL  string
	forecastURL string
	client      *http.Client
}

// NewWeather creates the weather tool against the public Open-Meteo API.
func NewWeather() *Weather {
	return &Weather{
		geocodeURL:  "https://geocoding-api.open-meteo.com/v1/search",
		forecastURL: "https://api.open-meteo.com/v1/forecast",
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

// NewWeatherWithEndpoints is used by tests to point at a local server.
func NewWeatherWithEndpoints(geocodeURL, forecastURL string) *Weather {
	w := NewWeather()
	w.geocodeURL = geocodeURL
	w.forecastURL = forecastURL
	return w
}

func (w *Weather) Name() string        { return "weather" }
func (w *Weather) Description() string { return "Get the current weather for a city" }
func (w *Weather) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"city": {"type": "string", "description": "City name, e.g. Oslo"}
		},
		"required": ["city"]
	}`)
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	CurrentWeather struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

func (w *Weather) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		City string `json:"city"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.City == "" {
		return "", fmt.Errorf("city is required")
	}

	var geo geocodeResponse
	geoQuery := url.Values{"name": {params.City}, "count": {"1"}}
	if err := w.getJSON(ctx, w.geocodeURL+"?"+geoQuery.Encode(), &geo); err != nil {
		return "", fmt.Errorf("geocode %q: %w", params.City, err)
	}
	if len(geo.Results) == 0 {
		return fmt.Sprintf("No location found for %q.", params.City), nil
	}
	loc := geo.Results[0]

	var fc forecastResponse
	fcQuery := url.Values{
		"latitude":        {fmt.Sprintf("%.4f", loc.Latitude)},
		"longitude":       {fmt.Sprintf("%.4f", loc.Longitude)},
		"current_weather": {"true"},
	}
	if err := w.getJSON(ctx, w.forecastURL+"?"+fcQuery.Encode(), &fc); err != nil {
		return "", fmt.Errorf("forecast for %q: %w", params.City, err)
	}

	return fmt.Sprintf("Weather in %s, %s: %.1f C, wind %.1f km/h.",
		loc.Name, loc.Country, fc.CurrentWeather.Temperature, fc.CurrentWeather.WindSpeed), nil
}

func (w *Weather) getJSON(ctx context.Context, rawURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, dst)
}
