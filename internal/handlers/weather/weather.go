// Package weather answers weather intents via the Open-Meteo public API:
// one geocoding call to resolve the spoken location, one forecast call for
// current conditions. No API key required.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/atlasvoice/atlas/internal/dispatch"
	"github.com/atlasvoice/atlas/internal/intent"
)

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
)

// Handler implements dispatch.Handler for weather intents.
type Handler struct {
	client      *http.Client
	geocodeURL  string
	forecastURL string
}

var _ dispatch.Handler = (*Handler)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Handler) { h.client = c }
}

// WithEndpoints overrides the API base URLs, for tests.
func WithEndpoints(geocode, forecast string) Option {
	return func(h *Handler) {
		h.geocodeURL = geocode
		h.forecastURL = forecast
	}
}

// New builds a weather Handler.
func New(opts ...Option) *Handler {
	h := &Handler{
		client:      &http.Client{},
		geocodeURL:  defaultGeocodeURL,
		forecastURL: defaultForecastURL,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handle resolves the requested location and reports current conditions.
func (h *Handler) Handle(ctx context.Context, in intent.Intent) (dispatch.Result, error) {
	location, ok := in.Entity(intent.SlotLocation)
	if !ok || location == "" {
		return dispatch.Result{}, fmt.Errorf("weather: no location in intent")
	}

	place, err := h.geocode(ctx, location)
	if err != nil {
		return dispatch.Result{}, err
	}

	cur, err := h.current(ctx, place)
	if err != nil {
		return dispatch.Result{}, err
	}

	desc := describeWeatherCode(cur.WeatherCode)
	spoken := fmt.Sprintf("It's %.0f degrees and %s in %s.", cur.Temperature, desc, place.Name)
	display := fmt.Sprintf("%s: %.1f°C, %s, wind %.0f km/h", place.Name, cur.Temperature, desc, cur.WindSpeed)
	return dispatch.Result{SpokenText: spoken, DisplayText: display}, nil
}

type place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type geocodeResponse struct {
	Results []place `json:"results"`
}

func (h *Handler) geocode(ctx context.Context, location string) (place, error) {
	q := url.Values{}
	q.Set("name", location)
	q.Set("count", "1")

	var resp geocodeResponse
	if err := h.getJSON(ctx, h.geocodeURL+"?"+q.Encode(), &resp); err != nil {
		return place{}, fmt.Errorf("weather: geocode %q: %w", location, err)
	}
	if len(resp.Results) == 0 {
		return place{}, fmt.Errorf("weather: unknown location %q", location)
	}
	return resp.Results[0], nil
}

type currentWeather struct {
	Temperature float64 `json:"temperature_2m"`
	WeatherCode int     `json:"weather_code"`
	WindSpeed   float64 `json:"wind_speed_10m"`
}

type forecastResponse struct {
	Current currentWeather `json:"current"`
}

func (h *Handler) current(ctx context.Context, p place) (currentWeather, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", p.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", p.Longitude))
	q.Set("current", "temperature_2m,weather_code,wind_speed_10m")

	var resp forecastResponse
	if err := h.getJSON(ctx, h.forecastURL+"?"+q.Encode(), &resp); err != nil {
		return currentWeather{}, fmt.Errorf("weather: forecast for %s: %w", p.Name, err)
	}
	return resp.Current, nil
}

func (h *Handler) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// describeWeatherCode converts a WMO weather code into a speakable phrase.
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "clear"
	case code <= 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "foggy"
	case code >= 51 && code <= 57:
		return "drizzling"
	case code >= 61 && code <= 67:
		return "raining"
	case code >= 71 && code <= 77:
		return "snowing"
	case code >= 80 && code <= 82:
		return "showery"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "stormy"
	default:
		return "unsettled"
	}
}
