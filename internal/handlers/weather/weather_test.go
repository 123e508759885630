package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atlasvoice/atlas/internal/intent"
)

func newServers(t *testing.T, geocodeBody, forecastBody string) (geocode, forecast string) {
	t.Helper()

	gs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("name"); got == "" {
			t.Errorf("geocode called without name param")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(geocodeBody))
	}))
	t.Cleanup(gs.Close)

	fs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(forecastBody))
	}))
	t.Cleanup(fs.Close)

	return gs.URL, fs.URL
}

func weatherIntent(location string) intent.Intent {
	entities := map[string]string{}
	if location != "" {
		entities[intent.SlotLocation] = location
	}
	return intent.Intent{Kind: intent.Weather, Action: "read", Entities: entities, Confidence: 0.9}
}

func TestHandleReportsConditions(t *testing.T) {
	t.Parallel()

	geocode, forecast := newServers(t,
		`{"results":[{"name":"Paris","latitude":48.85,"longitude":2.35}]}`,
		`{"current":{"temperature_2m":21.4,"weather_code":2,"wind_speed_10m":12.0}}`)

	h := New(WithEndpoints(geocode, forecast))

	res, err := h.Handle(context.Background(), weatherIntent("Paris"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if want := "It's 21 degrees and partly cloudy in Paris."; res.SpokenText != want {
		t.Errorf("spoken: want %q, got %q", want, res.SpokenText)
	}
	if !strings.Contains(res.DisplayText, "21.4°C") {
		t.Errorf("display missing temperature: %q", res.DisplayText)
	}
}

func TestHandleUnknownLocation(t *testing.T) {
	t.Parallel()

	geocode, forecast := newServers(t, `{"results":[]}`, `{}`)
	h := New(WithEndpoints(geocode, forecast))

	if _, err := h.Handle(context.Background(), weatherIntent("Nowhereville")); err == nil {
		t.Fatal("expected error for unknown location")
	}
}

func TestHandleMissingLocationEntity(t *testing.T) {
	t.Parallel()

	h := New()
	if _, err := h.Handle(context.Background(), weatherIntent("")); err == nil {
		t.Fatal("expected error when intent has no location")
	}
}

func TestHandleUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	h := New(WithEndpoints(srv.URL, srv.URL))
	if _, err := h.Handle(context.Background(), weatherIntent("Paris")); err == nil {
		t.Fatal("expected error on upstream failure")
	}
}

func TestDescribeWeatherCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code int
		want string
	}{
		{0, "clear"},
		{3, "overcast"},
		{48, "foggy"},
		{63, "raining"},
		{75, "snowing"},
		{96, "stormy"},
		{40, "unsettled"},
	}
	for _, tc := range cases {
		if got := describeWeatherCode(tc.code); got != tc.want {
			t.Errorf("code %d: want %q, got %q", tc.code, tc.want, got)
		}
	}
}
