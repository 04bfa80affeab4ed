package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lox/cityweather/internal/models"
)

const parisCurrent = `{
	"name": "Paris",
	"sys": {"country": "FR"},
	"dt": 1700000000,
	"weather": [{"main": "Clouds", "description": "broken clouds"}],
	"main": {"temp": 54, "humidity": 80},
	"wind": {"speed": 5},
	"cod": 200
}`

func forecastBody(n int) string {
	var entries []string
	for i := 0; i < n; i++ {
		entries = append(entries, `{"dt": 1700010800, "main": {"temp": 50.5, "humidity": 70}, "wind": {"speed": 3.2}, "weather": [{"description": "light rain"}], "dt_txt": "2023-11-15 03:00:00"}`)
	}
	return `{"cod": "200", "cnt": 40, "list": [` + strings.Join(entries, ",") + `], "city": {"name": "Paris", "country": "FR"}}`
}

func newTestClient(t *testing.T, handler http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Units:   models.UnitsImperial,
		Timeout: 5 * time.Second,
		Retries: retries,
	})
}

func TestFetchCurrent(t *testing.T) {
	var gotQuery string
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(parisCurrent))
	}, 0)

	cw, err := c.FetchCurrent(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("FetchCurrent: %v", err)
	}

	if gotPath != "/weather" {
		t.Errorf("path = %q, want /weather", gotPath)
	}
	for _, want := range []string{"q=Paris", "appid=test-key", "units=imperial"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}

	if cw.City != "Paris" {
		t.Errorf("City = %q, want Paris", cw.City)
	}
	if cw.Country != "FR" {
		t.Errorf("Country = %q, want FR", cw.Country)
	}
	if cw.Temperature != 54 {
		t.Errorf("Temperature = %v, want 54", cw.Temperature)
	}
	if cw.Humidity != 80 {
		t.Errorf("Humidity = %d, want 80", cw.Humidity)
	}
	if cw.WindSpeed != 5 {
		t.Errorf("WindSpeed = %v, want 5", cw.WindSpeed)
	}
	if cw.Conditions != "broken clouds" {
		t.Errorf("Conditions = %q, want broken clouds", cw.Conditions)
	}
	if !cw.ObservedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("ObservedAt = %v", cw.ObservedAt)
	}
	if cw.Units != models.UnitsImperial {
		t.Errorf("Units = %q, want imperial", cw.Units)
	}
}

func TestFetchCurrent_EscapesCity(t *testing.T) {
	var gotQ string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQ = r.URL.Query().Get("q")
		w.Write([]byte(parisCurrent))
	}, 0)

	if _, err := c.FetchCurrent(context.Background(), "San José&units=metric"); err != nil {
		t.Fatalf("FetchCurrent: %v", err)
	}
	if gotQ != "San José&units=metric" {
		t.Errorf("q = %q, want city passed through intact", gotQ)
	}
}

func TestFetchCurrent_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "404 status",
			status: http.StatusNotFound,
			body:   `{"cod":"404","message":"city not found"}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("err = %v, want ErrNotFound", err)
				}
			},
		},
		{
			name:   "404 cod in 200 body",
			status: http.StatusOK,
			body:   `{"cod":"404","message":"city not found"}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("err = %v, want ErrNotFound", err)
				}
			},
		},
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"cod":401,"message":"Invalid API key"}`,
			check: func(t *testing.T, err error) {
				var netErr *NetworkError
				if !errors.As(err, &netErr) {
					t.Fatalf("err = %v, want *NetworkError", err)
				}
				if netErr.StatusCode != http.StatusUnauthorized {
					t.Errorf("StatusCode = %d, want 401", netErr.StatusCode)
				}
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `oops`,
			check: func(t *testing.T, err error) {
				var netErr *NetworkError
				if !errors.As(err, &netErr) {
					t.Fatalf("err = %v, want *NetworkError", err)
				}
			},
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   `{"name": "Paris", "main": `,
			check: func(t *testing.T, err error) {
				var decErr *DecodeError
				if !errors.As(err, &decErr) {
					t.Errorf("err = %v, want *DecodeError", err)
				}
			},
		},
		{
			name:   "missing main",
			status: http.StatusOK,
			body:   `{"name": "Paris", "wind": {"speed": 1}}`,
			check: func(t *testing.T, err error) {
				var decErr *DecodeError
				if !errors.As(err, &decErr) {
					t.Errorf("err = %v, want *DecodeError", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, 0)
			cw, err := c.FetchCurrent(context.Background(), "Nowhere")
			if err == nil {
				t.Fatalf("expected error, got %+v", cw)
			}
			tt.check(t, err)
		})
	}
}

func TestFetchCurrent_SingleAttemptByDefault(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 0)

	if _, err := c.FetchCurrent(context.Background(), "Paris"); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestFetchCurrent_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(parisCurrent))
	}, 2)

	if _, err := c.FetchCurrent(context.Background(), "Paris"); err != nil {
		t.Fatalf("FetchCurrent: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestFetchCurrent_NoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, 3)

	if _, err := c.FetchCurrent(context.Background(), "Atlantis"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestFetchCurrent_EmptyCity(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}, 0)

	if _, err := c.FetchCurrent(context.Background(), "   "); !errors.Is(err, ErrEmptyCity) {
		t.Fatalf("err = %v, want ErrEmptyCity", err)
	}
	if calls.Load() != 0 {
		t.Error("expected no request for empty city")
	}
}

func TestFetchCurrent_ContextTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 0)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchCurrent(ctx, "Paris")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want *NetworkError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapped context.DeadlineExceeded", err)
	}
}

func TestFetchCurrent_OversizedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "Paris", "message": "`))
		w.Write([]byte(strings.Repeat("x", maxResponseBody+1024)))
		w.Write([]byte(`"}`))
	}, 0)

	_, err := c.FetchCurrent(context.Background(), "Paris")
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("err = %v, want *DecodeError for a body cut at the read limit", err)
	}
}

func TestFetchForecast(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(forecastBody(8)))
	}, 0)

	days, err := c.FetchForecast(context.Background(), "Paris")
	if err != nil {
		t.Fatalf("FetchForecast: %v", err)
	}
	if gotPath != "/forecast" {
		t.Errorf("path = %q, want /forecast", gotPath)
	}
	if len(days) != models.ForecastDays {
		t.Fatalf("len(days) = %d, want %d", len(days), models.ForecastDays)
	}
	d := days[0]
	if d.Temperature != 50.5 || d.Humidity != 70 || d.WindSpeed != 3.2 {
		t.Errorf("day[0] = %+v", d)
	}
	if d.Conditions != "light rain" {
		t.Errorf("Conditions = %q, want light rain", d.Conditions)
	}
	if !d.Date.Equal(time.Unix(1700010800, 0)) {
		t.Errorf("Date = %v", d.Date)
	}
}

func TestFetchForecast_ShortList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(forecastBody(3)))
	}, 0)

	_, err := c.FetchForecast(context.Background(), "Paris")
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("err = %v, want *DecodeError", err)
	}
}

func TestRespCode(t *testing.T) {
	tests := []struct {
		json     string
		notFound bool
	}{
		{`{"cod": "404"}`, true},
		{`{"cod": 404}`, true},
		{`{"cod": 200}`, false},
		{`{"cod": "200"}`, false},
		{`{"cod": null}`, false},
		{`{}`, false},
	}
	for _, tt := range tests {
		var v struct {
			Cod respCode `json:"cod"`
		}
		if err := json.Unmarshal([]byte(tt.json), &v); err != nil {
			t.Errorf("unmarshal %s: %v", tt.json, err)
			continue
		}
		if got := v.Cod.notFound(); got != tt.notFound {
			t.Errorf("%s: notFound = %v, want %v", tt.json, got, tt.notFound)
		}
	}
}

func TestTruncateBody(t *testing.T) {
	t.Run("short string unchanged", func(t *testing.T) {
		input := "hello world"
		if got := truncateBody([]byte(input)); got != input {
			t.Errorf("truncateBody() = %q, want %q", got, input)
		}
	})

	t.Run("over 512 chars truncated", func(t *testing.T) {
		input := strings.Repeat("x", 600)
		got := truncateBody([]byte(input))
		if !strings.HasPrefix(got, strings.Repeat("x", 512)) {
			t.Error("truncateBody() should start with 512 'x' characters")
		}
		if !strings.HasSuffix(got, "...(truncated)") {
			t.Error("truncateBody() should end with truncation marker")
		}
	})
}
