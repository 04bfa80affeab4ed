package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/lox/cityweather/internal/httputil"
	"github.com/lox/cityweather/internal/metrics"
	"github.com/lox/cityweather/internal/models"
)

const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// maxResponseBody caps how much of an upstream body is read. A five-day
// forecast is well under 100KB.
const maxResponseBody = 4 << 20

const (
	endpointCurrent  = "weather"
	endpointForecast = "forecast"
)

type Config struct {
	APIKey  string
	BaseURL string
	Units   models.Units
	Timeout time.Duration
	// Retries is the number of extra attempts after a transport error or 5xx.
	// Zero means a single attempt.
	Retries int
}

// Client fetches current conditions and forecasts from OpenWeatherMap.
type Client struct {
	apiKey  string
	baseURL string
	units   models.Units
	retries int
	client  *http.Client
	tracer  trace.Tracer
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	units := cfg.Units
	if units == "" {
		units = models.UnitsImperial
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		units:   units,
		retries: retries,
		client:  httputil.NewClient(cfg.Timeout),
		tracer:  otel.Tracer("github.com/lox/cityweather/internal/openweather"),
	}
}

// Units returns the unit system every request is made in.
func (c *Client) Units() models.Units {
	return c.units
}

// FetchCurrent returns the current conditions for city.
func (c *Client) FetchCurrent(ctx context.Context, city string) (*models.CurrentWeather, error) {
	body, err := c.get(ctx, endpointCurrent, city)
	if err != nil {
		return nil, err
	}

	var data CurrentResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &DecodeError{Op: endpointCurrent, Err: err}
	}
	return c.parseCurrent(city, &data)
}

func (c *Client) parseCurrent(city string, data *CurrentResponse) (*models.CurrentWeather, error) {
	if data.Cod.notFound() {
		return nil, fmt.Errorf("%s %q: %w", endpointCurrent, city, ErrNotFound)
	}
	if data.Name == "" {
		return nil, &DecodeError{Op: endpointCurrent, Err: errors.New("missing name")}
	}
	if data.Main.Temp == nil || data.Main.Humidity == nil {
		return nil, &DecodeError{Op: endpointCurrent, Err: errors.New("missing main.temp or main.humidity")}
	}
	if data.Wind.Speed == nil {
		return nil, &DecodeError{Op: endpointCurrent, Err: errors.New("missing wind.speed")}
	}

	cw := &models.CurrentWeather{
		City:        data.Name,
		Country:     data.Sys.Country,
		ObservedAt:  time.Unix(data.DT, 0).UTC(),
		Temperature: *data.Main.Temp,
		Humidity:    *data.Main.Humidity,
		WindSpeed:   *data.Wind.Speed,
		Units:       c.units,
	}
	if len(data.Weather) > 0 {
		cw.Conditions = data.Weather[0].Description
	}
	return cw, nil
}

// FetchForecast returns the first models.ForecastDays samples of the
// periodic forecast for city. Samples are typically three hours apart.
func (c *Client) FetchForecast(ctx context.Context, city string) ([]models.ForecastDay, error) {
	body, err := c.get(ctx, endpointForecast, city)
	if err != nil {
		return nil, err
	}

	var data ForecastResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, &DecodeError{Op: endpointForecast, Err: err}
	}
	return parseForecast(city, &data)
}

func parseForecast(city string, data *ForecastResponse) ([]models.ForecastDay, error) {
	if data.Cod.notFound() {
		return nil, fmt.Errorf("%s %q: %w", endpointForecast, city, ErrNotFound)
	}
	if len(data.List) < models.ForecastDays {
		return nil, &DecodeError{
			Op:  endpointForecast,
			Err: fmt.Errorf("list has %d entries, want at least %d", len(data.List), models.ForecastDays),
		}
	}

	days := make([]models.ForecastDay, 0, models.ForecastDays)
	for i, item := range data.List[:models.ForecastDays] {
		if item.Main.Temp == nil || item.Main.Humidity == nil || item.Wind.Speed == nil {
			return nil, &DecodeError{Op: endpointForecast, Err: fmt.Errorf("list[%d]: missing main or wind fields", i)}
		}
		day := models.ForecastDay{
			Date:        time.Unix(item.DT, 0).UTC(),
			Temperature: *item.Main.Temp,
			Humidity:    *item.Main.Humidity,
			WindSpeed:   *item.Wind.Speed,
		}
		if len(item.Weather) > 0 {
			day.Conditions = item.Weather[0].Description
		}
		days = append(days, day)
	}
	return days, nil
}

func (c *Client) buildURL(endpoint, city string) string {
	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	params.Set("units", string(c.units))
	return c.baseURL + "/" + endpoint + "?" + params.Encode()
}

// get performs the GET for endpoint and returns the body of a 200 response.
func (c *Client) get(ctx context.Context, endpoint, city string) ([]byte, error) {
	if strings.TrimSpace(city) == "" {
		return nil, ErrEmptyCity
	}

	ctx, span := c.tracer.Start(ctx, "openweather."+endpoint, trace.WithAttributes(
		attribute.String("weather.city", city),
		attribute.String("weather.units", string(c.units)),
	))
	defer span.End()

	reqURL := c.buildURL(endpoint, city)

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", "cityweather/1.0")
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		start := time.Now()
		resp, err := c.client.Do(req)
		metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.APICallsTotal.WithLabelValues(endpoint, "error").Inc()
			netErr := &NetworkError{Op: endpoint, Err: err}
			if ctx.Err() != nil {
				return backoff.Permanent(netErr)
			}
			return netErr
		}
		defer resp.Body.Close()
		metrics.APICallsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return backoff.Permanent(&NetworkError{Op: endpoint, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)})
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = b
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%s %q: %w", endpoint, city, ErrNotFound))
		case resp.StatusCode >= 500:
			return &NetworkError{Op: endpoint, StatusCode: resp.StatusCode, Err: errors.New(truncateBody(b))}
		default:
			return backoff.Permanent(&NetworkError{Op: endpoint, StatusCode: resp.StatusCode, Err: errors.New(truncateBody(b))})
		}
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.retries)), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response_size", len(body)))
	return body, nil
}
