// Package search orchestrates a city lookup: validate the input, fetch
// current conditions then the forecast, render both, and record the city in
// history.
package search

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lox/cityweather/internal/metrics"
	"github.com/lox/cityweather/internal/models"
	"github.com/lox/cityweather/internal/openweather"
)

const DefaultTimeout = 15 * time.Second

// historyTimeout bounds the history write that follows a successful search.
const historyTimeout = 5 * time.Second

// User-facing notices.
const (
	NoticeBlankCity    = "Please enter a city name"
	NoticeSearchFailed = "An error occurred while fetching data. Please try again."
	NoticeCityNotFound = "City not found. Please enter a valid city name."
	NoticeLookupFailed = "An error occurred while fetching data for the selected city. Please try again."
)

var ErrBlankCity = errors.New("blank city name")

type State int

const (
	Idle State = iota
	Fetching
	Rendered
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Rendered:
		return "rendered"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// WeatherClient is the subset of the API client the controller needs.
type WeatherClient interface {
	FetchCurrent(ctx context.Context, city string) (*models.CurrentWeather, error)
	FetchForecast(ctx context.Context, city string) ([]models.ForecastDay, error)
	Units() models.Units
}

type Renderer interface {
	RenderCurrent(w io.Writer, cw *models.CurrentWeather) error
	RenderForecast(w io.Writer, days []models.ForecastDay, units models.Units) error
}

type History interface {
	Append(ctx context.Context, city string) (bool, error)
}

// Result is the outcome of one Search or Lookup. On failure only Notice and
// State are set.
type Result struct {
	State    State
	City     string
	Current  *models.CurrentWeather
	Forecast []models.ForecastDay
	// CurrentHTML and ForecastHTML hold the rendered fragments.
	CurrentHTML  template.HTML
	ForecastHTML template.HTML
	// Added reports whether City was newly inserted into history.
	Added  bool
	Notice string
}

type Controller struct {
	client   WeatherClient
	renderer Renderer
	history  History
	timeout  time.Duration
	tracer   trace.Tracer

	// mu serializes invocations so two searches cannot interleave their
	// render and history writes.
	mu    sync.Mutex
	state State
}

func New(client WeatherClient, renderer Renderer, history History, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Controller{
		client:   client,
		renderer: renderer,
		history:  history,
		timeout:  timeout,
		tracer:   otel.Tracer("github.com/lox/cityweather/internal/search"),
	}
}

// State returns the state left by the most recent invocation.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Search runs the full current + forecast pipeline for input. The forecast
// is requested only after current conditions were retrieved successfully.
func (c *Controller) Search(ctx context.Context, input string) (*Result, error) {
	city := strings.TrimSpace(input)
	if city == "" {
		metrics.SearchesTotal.WithLabelValues("search", "blank").Inc()
		return &Result{State: Idle, Notice: NoticeBlankCity}, ErrBlankCity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "search", trace.WithAttributes(attribute.String("weather.query", city)))
	defer span.End()

	c.state = Fetching

	current, err := c.client.FetchCurrent(ctx, city)
	if err != nil {
		return c.fail(span, "search", city, NoticeSearchFailed, fmt.Errorf("fetch current weather: %w", err))
	}
	forecast, err := c.client.FetchForecast(ctx, city)
	if err != nil {
		return c.fail(span, "search", city, NoticeSearchFailed, fmt.Errorf("fetch forecast: %w", err))
	}

	res := &Result{
		City:     current.City,
		Current:  current,
		Forecast: forecast,
	}
	if res.CurrentHTML, err = c.renderCurrent(current); err != nil {
		return c.fail(span, "search", city, NoticeSearchFailed, err)
	}
	var buf bytes.Buffer
	if err := c.renderer.RenderForecast(&buf, forecast, current.Units); err != nil {
		return c.fail(span, "search", city, NoticeSearchFailed, err)
	}
	res.ForecastHTML = template.HTML(buf.String())

	c.state = Rendered
	res.State = Rendered

	// History uses the upstream spelling of the city, not the raw input. The
	// write is not bound to the fetch deadline.
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
	defer cancelPersist()
	added, err := c.history.Append(persistCtx, current.City)
	if err != nil {
		log.Printf("search: record %q in history: %v", current.City, err)
	}
	res.Added = added

	metrics.SearchesTotal.WithLabelValues("search", "ok").Inc()
	return res, nil
}

// Lookup fetches and renders current conditions only. It is the path taken
// when a history entry is selected and does not touch history.
func (c *Controller) Lookup(ctx context.Context, city string) (*Result, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		metrics.SearchesTotal.WithLabelValues("lookup", "blank").Inc()
		return &Result{State: Idle, Notice: NoticeBlankCity}, ErrBlankCity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, span := c.tracer.Start(ctx, "lookup", trace.WithAttributes(attribute.String("weather.query", city)))
	defer span.End()

	c.state = Fetching

	current, err := c.client.FetchCurrent(ctx, city)
	if err != nil {
		notice := NoticeLookupFailed
		if errors.Is(err, openweather.ErrNotFound) {
			notice = NoticeCityNotFound
		}
		return c.fail(span, "lookup", city, notice, fmt.Errorf("fetch current weather: %w", err))
	}

	res := &Result{City: current.City, Current: current}
	if res.CurrentHTML, err = c.renderCurrent(current); err != nil {
		return c.fail(span, "lookup", city, NoticeLookupFailed, err)
	}

	c.state = Rendered
	res.State = Rendered
	metrics.SearchesTotal.WithLabelValues("lookup", "ok").Inc()
	return res, nil
}

func (c *Controller) renderCurrent(cw *models.CurrentWeather) (template.HTML, error) {
	var buf bytes.Buffer
	if err := c.renderer.RenderCurrent(&buf, cw); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// fail must be called with c.mu held.
func (c *Controller) fail(span trace.Span, kind, city, notice string, err error) (*Result, error) {
	c.state = Failed
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.SearchesTotal.WithLabelValues(kind, "failed").Inc()
	log.Printf("%s %q: %v", kind, city, err)
	return &Result{State: Failed, City: city, Notice: notice}, err
}
