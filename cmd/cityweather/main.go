package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/lox/cityweather/internal/api"
	"github.com/lox/cityweather/internal/history"
	"github.com/lox/cityweather/internal/htmlutil"
	"github.com/lox/cityweather/internal/models"
	"github.com/lox/cityweather/internal/openweather"
	"github.com/lox/cityweather/internal/render"
	"github.com/lox/cityweather/internal/search"
	"github.com/lox/cityweather/internal/store"
	"github.com/lox/cityweather/internal/tracing"
)

type Globals struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,help='Path to a .env file to load before reading the environment.'"`

	APIKey        string        `name:"api-key" env:"OPENWEATHER_API_KEY" help:"OpenWeatherMap API key."`
	BaseURL       string        `name:"base-url" env:"OPENWEATHER_BASE_URL" default:"${default_base_url}" help:"OpenWeatherMap API base URL."`
	Units         string        `name:"units" env:"CITYWEATHER_UNITS" enum:"imperial,metric" default:"imperial" help:"Unit system for every lookup (${enum})."`
	DB            string        `name:"db" env:"CITYWEATHER_DB" default:"data/cityweather.db" help:"Path to SQLite database holding search history."`
	HTTPTimeout   time.Duration `name:"http-timeout" env:"CITYWEATHER_HTTP_TIMEOUT" default:"10s" help:"Timeout for each upstream HTTP request."`
	SearchTimeout time.Duration `name:"search-timeout" env:"CITYWEATHER_SEARCH_TIMEOUT" default:"15s" help:"Deadline for a whole search (current + forecast)."`
	Retries       int           `name:"retries" env:"CITYWEATHER_RETRIES" default:"0" help:"Extra attempts on transport errors and 5xx responses."`
	ZipkinURL     string        `name:"zipkin-url" env:"ZIPKIN_URL" help:"Zipkin span endpoint; tracing export is disabled when empty."`
}

type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Run the weather page on a local HTTP server."`
	Lookup  LookupCmd  `cmd:"" help:"Look up a city and print current weather and forecast."`
	History HistoryCmd `cmd:"" help:"Show or clear search history."`
}

// app holds the wired components shared by all commands.
type app struct {
	store      *store.Store
	history    *history.History
	controller *search.Controller
}

func (g *Globals) open(ctx context.Context, needClient bool) (*app, error) {
	if needClient && g.APIKey == "" {
		return nil, errors.New("OPENWEATHER_API_KEY (or --api-key) is required")
	}
	units, err := models.ParseUnits(g.Units)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(g.DB); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	st, err := store.Open(g.DB)
	if err != nil {
		return nil, err
	}

	hist := history.New(st)
	if _, err := hist.Load(ctx); err != nil {
		st.Close()
		return nil, err
	}

	client := openweather.NewClient(openweather.Config{
		APIKey:  g.APIKey,
		BaseURL: g.BaseURL,
		Units:   units,
		Timeout: g.HTTPTimeout,
		Retries: g.Retries,
	})
	ctrl := search.New(client, render.New(time.Local, nil), hist, g.SearchTimeout)

	return &app{store: st, history: hist, controller: ctrl}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

type ServeCmd struct {
	Port string `name:"port" env:"PORT" default:"8080" help:"HTTP server port."`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Setup("cityweather", g.ZipkinURL)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	a, err := g.open(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()
	log.Printf("loaded %d history entries from %s", len(a.history.Items()), g.DB)

	server := api.NewServer(a.controller, a.history, a.store, c.Port)
	log.Printf("starting server on :%s", c.Port)
	return server.Run(ctx)
}

type LookupCmd struct {
	City        string `arg:"" help:"City name, e.g. \"Paris\" or \"Portland,US\"."`
	CurrentOnly bool   `name:"current-only" help:"Fetch current conditions only, without recording history."`
}

func (c *LookupCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Setup("cityweather", g.ZipkinURL)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	a, err := g.open(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	var res *search.Result
	if c.CurrentOnly {
		res, err = a.controller.Lookup(ctx, c.City)
	} else {
		res, err = a.controller.Search(ctx, c.City)
	}
	if err != nil {
		return errors.New(res.Notice)
	}

	fmt.Println(htmlutil.ToText(string(res.CurrentHTML)))
	if res.ForecastHTML != "" {
		fmt.Println()
		fmt.Println("5-Day Forecast:")
		fmt.Println(htmlutil.ToText(string(res.ForecastHTML)))
	}
	return nil
}

type HistoryCmd struct {
	List  HistoryListCmd  `cmd:"" default:"1" help:"Print search history, most recent first."`
	Clear HistoryClearCmd `cmd:"" help:"Remove all search history."`
}

type HistoryListCmd struct{}

func (c *HistoryListCmd) Run(g *Globals) error {
	a, err := g.open(context.Background(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, city := range a.history.Items() {
		fmt.Println(city)
	}
	return nil
}

type HistoryClearCmd struct{}

func (c *HistoryClearCmd) Run(g *Globals) error {
	ctx := context.Background()
	a, err := g.open(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.history.Clear(ctx); err != nil {
		return err
	}
	log.Println("search history cleared")
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("cityweather"),
		kong.Description("Current weather and a five-day forecast for any city, with search history."),
		kong.UsageOnError(),
		kong.Vars{"default_base_url": openweather.DefaultBaseURL},
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		log.Fatalf("%v", err)
	}
}
