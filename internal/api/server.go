package api

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/cityweather/internal/history"
	"github.com/lox/cityweather/internal/search"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the weather page and the fragments that update its regions.
type Server struct {
	controller *search.Controller
	history    *history.History
	store      Pinger
	port       string
	tmpl       *template.Template
}

// NewServer expects hist to have been loaded already; the panel is rendered
// from its in-memory list.
func NewServer(controller *search.Controller, hist *history.History, store Pinger, port string) *Server {
	return &Server{
		controller: controller,
		history:    hist,
		store:      store,
		port:       port,
		tmpl:       newTemplates(),
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/", s.handleIndex)
	r.Post("/search", s.handleSearch)
	r.Get("/lookup", s.handleLookup)
	r.Get("/history", s.handleHistoryPartial)
	r.Post("/history/clear", s.handleClearHistory)
	r.Get("/api/history", s.handleAPIHistory)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
