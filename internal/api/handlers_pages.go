package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/lox/cityweather/internal/openweather"
	"github.com/lox/cityweather/internal/search"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", PanelView{Items: s.historyItems(r)}); err != nil {
		log.Printf("template error: %v", err)
	}
}

// handleSearch swaps in the results on success. On failure only the notice
// region is replaced, so the previously displayed weather stays in place.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	res, err := s.controller.Search(r.Context(), r.PostForm.Get("city"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		w.Header().Set("HX-Retarget", "#notice")
		w.Header().Set("HX-Reswap", "innerHTML")
		w.WriteHeader(searchStatus(err))
		if err := s.tmpl.ExecuteTemplate(w, "notice", res.Notice); err != nil {
			log.Printf("template error: %v", err)
		}
		return
	}

	view := ResultsView{
		CurrentHTML:  res.CurrentHTML,
		ForecastHTML: res.ForecastHTML,
		Panel:        PanelView{Items: s.history.Items(), OOB: true},
	}
	if err := s.tmpl.ExecuteTemplate(w, "results", view); err != nil {
		log.Printf("template error: %v", err)
	}
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	res, err := s.controller.Lookup(r.Context(), r.URL.Query().Get("city"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err != nil {
		status := searchStatus(err)
		if errors.Is(err, openweather.ErrNotFound) {
			status = http.StatusNotFound
		}
		w.WriteHeader(status)
		if err := s.tmpl.ExecuteTemplate(w, "notice", res.Notice); err != nil {
			log.Printf("template error: %v", err)
		}
		return
	}
	w.Write([]byte(res.CurrentHTML))
}

func (s *Server) handleHistoryPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "history", PanelView{Items: s.historyItems(r)}); err != nil {
		log.Printf("template error: %v", err)
	}
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.history.Clear(r.Context()); err != nil {
		log.Printf("clear history: %v", err)
		http.Error(w, "could not clear history", http.StatusInternalServerError)
		return
	}
	s.handleHistoryPartial(w, r)
}

// historyItems reloads the list so entries written by another process using
// the same database show up. On a store error the in-memory list is used.
func (s *Server) historyItems(r *http.Request) []string {
	items, err := s.history.Load(r.Context())
	if err != nil {
		log.Printf("reload history: %v", err)
		return s.history.Items()
	}
	return items
}

// searchStatus maps a controller error to the response status. Upstream
// failures, not-found included, are reported as a bad gateway.
func searchStatus(err error) int {
	if errors.Is(err, search.ErrBlankCity) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}
