package api

import (
	"encoding/json"
	"log"
	"net/http"
)

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	items := s.historyItems(r)
	if items == nil {
		items = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(items); err != nil {
		log.Printf("history: write response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:       "ok",
		HistoryItems: len(s.history.Items()),
	}
	if err := s.store.Ping(r.Context()); err != nil {
		health.Status = "error"
		health.Error = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		log.Printf("health: write response: %v", err)
	}
}
