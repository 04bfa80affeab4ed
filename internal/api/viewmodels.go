package api

import "html/template"

// PanelView is the data for the history panel fragment.
type PanelView struct {
	Items []string
	// OOB marks the panel for an out-of-band swap when it rides along with
	// search results.
	OOB bool
}

// ResultsView is the data for the search results fragment.
type ResultsView struct {
	CurrentHTML  template.HTML
	ForecastHTML template.HTML
	Panel        PanelView
}

type HealthStatus struct {
	Status       string `json:"status"`
	HistoryItems int    `json:"history_items"`
	Error        string `json:"error,omitempty"`
}
