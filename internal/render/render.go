// Package render turns weather records into the HTML fragments shown in the
// current-weather and forecast regions of the page.
package render

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/lox/cityweather/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// DateLayout matches the month/day/year display of the page (e.g. 11/14/2023).
const DateLayout = "1/2/2006"

type Renderer struct {
	tmpl *template.Template
	loc  *time.Location
	now  func() time.Time
}

// New returns a Renderer that formats dates in loc. now supplies "today" for
// forecast dates; nil means time.Now.
func New(loc *time.Location, now func() time.Time) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	funcs := template.FuncMap{
		// A Caser is stateful, so build one per call.
		"title": func(s string) string {
			return cases.Title(language.English).String(s)
		},
	}
	return &Renderer{
		tmpl: template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")),
		loc:  loc,
		now:  now,
	}
}

type currentView struct {
	Place      string
	Date       string
	Temp       string
	TempLabel  string
	Wind       string
	SpeedLabel string
	Humidity   int
	Conditions string
}

type dayView struct {
	Date       string
	Sample     string
	Temp       string
	Wind       string
	Humidity   int
	Conditions string
}

type forecastView struct {
	Days       []dayView
	TempLabel  string
	SpeedLabel string
}

// RenderCurrent writes the current-weather fragment.
func (r *Renderer) RenderCurrent(w io.Writer, cw *models.CurrentWeather) error {
	if cw == nil {
		return fmt.Errorf("render current: nil weather")
	}
	place := cw.City
	if cw.Country != "" {
		place = cw.City + ", " + cw.Country
	}
	view := currentView{
		Place:      place,
		Date:       cw.ObservedAt.In(r.loc).Format(DateLayout),
		Temp:       formatNumber(cw.Temperature),
		TempLabel:  cw.Units.TempLabel(),
		Wind:       formatNumber(cw.WindSpeed),
		SpeedLabel: cw.Units.SpeedLabel(),
		Humidity:   cw.Humidity,
		Conditions: cw.Conditions,
	}
	if err := r.tmpl.ExecuteTemplate(w, "current", view); err != nil {
		return fmt.Errorf("render current: %w", err)
	}
	return nil
}

// RenderForecast writes one forecast-day block per day, in order, with a
// forecast-separator between consecutive blocks.
//
// Displayed dates are today+1, today+2, ... from the renderer's clock, not
// the upstream sample times (which are three hours apart). The sample time
// is kept in the datetime attribute.
func (r *Renderer) RenderForecast(w io.Writer, days []models.ForecastDay, units models.Units) error {
	today := r.now().In(r.loc)
	view := forecastView{
		Days:       make([]dayView, 0, len(days)),
		TempLabel:  units.TempLabel(),
		SpeedLabel: units.SpeedLabel(),
	}
	for i, d := range days {
		view.Days = append(view.Days, dayView{
			Date:       ForecastDate(today, i).Format(DateLayout),
			Sample:     d.Date.UTC().Format(time.RFC3339),
			Temp:       formatNumber(d.Temperature),
			Wind:       formatNumber(d.WindSpeed),
			Humidity:   d.Humidity,
			Conditions: d.Conditions,
		})
	}
	if err := r.tmpl.ExecuteTemplate(w, "forecast", view); err != nil {
		return fmt.Errorf("render forecast: %w", err)
	}
	return nil
}

// ForecastDate returns the calendar date displayed for forecast entry index:
// today plus index+1 days, at noon to stay clear of DST transitions.
func ForecastDate(today time.Time, index int) time.Time {
	return time.Date(today.Year(), today.Month(), today.Day()+index+1, 12, 0, 0, 0, today.Location())
}

// formatNumber prints the shortest representation, so 5 renders as "5".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
