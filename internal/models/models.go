package models

import (
	"fmt"
	"time"
)

// Units selects the unit system requested from the weather API.
type Units string

const (
	UnitsImperial Units = "imperial"
	UnitsMetric   Units = "metric"
)

// ParseUnits validates a units string from configuration.
func ParseUnits(s string) (Units, error) {
	switch Units(s) {
	case UnitsImperial, UnitsMetric:
		return Units(s), nil
	}
	return "", fmt.Errorf("unknown units %q (want imperial or metric)", s)
}

// TempLabel returns the display suffix for temperatures.
func (u Units) TempLabel() string {
	if u == UnitsMetric {
		return "°C"
	}
	return "°F"
}

// SpeedLabel returns the display suffix for wind speeds.
func (u Units) SpeedLabel() string {
	if u == UnitsMetric {
		return "m/s"
	}
	return "mph"
}

type CurrentWeather struct {
	City        string
	Country     string // empty when upstream omits sys.country
	ObservedAt  time.Time
	Temperature float64
	Humidity    int
	WindSpeed   float64
	Conditions  string
	Units       Units
}

type ForecastDay struct {
	Date        time.Time // upstream sample time, not a calendar day
	Temperature float64
	Humidity    int
	WindSpeed   float64
	Conditions  string
}

// ForecastDays is the number of forecast entries rendered per search.
const ForecastDays = 5
