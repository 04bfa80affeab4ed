package openweather

import (
	"bytes"
	"encoding/json"
)

// respCode holds the "cod" field, which the API sends as a number on some
// endpoints and as a string on others.
type respCode string

func (c *respCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = respCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = respCode(n.String())
	return nil
}

func (c respCode) notFound() bool {
	return c == "404"
}

type weatherCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type mainBlock struct {
	Temp     *float64 `json:"temp"`
	Humidity *int     `json:"humidity"`
}

type windBlock struct {
	Speed *float64 `json:"speed"`
}

// CurrentResponse is the body of GET /weather.
type CurrentResponse struct {
	Name    string             `json:"name"`
	DT      int64              `json:"dt"`
	Weather []weatherCondition `json:"weather"`
	Main    mainBlock          `json:"main"`
	Wind    windBlock          `json:"wind"`
	Sys     struct {
		Country string `json:"country"`
	} `json:"sys"`
	Cod     respCode `json:"cod"`
	Message string   `json:"message"`
}

// ForecastResponse is the body of GET /forecast.
type ForecastResponse struct {
	Cod  respCode        `json:"cod"`
	Cnt  int             `json:"cnt"`
	List []ForecastEntry `json:"list"`
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"city"`
	Message json.RawMessage `json:"message"`
}

// ForecastEntry is one periodic (3-hourly) forecast sample.
type ForecastEntry struct {
	DT      int64              `json:"dt"`
	Main    mainBlock          `json:"main"`
	Wind    windBlock          `json:"wind"`
	Weather []weatherCondition `json:"weather"`
	DTText  string             `json:"dt_txt"`
}
