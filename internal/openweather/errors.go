package openweather

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the upstream does not recognise the city.
	ErrNotFound = errors.New("city not found")
	// ErrEmptyCity is returned when a fetch is attempted without a city name.
	ErrEmptyCity = errors.New("empty city name")
)

// NetworkError covers transport failures and non-success HTTP statuses.
// StatusCode is zero when no response was received.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError is returned when a response body cannot be parsed into a record.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

const maxErrorBody = 512

func truncateBody(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}
	return string(b[:maxErrorBody]) + "...(truncated)"
}
