package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRecord is returned by stores when a record fails validation.
var ErrInvalidRecord = errors.New("invalid record")

// DateLayout is the calendar-date format accepted by search filters.
const DateLayout = "2006-01-02"

// ErrorRecord is one classified error, immutable once persisted.
type ErrorRecord struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	ResponseTime int       `json:"response_time"` // milliseconds, 0 = unknown
	CreatedAt    time.Time `json:"created_at"`
}

// NewRecord is the insert payload. A zero Timestamp means "now".
type NewRecord struct {
	Level        string    `json:"level"`
	Message      string    `json:"message"`
	ResponseTime int       `json:"response_time"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

// Validate checks the invariants every store enforces before writing.
// Levels are free-form so only emptiness is rejected.
func (r NewRecord) Validate() error {
	if strings.TrimSpace(r.Level) == "" {
		return fmt.Errorf("%w: empty level", ErrInvalidRecord)
	}
	if r.ResponseTime < 0 {
		return fmt.Errorf("%w: negative response time %d", ErrInvalidRecord, r.ResponseTime)
	}
	return nil
}

// SearchOpts filters a newest-first record query.
type SearchOpts struct {
	Limit    int
	Text     string    // case-sensitive substring of message, empty = any
	DateFrom time.Time // inclusive calendar date, zero = unbounded
	DateTo   time.Time // inclusive calendar date, zero = unbounded
}

// Bucket is one fixed-width slice of an aggregation window.
type Bucket struct {
	Start           time.Time `json:"bucket_start"`
	ErrorCount      int64     `json:"error_count"`
	AvgResponseTime float64   `json:"avg_response_time"`
}

// DayBounds converts inclusive calendar-date filters into a half-open instant
// range [from, to) in loc. Zero inputs produce zero outputs.
func DayBounds(dateFrom, dateTo time.Time, loc *time.Location) (from, to time.Time) {
	if !dateFrom.IsZero() {
		y, m, d := dateFrom.In(loc).Date()
		from = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	if !dateTo.IsZero() {
		y, m, d := dateTo.In(loc).Date()
		to = time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
	return from, to
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
}
