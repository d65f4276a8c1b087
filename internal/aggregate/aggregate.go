package aggregate

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tinytelemetry/errwatch/internal/model"
)

// Config holds aggregation defaults.
type Config struct {
	Window   time.Duration
	Bucket   time.Duration
	Lookback time.Duration
}

// Engine derives time-bucketed statistics from the store on every call.
type Engine struct {
	reader model.RecordReader
	cfg    Config
}

// New creates an engine. Zero config fields use the package defaults.
func New(reader model.RecordReader, cfg Config) *Engine {
	if cfg.Window <= 0 {
		cfg.Window = model.DefaultAggregationWindow
	}
	if cfg.Bucket <= 0 {
		cfg.Bucket = model.DefaultBucketWidth
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = model.DefaultDeltaLookback
	}
	return &Engine{reader: reader, cfg: cfg}
}

// MaxBuckets caps the series length of one Buckets call (a day of
// one-minute buckets).
const MaxBuckets = 1440

// ErrInvalidBuckets is returned for a non-positive window or width, or a
// width so small the series would exceed MaxBuckets.
var ErrInvalidBuckets = errors.New("aggregate: invalid window or bucket width")

// Buckets splits [now-window, now) into ceil(window/width) contiguous
// half-open buckets, oldest first. The last bucket is cut short at now when
// window is not a multiple of width. Buckets without records are included
// with zero values. Zero durations use the configured defaults.
func (e *Engine) Buckets(now time.Time, window, width time.Duration) ([]model.Bucket, error) {
	if window == 0 {
		window = e.cfg.Window
	}
	if width == 0 {
		width = e.cfg.Bucket
	}
	if window < 0 || width < 0 {
		return nil, ErrInvalidBuckets
	}
	// The division guard keeps width*MaxBuckets from overflowing.
	if window/width >= MaxBuckets && window > width*MaxBuckets {
		return nil, fmt.Errorf("%w: %s in %s buckets exceeds %d", ErrInvalidBuckets, window, width, MaxBuckets)
	}

	start := now.Add(-window)
	n := int(window / width)
	if window%width != 0 {
		n++
	}
	records, err := e.reader.QueryRange(start, now)
	if err != nil {
		return nil, fmt.Errorf("aggregate: query range: %w", err)
	}

	counts := make([]int64, n)
	sums := make([]int64, n)
	for _, r := range records {
		i := int(r.Timestamp.Sub(start) / width)
		if i < 0 || i >= n {
			continue
		}
		counts[i]++
		sums[i] += int64(r.ResponseTime)
	}

	buckets := make([]model.Bucket, n)
	for i := range buckets {
		b := model.Bucket{Start: start.Add(time.Duration(i) * width), ErrorCount: counts[i]}
		if counts[i] > 0 {
			b.AvgResponseTime = round1(float64(sums[i]) / float64(counts[i]))
		}
		buckets[i] = b
	}
	return buckets, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// DeltaKind classifies a period-over-period comparison.
type DeltaKind string

const (
	DeltaChange    DeltaKind = "change"
	DeltaNew       DeltaKind = "new"
	DeltaUnchanged DeltaKind = "unchanged"
	DeltaNone      DeltaKind = "none"
)

// Delta compares the current lookback period with the one before it.
type Delta struct {
	Current  int64     `json:"current"`
	Previous int64     `json:"previous"`
	Diff     int64     `json:"diff"`
	Percent  float64   `json:"percent"` // meaningful only for DeltaChange
	Kind     DeltaKind `json:"kind"`
}

// NewDelta classifies a current and previous count.
func NewDelta(current, previous int64) Delta {
	d := Delta{Current: current, Previous: previous, Diff: current - previous}
	switch {
	case current == 0 && previous == 0:
		d.Kind = DeltaNone
	case previous == 0:
		d.Kind = DeltaNew
	case d.Diff == 0:
		d.Kind = DeltaUnchanged
	default:
		d.Kind = DeltaChange
		d.Percent = float64(d.Diff) / float64(previous) * 100
	}
	return d
}

// String renders the delta for display, e.g. "+5 (+50.0%)".
func (d Delta) String() string {
	switch d.Kind {
	case DeltaNone:
		return "no errors"
	case DeltaNew:
		return fmt.Sprintf("+%d (new)", d.Current)
	case DeltaUnchanged:
		return "no change"
	}
	if d.Diff > 0 {
		return fmt.Sprintf("+%d (+%.1f%%)", d.Diff, d.Percent)
	}
	return fmt.Sprintf("%d (%.1f%%)", d.Diff, d.Percent)
}

// Delta counts records in [now-lookback, ∞) against [now-2*lookback,
// now-lookback). A zero lookback uses the configured default.
func (e *Engine) Delta(now time.Time, lookback time.Duration) (Delta, error) {
	if lookback == 0 {
		lookback = e.cfg.Lookback
	}
	if lookback < 0 {
		return Delta{}, errors.New("aggregate: lookback must be positive")
	}

	boundary := now.Add(-lookback)
	current, err := e.reader.CountRange(boundary, time.Time{})
	if err != nil {
		return Delta{}, fmt.Errorf("aggregate: count current: %w", err)
	}
	previous, err := e.reader.CountRange(boundary.Add(-lookback), boundary)
	if err != nil {
		return Delta{}, fmt.Errorf("aggregate: count previous: %w", err)
	}
	return NewDelta(current, previous), nil
}
