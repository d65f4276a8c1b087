package aggregate

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tinytelemetry/errwatch/internal/duckdb"
	"github.com/tinytelemetry/errwatch/internal/model"
)

var kst = model.DefaultCivilZone

func newTestEngine(t *testing.T) (*Engine, *duckdb.Store) {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, Config{}), store
}

func insertAt(t *testing.T, store *duckdb.Store, ts time.Time, rt int) {
	t.Helper()
	if _, err := store.Insert(model.NewRecord{Level: "ERROR", Message: "x", ResponseTime: rt, Timestamp: ts}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func TestBucketsEmptyStore(t *testing.T) {
	e, _ := newTestEngine(t)
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, kst)

	buckets, err := e.Buckets(now, time.Hour, 5*time.Minute)
	if err != nil {
		t.Fatalf("Buckets: %v", err)
	}
	if len(buckets) != 12 {
		t.Fatalf("got %d buckets, want 12", len(buckets))
	}
	for i, b := range buckets {
		want := now.Add(-time.Hour).Add(time.Duration(i) * 5 * time.Minute)
		if !b.Start.Equal(want) {
			t.Errorf("bucket %d start = %v, want %v", i, b.Start, want)
		}
		if b.ErrorCount != 0 || b.AvgResponseTime != 0 {
			t.Errorf("bucket %d = %+v, want zeros", i, b)
		}
	}
}

func TestBucketsCountsAndAverages(t *testing.T) {
	e, store := newTestEngine(t)
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, kst)
	start := now.Add(-time.Hour)

	insertAt(t, store, start, 100)
	insertAt(t, store, start.Add(4*time.Minute), 201)
	insertAt(t, store, start.Add(5*time.Minute), 300)
	insertAt(t, store, now.Add(-time.Second), 50)
	// Outside the half-open window.
	insertAt(t, store, start.Add(-time.Second), 9999)
	insertAt(t, store, now, 9999)

	buckets, err := e.Buckets(now, 0, 0)
	if err != nil {
		t.Fatalf("Buckets: %v", err)
	}

	var total int64
	for _, b := range buckets {
		total += b.ErrorCount
	}
	if total != 4 {
		t.Errorf("sum of counts = %d, want 4", total)
	}
	if buckets[0].ErrorCount != 2 || buckets[0].AvgResponseTime != 150.5 {
		t.Errorf("bucket 0 = %+v, want 2 / 150.5", buckets[0])
	}
	if buckets[1].ErrorCount != 1 || buckets[1].AvgResponseTime != 300 {
		t.Errorf("bucket 1 = %+v", buckets[1])
	}
	if last := buckets[len(buckets)-1]; last.ErrorCount != 1 || last.AvgResponseTime != 50 {
		t.Errorf("last bucket = %+v", last)
	}
}

func TestBucketsPartialLastBucket(t *testing.T) {
	e, store := newTestEngine(t)
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, kst)
	insertAt(t, store, now.Add(-time.Minute), 10)

	buckets, err := e.Buckets(now, 12*time.Minute, 5*time.Minute)
	if err != nil {
		t.Fatalf("Buckets: %v", err)
	}
	if len(buckets) != 3 {
		t.Fatalf("got %d buckets, want ceil(12/5) = 3", len(buckets))
	}
	if buckets[2].ErrorCount != 1 {
		t.Errorf("partial last bucket count = %d, want 1", buckets[2].ErrorCount)
	}
}

func TestBucketsAverageRounding(t *testing.T) {
	e, store := newTestEngine(t)
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, kst)
	for _, rt := range []int{100, 100, 101} {
		insertAt(t, store, now.Add(-time.Minute), rt)
	}

	buckets, err := e.Buckets(now, 5*time.Minute, 5*time.Minute)
	if err != nil {
		t.Fatalf("Buckets: %v", err)
	}
	if got := buckets[0].AvgResponseTime; got != 100.3 {
		t.Errorf("avg = %v, want 100.3", got)
	}
}

func TestBucketsInvalidWidth(t *testing.T) {
	e, _ := newTestEngine(t)
	now := time.Now()

	tests := []struct {
		name          string
		window, width time.Duration
	}{
		{"negative width", time.Hour, -time.Minute},
		{"negative window", -time.Hour, time.Minute},
		{"nanosecond width", 1000 * time.Hour, time.Nanosecond},
		{"one past the cap", MaxBuckets*time.Minute + time.Second, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Buckets(now, tt.window, tt.width)
			if !errors.Is(err, ErrInvalidBuckets) {
				t.Errorf("err = %v, want ErrInvalidBuckets", err)
			}
		})
	}
}

func TestBucketsAtCap(t *testing.T) {
	e, _ := newTestEngine(t)

	buckets, err := e.Buckets(time.Now(), MaxBuckets*time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("Buckets: %v", err)
	}
	if len(buckets) != MaxBuckets {
		t.Errorf("len = %d, want %d", len(buckets), MaxBuckets)
	}

	huge := time.Duration(math.MaxInt64)
	buckets, err = e.Buckets(time.Now(), huge, huge)
	if err != nil {
		t.Fatalf("Buckets with maximal durations: %v", err)
	}
	if len(buckets) != 1 {
		t.Errorf("len = %d, want 1", len(buckets))
	}
}

func TestDelta(t *testing.T) {
	e, store := newTestEngine(t)
	now := time.Date(2025, 4, 1, 12, 0, 0, 0, kst)

	d, err := e.Delta(now, time.Hour)
	if err != nil {
		t.Fatalf("Delta: %v", err)
	}
	if d.String() != "no errors" {
		t.Errorf("empty delta = %q", d.String())
	}

	for i := 0; i < 3; i++ {
		insertAt(t, store, now.Add(-10*time.Minute), 100)
	}
	d, _ = e.Delta(now, time.Hour)
	if d.Kind != DeltaNew || d.String() != "+3 (new)" {
		t.Errorf("delta = %+v %q, want +3 (new)", d, d.String())
	}

	for i := 0; i < 2; i++ {
		insertAt(t, store, now.Add(-90*time.Minute), 100)
	}
	// A record stamped after now still counts as current.
	insertAt(t, store, now.Add(time.Minute), 100)
	d, _ = e.Delta(now, time.Hour)
	if d.Current != 4 || d.Previous != 2 || d.String() != "+2 (+100.0%)" {
		t.Errorf("delta = %+v %q", d, d.String())
	}
}

func TestDeltaString(t *testing.T) {
	tests := []struct {
		current, previous int64
		want              string
	}{
		{15, 10, "+5 (+50.0%)"},
		{5, 10, "-5 (-50.0%)"},
		{7, 7, "no change"},
		{4, 0, "+4 (new)"},
		{0, 0, "no errors"},
		{0, 3, "-3 (-100.0%)"},
		{1, 3, "-2 (-66.7%)"},
	}
	for _, tt := range tests {
		if got := NewDelta(tt.current, tt.previous).String(); got != tt.want {
			t.Errorf("NewDelta(%d, %d) = %q, want %q", tt.current, tt.previous, got, tt.want)
		}
	}
}

type failingReader struct{ model.RecordReader }

func (failingReader) QueryRange(start, end time.Time) ([]model.ErrorRecord, error) {
	return nil, errors.New("boom")
}

func (failingReader) CountRange(start, end time.Time) (int64, error) {
	return 0, errors.New("boom")
}

func TestEngineReadFailures(t *testing.T) {
	e := New(failingReader{}, Config{})
	if _, err := e.Buckets(time.Now(), 0, 0); err == nil {
		t.Error("expected Buckets error")
	}
	if _, err := e.Delta(time.Now(), 0); err == nil {
		t.Error("expected Delta error")
	}
}
