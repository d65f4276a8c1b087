package socketrpc_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tinytelemetry/errwatch/internal/aggregate"
	"github.com/tinytelemetry/errwatch/internal/dashboard"
	"github.com/tinytelemetry/errwatch/internal/duckdb"
	"github.com/tinytelemetry/errwatch/internal/explain"
	"github.com/tinytelemetry/errwatch/internal/model"
	"github.com/tinytelemetry/errwatch/internal/query"
	"github.com/tinytelemetry/errwatch/internal/socketrpc"
)

type fixedExplainer struct{}

func (fixedExplainer) Explain(ctx context.Context, req explain.Request) (string, error) {
	return "Cause analysis: " + req.Level + "\nRemediation: restart", nil
}

var testNow = time.Date(2025, 9, 1, 10, 0, 0, 0, model.DefaultCivilZone)

func startTestServer(t *testing.T, explainer explain.Explainer) (string, *socketrpc.Server) {
	t.Helper()
	store, err := duckdb.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	for i, level := range []string{"ERROR", "FATAL", "Exception"} {
		_, err := store.Insert(model.NewRecord{
			Level:        level,
			Message:      level + " happened",
			ResponseTime: 100 * (i + 1),
			Timestamp:    testNow.Add(-time.Duration(10*(i+1)) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	q := query.New(store, store.Location(), query.Config{})
	backend := &dashboard.Backend{
		Query:     q,
		Stats:     aggregate.New(store, aggregate.Config{}),
		Explainer: explain.NewService(q, explainer),
		Now:       func() time.Time { return testNow },
	}

	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, backend)
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return sockPath, srv
}

func TestRoundtrip(t *testing.T) {
	sockPath, srv := startTestServer(t, fixedExplainer{})
	defer srv.Stop()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	t.Run("Recent", func(t *testing.T) {
		recs, err := client.Recent(2)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 2 || recs[0].Level != "ERROR" {
			t.Fatalf("unexpected records: %+v", recs)
		}
		if recs[0].Timestamp.Location() != model.DefaultCivilZone {
			t.Errorf("timestamp zone = %v", recs[0].Timestamp.Location())
		}
		if !recs[0].Timestamp.Equal(testNow.Add(-10 * time.Minute)) {
			t.Errorf("timestamp = %v", recs[0].Timestamp)
		}
	})

	t.Run("Search", func(t *testing.T) {
		recs, err := client.Search(dashboard.SearchQuery{Text: "FATAL", From: "2025-09-01", To: "2025-09-01"})
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 1 || recs[0].Level != "FATAL" {
			t.Fatalf("unexpected records: %+v", recs)
		}
	})

	t.Run("GetByID", func(t *testing.T) {
		rec, found, err := client.GetByID(2)
		if err != nil || !found || rec.Level != "FATAL" {
			t.Fatalf("GetByID(2) = %+v, %v, %v", rec, found, err)
		}
		_, found, err = client.GetByID(100)
		if err != nil || found {
			t.Fatalf("GetByID(100) found=%v err=%v", found, err)
		}
	})

	t.Run("Buckets", func(t *testing.T) {
		buckets, err := client.Buckets(time.Hour, 5*time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if len(buckets) != 12 {
			t.Fatalf("got %d buckets, want 12", len(buckets))
		}
		var total int64
		for _, b := range buckets {
			total += b.ErrorCount
		}
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
	})

	t.Run("Delta", func(t *testing.T) {
		d, err := client.Delta(time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		if d.String() != "+3 (new)" {
			t.Errorf("delta = %q", d.String())
		}
	})

	t.Run("Explain", func(t *testing.T) {
		res, err := client.Explain(context.Background(), 1)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Analysis.Structured || res.Analysis.Cause != "ERROR" {
			t.Errorf("analysis = %+v", res.Analysis)
		}
		if _, err := client.Explain(context.Background(), 100); !errors.Is(err, explain.ErrRecordNotFound) {
			t.Errorf("Explain(100) err = %v, want ErrRecordNotFound", err)
		}
	})
}

func TestExplainNotConfigured(t *testing.T) {
	sockPath, srv := startTestServer(t, nil)
	defer srv.Stop()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Explain(context.Background(), 1); !errors.Is(err, explain.ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestDialFailure(t *testing.T) {
	_, err := socketrpc.Dial(filepath.Join(t.TempDir(), "nonexistent.sock"))
	if err == nil {
		t.Fatal("expected error dialing nonexistent socket")
	}
}

func TestServerStopCleansSocket(t *testing.T) {
	sockPath, srv := startTestServer(t, nil)
	srv.Stop()

	if _, err := socketrpc.Dial(sockPath); err == nil {
		t.Fatal("expected dial to fail after server stop")
	}
}

func TestStopIdempotent(t *testing.T) {
	_, srv := startTestServer(t, nil)
	srv.Stop()
	srv.Stop()
}

func TestSecondServerRefused(t *testing.T) {
	sockPath, srv := startTestServer(t, nil)
	defer srv.Stop()

	other := socketrpc.NewServer(sockPath, &dashboard.Backend{})
	if err := other.Start(); err == nil {
		other.Stop()
		t.Fatal("expected second server on same socket to fail")
	}
}

func TestStopClosesConns(t *testing.T) {
	sockPath, srv := startTestServer(t, nil)
	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	srv.Stop()

	done := make(chan error, 1)
	go func() {
		_, callErr := client.Recent(1)
		done <- callErr
	}()

	select {
	case callErr := <-done:
		if callErr == nil {
			t.Fatal("expected client call to fail after server stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client call hung after server stop")
	}
}

func TestOversizedBucketsRejected(t *testing.T) {
	sockPath, srv := startTestServer(t, nil)
	defer srv.Stop()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Buckets(1000*time.Hour, time.Nanosecond); err == nil {
		t.Fatal("expected an error for a nanosecond bucket width")
	}
	recs, err := client.Recent(5)
	if err != nil {
		t.Fatalf("Recent after rejected Buckets: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("got %d records, want 3", len(recs))
	}
}
