package duckdb

import (
	"sort"
	"sync"
	"testing"

	"github.com/tinytelemetry/errwatch/internal/model"
)

func TestInsert_IDsStrictlyIncreasing(t *testing.T) {
	store := newTestStore(t)

	var last int64
	for i := 0; i < 20; i++ {
		id, err := store.Insert(model.NewRecord{Level: "ERROR", Message: "sequential", ResponseTime: i})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

func TestInsert_ConcurrentProducers(t *testing.T) {
	store := newTestStore(t)

	const producers = 10
	const perProducer = 50

	var mu sync.Mutex
	var ids []int64
	var wg sync.WaitGroup
	for g := 0; g < producers; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var prev int64
			for i := 0; i < perProducer; i++ {
				id, err := store.Insert(model.NewRecord{Level: "FATAL", Message: "concurrent", ResponseTime: 100})
				if err != nil {
					t.Errorf("Insert: %v", err)
					return
				}
				if id <= prev {
					t.Errorf("producer saw id %d after %d", id, prev)
				}
				prev = id
				mu.Lock()
				ids = append(ids, id)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(ids) != producers*perProducer {
		t.Fatalf("got %d ids, want %d", len(ids), producers*perProducer)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			t.Fatalf("duplicate id %d", ids[i])
		}
	}

	count, err := store.TotalCount()
	if err != nil {
		t.Fatalf("TotalCount: %v", err)
	}
	if count != int64(producers*perProducer) {
		t.Errorf("TotalCount = %d, want %d", count, producers*perProducer)
	}
}
