package dashboard

import (
	"context"
	"time"

	"github.com/tinytelemetry/errwatch/internal/aggregate"
	"github.com/tinytelemetry/errwatch/internal/explain"
	"github.com/tinytelemetry/errwatch/internal/model"
	"github.com/tinytelemetry/errwatch/internal/query"
)

// SearchQuery is a search request with YYYY-MM-DD date bounds. Empty fields
// are unbounded.
type SearchQuery struct {
	Text  string `json:"text,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Dashboard is everything a presentation layer may ask of the pipeline.
// The in-process Backend and the socket RPC client both implement it.
type Dashboard interface {
	Recent(n int) ([]model.ErrorRecord, error)
	Search(q SearchQuery) ([]model.ErrorRecord, error)
	GetByID(id int64) (model.ErrorRecord, bool, error)
	Buckets(window, bucket time.Duration) ([]model.Bucket, error)
	Delta(lookback time.Duration) (aggregate.Delta, error)
	Explain(ctx context.Context, id int64) (explain.Result, error)
}

// Backend answers Dashboard calls from the local store.
type Backend struct {
	Query     *query.Service
	Stats     *aggregate.Engine
	Explainer *explain.Service
	Now       func() time.Time
}

func (b *Backend) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b *Backend) Recent(n int) ([]model.ErrorRecord, error) {
	return b.Query.Recent(n)
}

func (b *Backend) Search(q SearchQuery) ([]model.ErrorRecord, error) {
	return b.Query.SearchText(q.Text, q.From, q.To, q.Limit)
}

func (b *Backend) GetByID(id int64) (model.ErrorRecord, bool, error) {
	return b.Query.ByID(id)
}

// Buckets aggregates the window ending now. Zero durations use the engine defaults.
func (b *Backend) Buckets(window, bucket time.Duration) ([]model.Bucket, error) {
	return b.Stats.Buckets(b.now().In(b.Query.Location()), window, bucket)
}

func (b *Backend) Delta(lookback time.Duration) (aggregate.Delta, error) {
	return b.Stats.Delta(b.now(), lookback)
}

func (b *Backend) Explain(ctx context.Context, id int64) (explain.Result, error) {
	return b.Explainer.ExplainRecord(ctx, id)
}

var _ Dashboard = (*Backend)(nil)
