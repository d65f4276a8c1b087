package query

import (
	"fmt"
	"time"

	"github.com/tinytelemetry/errwatch/internal/model"
)

// Config holds façade limits.
type Config struct {
	RecentLimit int
	SearchLimit int
}

// Service is the read-only façade over the store used by the API, the RPC
// server and the explainer. Every call reads the store; nothing is cached.
type Service struct {
	reader model.RecordReader
	loc    *time.Location
	cfg    Config
}

// New creates a façade over reader. loc is the civil zone used for date filters.
func New(reader model.RecordReader, loc *time.Location, cfg Config) *Service {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = model.DefaultRecentLimit
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = model.DefaultSearchLimit
	}
	if loc == nil {
		loc = model.DefaultCivilZone
	}
	return &Service{reader: reader, loc: loc, cfg: cfg}
}

// Location returns the civil zone.
func (s *Service) Location() *time.Location { return s.loc }

// Recent returns the n newest records. n <= 0 uses the recent limit.
func (s *Service) Recent(n int) ([]model.ErrorRecord, error) {
	if n <= 0 {
		n = s.cfg.RecentLimit
	}
	recs, err := s.reader.Query(model.SearchOpts{Limit: n})
	if err != nil {
		return nil, fmt.Errorf("query: recent: %w", err)
	}
	return nonNil(recs), nil
}

// Search returns records matching opts, newest first. A zero limit uses the
// search limit.
func (s *Service) Search(opts model.SearchOpts) ([]model.ErrorRecord, error) {
	if opts.Limit <= 0 {
		opts.Limit = s.cfg.SearchLimit
	}
	if !opts.DateFrom.IsZero() && !opts.DateTo.IsZero() && opts.DateTo.Before(opts.DateFrom) {
		return []model.ErrorRecord{}, nil
	}
	recs, err := s.reader.Query(opts)
	if err != nil {
		return nil, fmt.Errorf("query: search: %w", err)
	}
	return nonNil(recs), nil
}

// SearchText is Search with string date bounds in YYYY-MM-DD form. Empty
// strings leave the bound open.
func (s *Service) SearchText(text, dateFrom, dateTo string, limit int) ([]model.ErrorRecord, error) {
	opts := model.SearchOpts{Text: text, Limit: limit}
	var err error
	if dateFrom != "" {
		if opts.DateFrom, err = model.ParseDate(dateFrom, s.loc); err != nil {
			return nil, fmt.Errorf("query: invalid from date %q: %w", dateFrom, err)
		}
	}
	if dateTo != "" {
		if opts.DateTo, err = model.ParseDate(dateTo, s.loc); err != nil {
			return nil, fmt.Errorf("query: invalid to date %q: %w", dateTo, err)
		}
	}
	return s.Search(opts)
}

// ByID returns one record; found is false for unknown ids.
func (s *Service) ByID(id int64) (model.ErrorRecord, bool, error) {
	rec, found, err := s.reader.GetByID(id)
	if err != nil {
		return model.ErrorRecord{}, false, fmt.Errorf("query: get %d: %w", id, err)
	}
	return rec, found, nil
}

func nonNil(recs []model.ErrorRecord) []model.ErrorRecord {
	if recs == nil {
		return []model.ErrorRecord{}
	}
	return recs
}
