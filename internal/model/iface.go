package model

import "time"

// RecordWriter appends classified records. Implementations serialize writes so
// returned IDs are strictly increasing.
type RecordWriter interface {
	Insert(rec NewRecord) (int64, error)
}

// RecordReader provides read-only access to persisted records.
type RecordReader interface {
	GetByID(id int64) (ErrorRecord, bool, error)
	Query(opts SearchOpts) ([]ErrorRecord, error)
	QueryRange(start, end time.Time) ([]ErrorRecord, error)
	// CountRange counts records with start <= timestamp < end. A zero end is unbounded.
	CountRange(start, end time.Time) (int64, error)
}

// RecordStore is the full persistence contract shared by the DuckDB and SQLite stores.
type RecordStore interface {
	RecordWriter
	RecordReader
	Init() error
	Location() *time.Location
	TotalCount() (int64, error)
	LevelCounts() (map[string]int64, error)
	Close() error
}
