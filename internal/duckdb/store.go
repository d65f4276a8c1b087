package duckdb

import (
	"context"
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/tinytelemetry/errwatch/internal/duckdb/migrate"
	"github.com/tinytelemetry/errwatch/internal/model"
)

const defaultQueryTimeout = 30 * time.Second

// Config holds optional store parameters.
type Config struct {
	QueryTimeout time.Duration
	Location     *time.Location // civil zone for timestamps, defaults to model.DefaultCivilZone
}

// Store persists error records in DuckDB.
//
// Inserts are serialized by writeMu so id assignment and row visibility are
// totally ordered. mu is held shared by every query and insert and exclusively
// only while a snapshot checkpoint runs.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	writeMu      sync.Mutex
	dbPath       string
	loc          *time.Location
	QueryTimeout time.Duration
}

// NewStore opens or creates a DuckDB database and ensures the schema exists.
// If dbPath is empty, an in-memory database is used.
func NewStore(dbPath string, conf ...Config) (*Store, error) {
	dsn := ""
	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
		dsn = dbPath
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:           db,
		dbPath:       dbPath,
		loc:          model.DefaultCivilZone,
		QueryTimeout: defaultQueryTimeout,
	}
	if len(conf) > 0 {
		if conf[0].QueryTimeout > 0 {
			s.QueryTimeout = conf[0].QueryTimeout
		}
		if conf[0].Location != nil {
			s.loc = conf[0].Location
		}
	}

	if err := s.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Init ensures the error_logs table exists. It is idempotent.
func (s *Store) Init() error {
	v, err := migrate.NewRunner(s.db).Run()
	if err != nil {
		return err
	}
	log.Printf("duckdb: schema at version %d", v)
	return nil
}

// Location returns the civil zone record timestamps are expressed in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// queryCtx returns a context with the store's configured query timeout.
func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

var _ model.RecordStore = (*Store)(nil)
