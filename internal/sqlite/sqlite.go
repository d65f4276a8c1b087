package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tinytelemetry/errwatch/internal/model"
)

//go:embed schema.sql
var schema string

// timeLayout is how timestamps are stored. All rows share one fixed civil
// zone, so lexical order of the TEXT column is chronological order.
const timeLayout = "2006-01-02 15:04:05"

const recordColumns = "id, timestamp, level, message, response_time, created_at"

const defaultQueryTimeout = 30 * time.Second

// Config holds optional store parameters.
type Config struct {
	QueryTimeout time.Duration
	Location     *time.Location
}

// Store persists error records in a SQLite file.
type Store struct {
	conn         *sql.DB
	writeMu      sync.Mutex
	loc          *time.Location
	QueryTimeout time.Duration
}

// New opens or creates a SQLite database. ":memory:" or an empty path gives a
// private in-memory database.
func New(dbPath string, conf ...Config) (*Store, error) {
	inMemory := dbPath == "" || dbPath == ":memory:"
	if inMemory {
		dbPath = ":memory:"
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if inMemory {
		// Every new connection to :memory: is a separate database.
		conn.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: set pragma: %w", err)
		}
	}

	s := &Store{
		conn:         conn,
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
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the schema if it does not exist.
func (s *Store) Init() error {
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: init schema: %w", err)
	}
	return nil
}

func (s *Store) Location() *time.Location { return s.loc }

func (s *Store) Close() error { return s.conn.Close() }

func (s *Store) queryCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.QueryTimeout)
}

func (s *Store) format(t time.Time) string {
	return t.In(s.loc).Format(timeLayout)
}

// bound formats a range limit, rounded up to the next whole second. Stored
// timestamps have no fraction, so this keeps timestamp >= a and timestamp < b
// exact for sub-second limits.
func (s *Store) bound(t time.Time) string {
	if whole := t.Truncate(time.Second); !whole.Equal(t) {
		t = whole.Add(time.Second)
	}
	return s.format(t)
}

// Insert appends one record and returns its id.
func (s *Store) Insert(rec model.NewRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	stamp := s.format(ts)

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO error_logs (timestamp, level, message, response_time, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		stamp, rec.Level, rec.Message, rec.ResponseTime, stamp,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: insert error record: %w", err)
	}
	return res.LastInsertId()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRecord(row rowScanner) (model.ErrorRecord, error) {
	var r model.ErrorRecord
	var ts, created string
	if err := row.Scan(&r.ID, &ts, &r.Level, &r.Message, &r.ResponseTime, &created); err != nil {
		return r, err
	}
	var err error
	if r.Timestamp, err = time.ParseInLocation(timeLayout, ts, s.loc); err != nil {
		return r, fmt.Errorf("parse timestamp %q: %w", ts, err)
	}
	if r.CreatedAt, err = time.ParseInLocation(timeLayout, created, s.loc); err != nil {
		return r, fmt.Errorf("parse created_at %q: %w", created, err)
	}
	return r, nil
}

func (s *Store) queryRecords(op, query string, args ...any) ([]model.ErrorRecord, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.ErrorRecord
	for rows.Next() {
		r, err := s.scanRecord(rows)
		if err != nil {
			log.Printf("sqlite scan error (%s): %v", op, err)
			continue
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetByID returns the record with the given id; found is false for unknown ids.
func (s *Store) GetByID(id int64) (model.ErrorRecord, bool, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	row := s.conn.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM error_logs WHERE id = ?`, id)
	r, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrorRecord{}, false, nil
	}
	if err != nil {
		return model.ErrorRecord{}, false, err
	}
	return r, true, nil
}

// Query returns records newest first. instr() keeps the text match
// case-sensitive, unlike LIKE.
func (s *Store) Query(opts model.SearchOpts) ([]model.ErrorRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = model.DefaultRecentLimit
	}

	var conditions []string
	var args []any

	if opts.Text != "" {
		conditions = append(conditions, "instr(message, ?) > 0")
		args = append(args, opts.Text)
	}
	from, to := model.DayBounds(opts.DateFrom, opts.DateTo, s.loc)
	if !from.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, s.bound(from))
	}
	if !to.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, s.bound(to))
	}

	query := `SELECT ` + recordColumns + ` FROM error_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	return s.queryRecords("Query", query, args...)
}

// QueryRange returns records with start <= timestamp < end, oldest first.
func (s *Store) QueryRange(start, end time.Time) ([]model.ErrorRecord, error) {
	return s.queryRecords("QueryRange",
		`SELECT `+recordColumns+` FROM error_logs
		 WHERE timestamp >= ? AND timestamp < ?
		 ORDER BY timestamp ASC, id ASC`,
		s.bound(start), s.bound(end))
}

// CountRange counts records with start <= timestamp < end. A zero end is unbounded.
func (s *Store) CountRange(start, end time.Time) (int64, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	query := `SELECT COUNT(*) FROM error_logs WHERE timestamp >= ?`
	args := []any{s.bound(start)}
	if !end.IsZero() {
		query += ` AND timestamp < ?`
		args = append(args, s.bound(end))
	}

	var count int64
	err := s.conn.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// TotalCount returns the number of persisted records.
func (s *Store) TotalCount() (int64, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	var count int64
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM error_logs`).Scan(&count)
	return count, err
}

// LevelCounts returns the number of records per level tag.
func (s *Store) LevelCounts() (map[string]int64, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `SELECT level, COUNT(*) FROM error_logs GROUP BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		result[level] = count
	}
	return result, rows.Err()
}

var _ model.RecordStore = (*Store)(nil)
