package duckdb

import (
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/tinytelemetry/errwatch/internal/model"
)

const recordColumns = "id, timestamp, level, message, response_time, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanRecord(row rowScanner) (model.ErrorRecord, error) {
	var r model.ErrorRecord
	if err := row.Scan(&r.ID, &r.Timestamp, &r.Level, &r.Message, &r.ResponseTime, &r.CreatedAt); err != nil {
		return r, err
	}
	r.Timestamp = r.Timestamp.In(s.loc)
	r.CreatedAt = r.CreatedAt.In(s.loc)
	return r, nil
}

func (s *Store) queryRecords(op, query string, args ...any) ([]model.ErrorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.ErrorRecord
	for rows.Next() {
		r, err := s.scanRecord(rows)
		if err != nil {
			log.Printf("duckdb scan error (%s): %v", op, err)
			continue
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetByID returns the record with the given id. A missing id is reported
// with found == false and a nil error.
func (s *Store) GetByID(id int64) (model.ErrorRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM error_logs WHERE id = ?`, id)
	r, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrorRecord{}, false, nil
	}
	if err != nil {
		return model.ErrorRecord{}, false, err
	}
	return r, true, nil
}

// Query returns records newest first, optionally filtered by a case-sensitive
// message substring and an inclusive calendar-date range.
func (s *Store) Query(opts model.SearchOpts) ([]model.ErrorRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = model.DefaultRecentLimit
	}

	var conditions []string
	var args []any

	if opts.Text != "" {
		conditions = append(conditions, "strpos(message, ?) > 0")
		args = append(args, opts.Text)
	}
	from, to := model.DayBounds(opts.DateFrom, opts.DateTo, s.loc)
	if !from.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, from)
	}
	if !to.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, to)
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
		start, end)
}

// CountRange counts records with start <= timestamp < end. A zero end is unbounded.
func (s *Store) CountRange(start, end time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	query := `SELECT COUNT(*) FROM error_logs WHERE timestamp >= ?`
	args := []any{start}
	if !end.IsZero() {
		query += ` AND timestamp < ?`
		args = append(args, end)
	}

	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// TotalCount returns the number of persisted records.
func (s *Store) TotalCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM error_logs`).Scan(&count)
	return count, err
}

// LevelCounts returns the number of records per level tag.
func (s *Store) LevelCounts() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT level, COUNT(*) FROM error_logs GROUP BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			log.Printf("duckdb scan error (LevelCounts): %v", err)
			continue
		}
		result[level] = count
	}
	return result, rows.Err()
}
