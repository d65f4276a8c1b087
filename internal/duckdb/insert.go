package duckdb

import (
	"fmt"
	"time"

	"github.com/tinytelemetry/errwatch/internal/model"
)

// Insert appends one record and returns its store-assigned id. A zero
// timestamp is stamped with the current civil time; created_at always equals
// the stored timestamp. Timestamps are kept at second precision.
func (s *Store) Insert(rec model.NewRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.In(s.loc).Truncate(time.Second)

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO error_logs (timestamp, level, message, response_time, created_at)
		 VALUES (?, ?, ?, ?, ?) RETURNING id`,
		ts, rec.Level, rec.Message, rec.ResponseTime, ts,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("duckdb: insert error record: %w", err)
	}
	return id, nil
}
