// Package migrate applies the embedded error_logs schema files in
// migrations/NNN_name.sql order and records each applied version in
// schema_migrations, so a restart only runs files it has not seen.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var files embed.FS

const createLedger = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       VARCHAR NOT NULL,
	applied_at TIMESTAMP DEFAULT current_timestamp
)`

type step struct {
	version int
	file    string
}

// Runner migrates one database.
type Runner struct{ db *sql.DB }

func NewRunner(db *sql.DB) *Runner { return &Runner{db: db} }

// Run applies every embedded file newer than the recorded version, each in
// its own transaction, and returns the version the schema is at afterwards.
// On an up-to-date database it changes nothing.
func (r *Runner) Run() (int, error) {
	if _, err := r.db.Exec(createLedger); err != nil {
		return 0, fmt.Errorf("migrate: create schema_migrations: %w", err)
	}
	steps, err := embedded()
	if err != nil {
		return 0, err
	}

	var recorded sql.NullInt64
	if err := r.db.QueryRow(`SELECT max(version) FROM schema_migrations`).Scan(&recorded); err != nil {
		return 0, fmt.Errorf("migrate: read version: %w", err)
	}
	version := int(recorded.Int64)

	for _, st := range steps {
		if st.version <= version {
			continue
		}
		if err := r.apply(st); err != nil {
			return version, err
		}
		log.Printf("migrate: applied %s", st.file)
		version = st.version
	}
	return version, nil
}

func (r *Runner) apply(st step) (err error) {
	body, err := files.ReadFile(path.Join("migrations", st.file))
	if err != nil {
		return fmt.Errorf("migrate: read %s: %w", st.file, err)
	}
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", st.file, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(string(body)); err != nil {
		return fmt.Errorf("migrate: %s: %w", st.file, err)
	}
	if _, err = tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, st.version, st.file); err != nil {
		return fmt.Errorf("migrate: record %s: %w", st.file, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit %s: %w", st.file, err)
	}
	return nil
}

// embedded lists the schema files by ascending version. Every file must be
// named with a numeric version prefix.
func embedded() ([]step, error) {
	names, err := fs.Glob(files, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("migrate: list files: %w", err)
	}
	steps := make([]step, 0, len(names))
	for _, name := range names {
		file := path.Base(name)
		prefix, _, _ := strings.Cut(file, "_")
		v, err := strconv.Atoi(prefix)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("migrate: %s has no version prefix", file)
		}
		steps = append(steps, step{version: v, file: file})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}
