// Package store is the sqlite persistence layer: brand and model identity
// rows, listings keyed by (source, source_id), and their change history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the sqlite database. All writes go through a single
// connection; the scrape orchestrator is the only concurrent writer.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the sqlite database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_cache_size=10000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite wants a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats summarizes table sizes for the CLI summary and health endpoint.
type Stats struct {
	Brands   int64 `json:"brands"`
	Models   int64 `json:"models"`
	Listings int64 `json:"listings"`
	Active   int64 `json:"active_listings"`
	History  int64 `json:"history_rows"`
}

// Stats counts rows across the main tables.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM brands`, &st.Brands},
		{`SELECT COUNT(*) FROM models`, &st.Models},
		{`SELECT COUNT(*) FROM listings`, &st.Listings},
		{`SELECT COUNT(*) FROM listings WHERE status = 'active'`, &st.Active},
		{`SELECT COUNT(*) FROM listing_history`, &st.History},
	}

	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}

	return st, nil
}
