// Package store persists widget definitions, instances, cache entries,
// and refresh requests in SQLite. Repositories hold explicit SQL; JSON
// sub-configs on a definition are stored as TEXT columns.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store owns the database handle and exposes one repository per table.
type Store struct {
	db *sql.DB

	Definitions *DefinitionRepository
	Instances   *InstanceRepository
	Cache       *CacheRepository
	Refresh     *RefreshRepository
}

// Open opens (creating if necessary) the SQLite database at dbPath and
// runs migrations. The parent directory is created if missing.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// WAL mode for better concurrency; foreign keys on so definition
	// deletes cascade to instances and cache entries. The driver only
	// applies pragmas passed via _pragma=name(value).
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't handle multiple writers well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{
		db:          db,
		Definitions: &DefinitionRepository{db: db},
		Instances:   &InstanceRepository{db: db},
		Cache:       &CacheRepository{db: db},
		Refresh:     &RefreshRepository{db: db},
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}
