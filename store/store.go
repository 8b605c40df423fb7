// Package store caches compiled programs in SQLite and keeps a history of
// runs.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/abooishaaq/sahl/vm"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested program or run doesn't exist
var ErrNotFound = errors.New("not found")

var log = commonlog.GetLogger("sahl.store")

const schema = `
CREATE TABLE IF NOT EXISTS programs (
	hash       TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	image      BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	hash        TEXT NOT NULL,
	output      TEXT NOT NULL,
	error       TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_hash ON runs (hash, started_at);
`

// Store is a SQLite-backed program cache.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Entry is a cached program.
type Entry struct {
	Hash      string
	Name      string
	Program   *vm.Program
	CreatedAt time.Time
}

// Run records one execution of a cached program.
type Run struct {
	ID        string
	Hash      string
	Output    string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// database/sql pools connections; PRAGMAs are per connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	log.Debug("store opened", "path", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put caches p under hash, replacing any previous entry.
func (s *Store) Put(hash, name string, p *vm.Program) error {
	image, err := vm.Serialize(p)
	if err != nil {
		return fmt.Errorf("encoding program: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO programs (hash, name, image, created_at) VALUES (?, ?, ?, ?)",
		hash, name, image, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving program: %w", err)
	}
	log.Debug("program cached", "hash", hash, "name", name, "bytes", len(image))
	return nil
}

// Get loads the program cached under hash.
func (s *Store) Get(hash string) (*Entry, error) {
	var (
		name    string
		image   []byte
		created int64
	)
	err := s.db.QueryRow(
		"SELECT name, image, created_at FROM programs WHERE hash = ?", hash,
	).Scan(&name, &image, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying program: %w", err)
	}

	p, err := vm.Deserialize(image)
	if err != nil {
		return nil, fmt.Errorf("decoding cached program %s: %w", hash, err)
	}
	return &Entry{
		Hash:      hash,
		Name:      name,
		Program:   p,
		CreatedAt: time.UnixMilli(created),
	}, nil
}

// Delete removes a cached program and its runs.
func (s *Store) Delete(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM programs WHERE hash = ?", hash)
	if err != nil {
		return fmt.Errorf("deleting program: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := s.db.Exec("DELETE FROM runs WHERE hash = ?", hash); err != nil {
		return fmt.Errorf("deleting runs: %w", err)
	}
	return nil
}

// RecordRun stores r. An empty ID is replaced by a fresh UUID, and a zero
// StartedAt by the current time. The stored run is returned.
func (s *Store) RecordRun(r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO runs (id, hash, output, error, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?)",
		r.ID, r.Hash, r.Output, r.Error, r.StartedAt.UnixMilli(), r.Duration.Milliseconds(),
	)
	if err != nil {
		return Run{}, fmt.Errorf("saving run: %w", err)
	}
	return r, nil
}

// Runs lists the most recent runs of hash, newest first. limit <= 0 means
// no limit.
func (s *Store) Runs(hash string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, output, error, started_at, duration_ms FROM runs
		 WHERE hash = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		hash, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			started    int64
			durationMs int64
		)
		if err := rows.Scan(&r.ID, &r.Output, &r.Error, &started, &durationMs); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Hash = hash
		r.StartedAt = time.UnixMilli(started)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run loads a single run by ID.
func (s *Store) Run(id string) (Run, error) {
	var (
		r          Run
		started    int64
		durationMs int64
	)
	err := s.db.QueryRow(
		"SELECT hash, output, error, started_at, duration_ms FROM runs WHERE id = ?", id,
	).Scan(&r.Hash, &r.Output, &r.Error, &started, &durationMs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, fmt.Errorf("querying run: %w", err)
	}
	r.ID = id
	r.StartedAt = time.UnixMilli(started)
	r.Duration = time.Duration(durationMs) * time.Millisecond
	return r, nil
}
