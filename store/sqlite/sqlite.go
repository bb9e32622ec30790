// Package sqlite implements the entity graph store contract on SQLite.
//
// SQLite is a good fit here: the graph is small per user, lookups are
// short indexed reads, and the single writer is the platform's entity
// sighting feed. Concurrent heavy writes are not supported.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite connection implementing store.GraphStore.
type DB struct {
	db *sql.DB
}

// NewDB opens (or creates) the SQLite database at the given DSN.
func NewDB(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	return &DB{db: db}, nil
}

// Migrate creates the graph tables when they do not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			frequency INTEGER NOT NULL DEFAULT 1,
			last_seen_ts INTEGER NOT NULL,
			UNIQUE (user_id, name, label)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_user_name ON entity (user_id, name)`,
		`CREATE TABLE IF NOT EXISTS entity_edge (
			user_id TEXT NOT NULL,
			source_id INTEGER NOT NULL REFERENCES entity (id),
			target_id INTEGER NOT NULL REFERENCES entity (id),
			weight INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (user_id, source_id, target_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to run migration %q", stmt[:30])
		}
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

func scanHits(rows *sql.Rows) ([]*hitRow, error) {
	list := []*hitRow{}
	for rows.Next() {
		var hit hitRow
		if err := rows.Scan(&hit.Name, &hit.Label, &hit.Frequency, &hit.LastSeenTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan entity")
		}
		list = append(list, &hit)
	}
	return list, rows.Err()
}

type hitRow struct {
	Name       string
	Label      string
	Frequency  int32
	LastSeenTs int64
}
