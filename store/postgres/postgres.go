// Package postgres implements the vector store contract on PostgreSQL
// with the pgvector extension. Similarity search runs against the memory
// table's embedding column using cosine distance.
package postgres

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the Postgres driver.
	_ "github.com/lib/pq"
)

// DB wraps a Postgres connection implementing store.VectorStore.
type DB struct {
	db *sql.DB
}

// NewDB opens a Postgres connection for the given DSN.
func NewDB(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	return &DB{db: db}, nil
}

// Ping verifies the connection.
func (d *DB) Ping(ctx context.Context) error {
	return errors.Wrap(d.db.PingContext(ctx), "failed to ping database")
}

// Close closes the underlying connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}
