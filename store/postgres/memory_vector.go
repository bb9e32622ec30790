package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/recall/store"
)

// SearchSimilar performs a cosine similarity search over the memory table.
// Results are scoped to the requesting user and ordered by similarity.
func (d *DB) SearchSimilar(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.MemoryHit, error) {
	if len(opts.Vector) == 0 {
		return nil, errors.New("query vector required")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	vector := pgvector.NewVector(opts.Vector)
	where := []string{"user_id = $2"}
	args := []any{vector, opts.UserID}

	if opts.CreatedAfter > 0 {
		args = append(args, opts.CreatedAfter)
		where = append(where, fmt.Sprintf("created_ts >= $%d", len(args)))
	}
	if opts.MinSimilarity > 0 {
		args = append(args, opts.MinSimilarity)
		where = append(where, fmt.Sprintf("1 - (embedding <=> $1) >= $%d", len(args)))
	}

	args = append(args, limit)
	query := `
		SELECT id, content, 1 - (embedding <=> $1) AS similarity, created_ts, importance, access_count
		FROM memory
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY embedding <=> $1
		LIMIT $` + fmt.Sprint(len(args))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search memories")
	}
	defer rows.Close()

	list := []*store.MemoryHit{}
	for rows.Next() {
		var hit store.MemoryHit
		if err := rows.Scan(
			&hit.ID,
			&hit.Content,
			&hit.Similarity,
			&hit.CreatedTs,
			&hit.Importance,
			&hit.AccessCount,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory hit")
		}
		list = append(list, &hit)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
