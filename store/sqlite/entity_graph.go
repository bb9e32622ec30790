package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/store"
)

// SearchEntities finds entities whose name contains the term,
// case-insensitively, most frequent first.
func (d *DB) SearchEntities(ctx context.Context, userID, term string, limit int) ([]*store.GraphHit, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT name, label, frequency, last_seen_ts
		FROM entity
		WHERE user_id = ? AND name LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY frequency DESC, last_seen_ts DESC
		LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, query, userID, term, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search entities")
	}
	defer rows.Close()

	return toGraphHits(scanHits(rows))
}

// RelatedEntities returns entities connected to the named one through the
// co-occurrence edge table, strongest edges first.
func (d *DB) RelatedEntities(ctx context.Context, userID, name string, limit int) ([]*store.GraphHit, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT other.name, other.label, other.frequency, other.last_seen_ts
		FROM entity self
		JOIN entity_edge edge ON edge.user_id = self.user_id
			AND (edge.source_id = self.id OR edge.target_id = self.id)
		JOIN entity other ON other.id = CASE
			WHEN edge.source_id = self.id THEN edge.target_id
			ELSE edge.source_id
		END
		WHERE self.user_id = ? AND self.name = ? COLLATE NOCASE
		ORDER BY edge.weight DESC, other.frequency DESC
		LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, query, userID, name, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list related entities")
	}
	defer rows.Close()

	return toGraphHits(scanHits(rows))
}

// UpsertEntity records one sighting: new entities start at frequency 1,
// existing ones are bumped and their last-seen timestamp advanced.
func (d *DB) UpsertEntity(ctx context.Context, sighting *store.EntitySighting) error {
	if sighting.Name == "" {
		return errors.New("entity name required")
	}

	stmt := `
		INSERT INTO entity (user_id, name, label, frequency, last_seen_ts)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT (user_id, name, label)
		DO UPDATE SET
			frequency = frequency + 1,
			last_seen_ts = excluded.last_seen_ts
	`

	if _, err := d.db.ExecContext(ctx, stmt, sighting.UserID, sighting.Name, sighting.Label, sighting.SeenTs); err != nil {
		return errors.Wrap(err, "failed to upsert entity")
	}
	return nil
}

func toGraphHits(rows []*hitRow, err error) ([]*store.GraphHit, error) {
	if err != nil {
		return nil, err
	}
	hits := make([]*store.GraphHit, len(rows))
	for i, row := range rows {
		hits[i] = &store.GraphHit{
			Name:       row.Name,
			Label:      row.Label,
			Frequency:  row.Frequency,
			LastSeenTs: row.LastSeenTs,
		}
	}
	return hits, nil
}
