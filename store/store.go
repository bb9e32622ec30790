// Package store defines the external knowledge-source contracts consumed by
// the retrieval engine: a vector store holding content embeddings and a graph
// store holding entities and their relationships. Concrete drivers live in
// the store/postgres and store/sqlite subpackages.
package store

import "context"

// MemoryHit is a single similarity-search match from the vector store.
type MemoryHit struct {
	ID          int64
	Content     string
	Similarity  float32
	CreatedTs   int64
	Importance  int32
	AccessCount int32
}

// GraphHit is a single entity match from the graph store.
// Zero values mean the field is absent (e.g. a relation node without a name).
type GraphHit struct {
	Name       string
	Label      string
	Frequency  int32
	LastSeenTs int64
}

// VectorSearchOptions narrows a similarity search.
type VectorSearchOptions struct {
	UserID        string
	Vector        []float32
	Limit         int
	MinSimilarity float32
	// CreatedAfter filters out memories created before the given unix
	// timestamp. Zero disables the filter.
	CreatedAfter int64
}

// VectorStore is the similarity-search contract over content embeddings.
type VectorStore interface {
	SearchSimilar(ctx context.Context, opts *VectorSearchOptions) ([]*MemoryHit, error)
}

// EntitySighting records one observation of an entity, used by the
// surrounding platform to keep the graph current.
type EntitySighting struct {
	UserID string
	Name   string
	Label  string
	SeenTs int64
}

// GraphStore is the entity-lookup contract over the relationship graph.
type GraphStore interface {
	// SearchEntities finds entities whose name matches the term.
	SearchEntities(ctx context.Context, userID, term string, limit int) ([]*GraphHit, error)

	// RelatedEntities returns entities co-occurring with the named one.
	// Reserved for callers; the engine itself does not use it.
	RelatedEntities(ctx context.Context, userID, name string, limit int) ([]*GraphHit, error)

	// UpsertEntity records a sighting, creating the entity or bumping its
	// frequency and last-seen timestamp.
	UpsertEntity(ctx context.Context, sighting *EntitySighting) error
}
