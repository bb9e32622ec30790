package retrieval

import (
	"fmt"
	"time"

	"github.com/hrygo/recall/ranker"
)

// Config holds the tunable knobs of the engine. Hardcoded values from the
// first iteration were extracted here so deployments can adjust them
// without code changes.
type Config struct {
	// Weights are the base scoring factors. The per-query strategy
	// overrides Vector and Graph; the rest apply as-is.
	Weights ranker.Weights

	// MinCombinedScore drops merged results scoring below it.
	MinCombinedScore float64

	// DefaultLimit is the result count used when the caller passes none.
	DefaultLimit int

	// MaxQueryLength rejects oversized queries before any I/O.
	MaxQueryLength int

	// VectorLimit is the raw candidate count fetched from the vector store.
	VectorLimit int

	// GraphTermLimit bounds results per graph term lookup.
	GraphTermLimit int

	// MaxGraphKeywords and MaxGraphEntities bound how many query terms
	// are sent to the graph store.
	MaxGraphKeywords int
	MaxGraphEntities int

	// CacheTTL and CacheCapacity size the result cache.
	CacheTTL      time.Duration
	CacheCapacity int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Weights: ranker.Weights{
			Vector:        0.6,
			Graph:         0.4,
			Recency:       0.3,
			Importance:    0.2,
			EntityOverlap: 0.2,
		},
		MinCombinedScore: 0.6,
		DefaultLimit:     10,
		MaxQueryLength:   1000,
		VectorLimit:      20,
		GraphTermLimit:   5,
		MaxGraphKeywords: 3,
		MaxGraphEntities: 2,
		CacheTTL:         5 * time.Minute,
		CacheCapacity:    500,
	}
}

// Validate checks the configuration for values that would break the
// pipeline.
func (c *Config) Validate() error {
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("default limit must be positive, got %d", c.DefaultLimit)
	}
	if c.VectorLimit <= 0 {
		return fmt.Errorf("vector limit must be positive, got %d", c.VectorLimit)
	}
	if c.MaxQueryLength <= 0 {
		return fmt.Errorf("max query length must be positive, got %d", c.MaxQueryLength)
	}
	if c.MinCombinedScore < 0 {
		return fmt.Errorf("min combined score must not be negative, got %f", c.MinCombinedScore)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.CacheTTL)
	}
	return nil
}

// ConfigUpdate is a partial configuration; nil fields keep their current
// value. Applied at runtime without restarting the engine.
type ConfigUpdate struct {
	Weights          *ranker.Weights
	MinCombinedScore *float64
	DefaultLimit     *int
	VectorLimit      *int
	GraphTermLimit   *int
}

// merge applies the update onto a copy of base and returns it.
func (u *ConfigUpdate) merge(base *Config) *Config {
	merged := *base
	if u.Weights != nil {
		merged.Weights = *u.Weights
	}
	if u.MinCombinedScore != nil {
		merged.MinCombinedScore = *u.MinCombinedScore
	}
	if u.DefaultLimit != nil {
		merged.DefaultLimit = *u.DefaultLimit
	}
	if u.VectorLimit != nil {
		merged.VectorLimit = *u.VectorLimit
	}
	if u.GraphTermLimit != nil {
		merged.GraphTermLimit = *u.GraphTermLimit
	}
	return &merged
}
