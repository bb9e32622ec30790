package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/queryengine"
)

func testResult(queryType queryengine.QueryType) *Result {
	return &Result{
		Query: &queryengine.StructuredQuery{Type: queryType},
	}
}

func TestResultCache_RoundTrip(t *testing.T) {
	rc := NewResultCache(10, time.Minute)

	rc.Set("recent notes", "user-1", testResult(queryengine.QueryTypeTemporal))

	got, ok := rc.Get("recent notes", "user-1")
	require.True(t, ok)
	assert.Equal(t, queryengine.QueryTypeTemporal, got.Query.Type)
}

func TestResultCache_KeyNormalization(t *testing.T) {
	rc := NewResultCache(10, time.Minute)

	rc.Set("Recent   Notes", "user-1", testResult(queryengine.QueryTypeTemporal))

	_, ok := rc.Get("recent notes", "user-1")
	assert.True(t, ok, "case and whitespace differences must share an entry")
}

func TestResultCache_PerUserIsolation(t *testing.T) {
	rc := NewResultCache(10, time.Minute)

	rc.Set("same query", "user-1", testResult(queryengine.QueryTypeSemantic))

	_, ok := rc.Get("same query", "user-2")
	assert.False(t, ok, "results are never shared across users")
}

func TestResultCache_TTLExpiry(t *testing.T) {
	rc := NewResultCache(10, 10*time.Millisecond)

	rc.Set("q", "user-1", testResult(queryengine.QueryTypeSemantic))
	time.Sleep(20 * time.Millisecond)

	_, ok := rc.Get("q", "user-1")
	assert.False(t, ok)
}

func TestResultCache_Stats(t *testing.T) {
	rc := NewResultCache(10, time.Minute)

	rc.Set("a", "user-1", testResult(queryengine.QueryTypeSemantic))
	rc.Set("b", "user-1", testResult(queryengine.QueryTypeSemantic))

	rc.Get("a", "user-1")
	rc.Get("a", "user-1")
	rc.Get("missing", "user-1")

	stats := rc.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(2), stats.TotalHits)

	rc.Clear()
	stats = rc.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.TotalHits)
}
