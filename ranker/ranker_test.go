package ranker

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/recall/store"
)

var testNow = time.Date(2025, 6, 18, 15, 0, 0, 0, time.UTC)

func daysAgo(days int) int64 {
	return testNow.AddDate(0, 0, -days).Unix()
}

var testWeights = Weights{
	Vector:        0.6,
	Graph:         0.4,
	Recency:       0.3,
	Importance:    0.2,
	EntityOverlap: 0.2,
}

func TestRecencyScore_Tiers(t *testing.T) {
	tests := []struct {
		ageDays  int
		expected float64
	}{
		{0, 1.0},
		{3, 0.9},
		{15, 0.7},
		{60, 0.5},
		{200, 0.3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, RecencyScore(daysAgo(tt.ageDays), testNow),
			"age %d days", tt.ageDays)
	}
}

func TestRankVector_Scoring(t *testing.T) {
	query := &Query{Entities: []string{"Acme"}, Keywords: []string{"launch"}}
	hits := []*store.MemoryHit{
		{ID: 1, Content: "Acme launch plan", Similarity: 0.8, CreatedTs: daysAgo(0), Importance: 5},
	}

	results := RankVector(hits, query, testWeights, testNow)
	require.Len(t, results, 1)
	r := results[0]

	assert.Equal(t, SourceVector, r.Source)
	require.NotNil(t, r.Memory)
	assert.Nil(t, r.Entity)

	// 0.8·0.6 + 1.0·0.3 + 0.5·0.2 + 1.0·0.2
	assert.InDelta(t, 1.08, r.Combined, 1e-9)
	assert.InDelta(t, 0.8, r.Scores[FactorSimilarity], 1e-9)
	assert.InDelta(t, 1.0, r.Scores[FactorRecency], 1e-9)
	assert.InDelta(t, 0.5, r.Scores[FactorImportance], 1e-9)
	assert.InDelta(t, 1.0, r.Scores[FactorEntityOverlap], 1e-9)
	assert.Equal(t, []string{"Acme"}, r.MatchedEntities)
	assert.Equal(t, []string{"launch"}, r.MatchedKeywords)
}

func TestRankVector_Bounds(t *testing.T) {
	query := &Query{Entities: []string{"X", "Y"}, Keywords: []string{"zzz"}}
	hits := []*store.MemoryHit{
		{ID: 1, Content: "", Similarity: 0, CreatedTs: 0, Importance: 0},
		{ID: 2, Content: "everything X Y zzz", Similarity: 1, CreatedTs: daysAgo(0), Importance: 10},
	}

	for _, r := range RankVector(hits, query, testWeights, testNow) {
		assert.False(t, math.IsNaN(r.Combined) || math.IsInf(r.Combined, 0), "combined must be finite")
		assert.GreaterOrEqual(t, r.Combined, 0.0)
	}
}

func TestRankVector_EmptyEntitiesZeroOverlap(t *testing.T) {
	hits := []*store.MemoryHit{{ID: 1, Content: "anything", Similarity: 0.5, CreatedTs: daysAgo(0)}}
	results := RankVector(hits, &Query{}, testWeights, testNow)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Scores[FactorEntityOverlap])
}

func TestRankGraph_Scoring(t *testing.T) {
	query := &Query{Entities: []string{"Acme Corp"}, Keywords: []string{"acme"}}

	t.Run("named entity with frequency", func(t *testing.T) {
		hits := []*store.GraphHit{
			{Name: "Acme Corp", Label: "organization", Frequency: 50, LastSeenTs: daysAgo(0)},
		}
		results := RankGraph(hits, query, testWeights, testNow)
		require.Len(t, results, 1)
		r := results[0]

		// graphScore = 0.7·0.5 + 0.3·1 = 0.65; overlap exact = 1.0; recency 1.0.
		// combined = 0.65·0.4 + 1.0·0.3 + 1.0·0.2
		assert.InDelta(t, 0.76, r.Combined, 1e-9)
		assert.InDelta(t, 0.65, r.Scores[FactorGraphRelevance], 1e-9)
		assert.Equal(t, []string{"Acme Corp"}, r.MatchedEntities)
	})

	t.Run("frequency capped at 100", func(t *testing.T) {
		hits := []*store.GraphHit{{Name: "busy", Frequency: 5000, LastSeenTs: daysAgo(0)}}
		results := RankGraph(hits, &Query{}, testWeights, testNow)
		require.Len(t, results, 1)
		assert.InDelta(t, 0.7, results[0].Scores[FactorGraphRelevance], 1e-9)
	})

	t.Run("nameless node gets defaults", func(t *testing.T) {
		hits := []*store.GraphHit{{Label: "mention"}}
		results := RankGraph(hits, query, testWeights, testNow)
		require.Len(t, results, 1)
		r := results[0]

		assert.InDelta(t, 0.5, r.Scores[FactorGraphRelevance], 1e-9)
		// No last-seen timestamp: neutral recency.
		assert.InDelta(t, 0.5, r.Scores[FactorRecency], 1e-9)
		// Name does not equal any entity: half overlap.
		assert.InDelta(t, 0.5, r.Scores[FactorEntityOverlap], 1e-9)
	})
}

func makeRanked(source Source, id int64, name string, combined float64) *RankedResult {
	r := &RankedResult{
		Source:   source,
		Scores:   map[string]float64{},
		Combined: combined,
	}
	if source == SourceVector {
		r.Memory = &store.MemoryHit{ID: id}
	} else {
		r.Entity = &store.GraphHit{Name: name, Label: "organization"}
	}
	return r
}

func TestMergeAndRank_Dedupe(t *testing.T) {
	t.Run("duplicate memory ids collapse", func(t *testing.T) {
		vector := []*RankedResult{
			makeRanked(SourceVector, 1, "", 0.9),
			makeRanked(SourceVector, 1, "", 0.8),
			makeRanked(SourceVector, 2, "", 0.7),
		}
		merged := MergeAndRank(vector, nil)
		assert.Len(t, merged, 2)
		assert.InDelta(t, 0.9, merged[0].Combined, 1e-9)
	})

	t.Run("graph key is label plus name", func(t *testing.T) {
		graph := []*RankedResult{
			makeRanked(SourceGraph, 0, "Acme", 0.9),
			makeRanked(SourceGraph, 0, "Acme", 0.5),
		}
		merged := MergeAndRank(nil, graph)
		assert.Len(t, merged, 1)
	})

	t.Run("idempotent over self concatenation", func(t *testing.T) {
		build := func() []*RankedResult {
			return []*RankedResult{
				makeRanked(SourceVector, 1, "", 0.9),
				makeRanked(SourceVector, 2, "", 0.7),
				makeRanked(SourceGraph, 0, "Acme", 0.8),
			}
		}

		once := MergeAndRank(build(), nil)

		doubled := append(build(), build()...)
		twice := MergeAndRank(doubled, nil)

		require.Len(t, twice, len(once))
		for i := range once {
			assert.Equal(t, dedupeKey(once[i]), dedupeKey(twice[i]))
			assert.InDelta(t, once[i].Combined, twice[i].Combined, 1e-9)
		}
	})

	t.Run("content prefix key when id missing", func(t *testing.T) {
		long := make([]byte, 80)
		for i := range long {
			long[i] = 'a'
		}
		a := &RankedResult{Source: SourceVector, Memory: &store.MemoryHit{Content: string(long)}, Scores: map[string]float64{}, Combined: 0.9}
		b := &RankedResult{Source: SourceVector, Memory: &store.MemoryHit{Content: string(long) + "tail"}, Scores: map[string]float64{}, Combined: 0.8}
		merged := MergeAndRank([]*RankedResult{a, b}, nil)
		// Same first 50 characters: the later duplicate is dropped.
		assert.Len(t, merged, 1)
	})
}

func TestMergeAndRank_DiversityCap(t *testing.T) {
	var vector []*RankedResult
	for i := 0; i < 10; i++ {
		// Inflated, strictly descending vector scores.
		vector = append(vector, makeRanked(SourceVector, int64(i+1), "", 2.0-float64(i)*0.01))
	}
	graph := []*RankedResult{
		makeRanked(SourceGraph, 0, "Acme", 0.5),
		makeRanked(SourceGraph, 0, "Globex", 0.4),
	}

	merged := MergeAndRank(vector, graph)
	require.Len(t, merged, 12)

	vectorSeen := 0
	for _, r := range merged {
		if r.Source != SourceVector {
			continue
		}
		vectorSeen++
		if vectorSeen <= 3 {
			assert.NotContains(t, r.Scores, FactorDiversityPenalty,
				"result %d from vector must not be penalized", vectorSeen)
		} else {
			assert.InDelta(t, 0.95, r.Scores[FactorDiversityPenalty], 1e-9,
				"result %d from vector must carry the penalty", vectorSeen)
			// Combined was multiplied by the penalty.
			expected := (2.0 - float64(r.Memory.ID-1)*0.01) * 0.95
			assert.InDelta(t, expected, r.Combined, 1e-9)
		}
	}
}

func TestFilterByThreshold(t *testing.T) {
	results := []*RankedResult{
		makeRanked(SourceVector, 1, "", 0.9),
		makeRanked(SourceVector, 2, "", 0.5),
		makeRanked(SourceVector, 3, "", 0.61),
		makeRanked(SourceVector, 4, "", 0.59),
	}

	filtered := FilterByThreshold(results, 0.6)
	require.Len(t, filtered, 2)
	assert.InDelta(t, 0.9, filtered[0].Combined, 1e-9)
	assert.InDelta(t, 0.61, filtered[1].Combined, 1e-9)
}

func TestTopN(t *testing.T) {
	results := []*RankedResult{
		makeRanked(SourceVector, 1, "", 0.9),
		makeRanked(SourceVector, 2, "", 0.8),
		makeRanked(SourceVector, 3, "", 0.7),
	}

	assert.Len(t, TopN(results, 2), 2)
	assert.Len(t, TopN(results, 10), 3)
	assert.Len(t, TopN(results, 0), 3)
}

func TestStableTieBreak(t *testing.T) {
	// Equal combined scores keep discovery order: vector list precedes graph.
	vector := []*RankedResult{makeRanked(SourceVector, 1, "", 0.7)}
	graph := []*RankedResult{makeRanked(SourceGraph, 0, "Acme", 0.7)}

	merged := MergeAndRank(vector, graph)
	require.Len(t, merged, 2)
	assert.Equal(t, SourceVector, merged[0].Source)
	assert.Equal(t, SourceGraph, merged[1].Source)
}
