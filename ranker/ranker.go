// Package ranker scores, merges, deduplicates and re-ranks candidate
// results coming from the vector index and the entity graph. All functions
// are pure: no I/O, no clock access beyond the injected reference time.
package ranker

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hrygo/recall/store"
)

// Source identifies which knowledge source produced a result.
type Source string

const (
	SourceVector Source = "vector"
	SourceGraph  Source = "graph"
)

// Score factor names used as keys in RankedResult.Scores.
const (
	FactorSimilarity       = "similarity"
	FactorRecency          = "recency"
	FactorImportance       = "importance"
	FactorEntityOverlap    = "entityOverlap"
	FactorGraphRelevance   = "graphRelevance"
	FactorDiversityPenalty = "diversityPenalty"
)

// Weights are the independent scoring factors. They multiply separate
// signals and are not required to sum to 1.
type Weights struct {
	Vector        float64
	Graph         float64
	Recency       float64
	Importance    float64
	EntityOverlap float64
}

// RankedResult is one scored candidate. Exactly one of Memory or Entity is
// set, matching Source.
type RankedResult struct {
	Source Source
	Memory *store.MemoryHit
	Entity *store.GraphHit

	// Scores holds the raw per-factor values; Combined is the sole sort key.
	Scores   map[string]float64
	Combined float64

	MatchedEntities []string
	MatchedKeywords []string
	Reason          string
}

// Query is the slice of the parsed query the ranker needs: the extracted
// entities and keywords it matches hits against.
type Query struct {
	Entities []string
	Keywords []string
}

// RecencyScore maps an event age to one of five discrete tiers. The step
// function is intentional: a few predictable tiers instead of continuous
// decay, so identical-age items always score identically.
func RecencyScore(ts int64, now time.Time) float64 {
	age := now.Sub(time.Unix(ts, 0))
	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 7*24*time.Hour:
		return 0.9
	case age < 30*24*time.Hour:
		return 0.7
	case age < 90*24*time.Hour:
		return 0.5
	default:
		return 0.3
	}
}

// entityOverlap returns the fraction of query entities appearing as a
// case-insensitive substring of text, along with the entities that matched.
func entityOverlap(text string, entities []string) (float64, []string) {
	if len(entities) == 0 {
		return 0, nil
	}
	lowered := strings.ToLower(text)
	var matched []string
	for _, entity := range entities {
		if strings.Contains(lowered, strings.ToLower(entity)) {
			matched = append(matched, entity)
		}
	}
	return float64(len(matched)) / float64(len(entities)), matched
}

// matchedKeywords returns the query keywords appearing in text.
func matchedKeywords(text string, keywords []string) []string {
	lowered := strings.ToLower(text)
	var matched []string
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// RankVector scores vector-store hits. Per hit:
//
//	combined = similarity·w.Vector + recency·w.Recency
//	         + (importance/10)·w.Importance + entityOverlap·w.EntityOverlap
func RankVector(hits []*store.MemoryHit, query *Query, weights Weights, now time.Time) []*RankedResult {
	results := make([]*RankedResult, 0, len(hits))
	for _, hit := range hits {
		similarity := float64(hit.Similarity)
		recency := RecencyScore(hit.CreatedTs, now)
		importance := float64(hit.Importance) / 10.0
		overlap, matchedEnts := entityOverlap(hit.Content, query.Entities)

		combined := similarity*weights.Vector +
			recency*weights.Recency +
			importance*weights.Importance +
			overlap*weights.EntityOverlap

		results = append(results, &RankedResult{
			Source: SourceVector,
			Memory: hit,
			Scores: map[string]float64{
				FactorSimilarity:    similarity,
				FactorRecency:       recency,
				FactorImportance:    importance,
				FactorEntityOverlap: overlap,
			},
			Combined:        combined,
			MatchedEntities: matchedEnts,
			MatchedKeywords: matchedKeywords(hit.Content, query.Keywords),
			Reason:          fmt.Sprintf("semantic match (similarity %.2f)", similarity),
		})
	}
	return results
}

// RankGraph scores graph-store hits. Per hit:
//
//	graphScore = 0.7·min(frequency/100, 1.0) + 0.3·keywordMatch
//	combined   = graphScore·w.Graph + recency·w.Recency + entityOverlap·w.EntityOverlap
//
// Nodes lacking both name and frequency get a flat graphScore of 0.5.
func RankGraph(hits []*store.GraphHit, query *Query, weights Weights, now time.Time) []*RankedResult {
	results := make([]*RankedResult, 0, len(hits))
	for _, hit := range hits {
		var graphScore float64
		var matchedKws []string
		if hit.Name == "" && hit.Frequency == 0 {
			graphScore = 0.5
		} else {
			frequency := float64(hit.Frequency) / 100.0
			if frequency > 1.0 {
				frequency = 1.0
			}
			keywordMatch := 0.0
			if matchedKws = matchedKeywords(hit.Name, query.Keywords); len(matchedKws) > 0 {
				keywordMatch = 1.0
			}
			graphScore = 0.7*frequency + 0.3*keywordMatch
		}

		// Exact entity matches are trusted; everything else keeps a
		// neutral half score.
		overlap := 0.5
		var matchedEnts []string
		for _, entity := range query.Entities {
			if strings.EqualFold(entity, hit.Name) {
				overlap = 1.0
				matchedEnts = append(matchedEnts, entity)
			}
		}

		recency := 0.5
		if hit.LastSeenTs > 0 {
			recency = RecencyScore(hit.LastSeenTs, now)
		}

		combined := graphScore*weights.Graph +
			recency*weights.Recency +
			overlap*weights.EntityOverlap

		results = append(results, &RankedResult{
			Source: SourceGraph,
			Entity: hit,
			Scores: map[string]float64{
				FactorGraphRelevance: graphScore,
				FactorRecency:        recency,
				FactorEntityOverlap:  overlap,
			},
			Combined:        combined,
			MatchedEntities: matchedEnts,
			MatchedKeywords: matchedKws,
			Reason:          fmt.Sprintf("graph entity %q (seen %d times)", hit.Name, hit.Frequency),
		})
	}
	return results
}

// dedupeKey identifies a result across both source schemas.
func dedupeKey(r *RankedResult) string {
	switch r.Source {
	case SourceGraph:
		return fmt.Sprintf("graph:%s:%s", r.Entity.Label, r.Entity.Name)
	default:
		if r.Memory.ID != 0 {
			return fmt.Sprintf("memory:%d", r.Memory.ID)
		}
		content := r.Memory.Content
		if len(content) > 50 {
			content = content[:50]
		}
		return "memory:" + content
	}
}

// MergeAndRank concatenates the two ranked lists, drops duplicates (first
// occurrence in input order wins), sorts descending by combined score and
// applies the diversity pass. The sort is stable: ties keep discovery order.
func MergeAndRank(vectorRanked, graphRanked []*RankedResult) []*RankedResult {
	seen := make(map[string]bool)
	merged := make([]*RankedResult, 0, len(vectorRanked)+len(graphRanked))
	for _, r := range append(append([]*RankedResult{}, vectorRanked...), graphRanked...) {
		key := dedupeKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Combined > merged[j].Combined
	})

	return diversify(merged)
}

// diversityCap is how many results one source may place before later
// results from the same source are penalized.
const diversityCap = 3

// diversityPenalty is the multiplicative penalty applied past the cap.
const diversityPenalty = 0.95

// diversify keeps one source from monopolizing the top of the list: once a
// source has placed diversityCap results, every later result from it is
// penalized, then the list is re-sorted.
func diversify(results []*RankedResult) []*RankedResult {
	counts := make(map[Source]int)
	for _, r := range results {
		if counts[r.Source] >= diversityCap {
			r.Combined *= diversityPenalty
			r.Scores[FactorDiversityPenalty] = diversityPenalty
		}
		counts[r.Source]++
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Combined > results[j].Combined
	})
	return results
}

// FilterByThreshold drops results whose combined score is below min,
// preserving order.
func FilterByThreshold(results []*RankedResult, min float64) []*RankedResult {
	filtered := make([]*RankedResult, 0, len(results))
	for _, r := range results {
		if r.Combined >= min {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// TopN truncates the list to at most n results. Non-positive n leaves the
// list unchanged.
func TopN(results []*RankedResult, n int) []*RankedResult {
	if n <= 0 || len(results) <= n {
		return results
	}
	return results[:n]
}
