package queryengine

// Strategy is the retrieval posture suggested for a query type: how much
// to trust the vector index versus the entity graph, and whether recency
// should be boosted before ranking.
type Strategy struct {
	VectorWeight    float32
	GraphWeight     float32
	UseRecencyBoost bool
}

// strategyTable maps each query type to its retrieval posture.
// Relationship questions are graph-dominant; time-scoped questions lean on
// the vector index with a recency boost.
var strategyTable = map[QueryType]Strategy{
	QueryTypeRelational:  {VectorWeight: 0.3, GraphWeight: 0.7},
	QueryTypeTemporal:    {VectorWeight: 0.8, GraphWeight: 0.2, UseRecencyBoost: true},
	QueryTypeExploratory: {VectorWeight: 0.5, GraphWeight: 0.5},
	QueryTypeFactual:     {VectorWeight: 0.7, GraphWeight: 0.3},
	QueryTypeSemantic:    {VectorWeight: 0.6, GraphWeight: 0.4},
}

// Suggest returns the retrieval strategy for the parsed query. Unknown
// types fall back to the semantic posture.
func Suggest(query *StructuredQuery) Strategy {
	if s, ok := strategyTable[query.Type]; ok {
		return s
	}
	return strategyTable[QueryTypeSemantic]
}
