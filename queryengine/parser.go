// Package queryengine turns free-text queries into structured queries and
// suggests a retrieval strategy for them. Classification is rule-based:
// ordered regex families evaluated in a fixed priority, with a semantic
// fallback, so routing stays deterministic and fast (<1ms, no I/O).
package queryengine

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// QueryType is the classified intent of a query.
type QueryType string

const (
	QueryTypeFactual     QueryType = "factual"
	QueryTypeRelational  QueryType = "relational"
	QueryTypeTemporal    QueryType = "temporal"
	QueryTypeExploratory QueryType = "exploratory"
	QueryTypeSemantic    QueryType = "semantic"
)

// TemporalWindow is a resolved relative-time phrase.
type TemporalWindow struct {
	From  time.Time
	To    time.Time
	Label string
}

// StructuredQuery is the parsed form of a free-text query.
// It is produced once per request and never mutated afterwards.
type StructuredQuery struct {
	OriginalText string
	Type         QueryType
	Entities     []string
	Keywords     []string
	Intent       string
	Window       *TemporalWindow
	Confidence   float32
}

// patternFamily binds a query type to its recognition patterns.
// Families are evaluated in slice order; the first match wins.
type patternFamily struct {
	queryType QueryType
	patterns  []*regexp.Regexp
}

// timePhrase binds a relative-time phrase to its window calculator.
// Phrases are evaluated in slice order; the first match wins.
type timePhrase struct {
	phrase string
	window func(now time.Time) *TemporalWindow
}

// Parser converts query text into a StructuredQuery.
type Parser struct {
	families    []patternFamily
	timePhrases []timePhrase
	stopWords   map[string]bool
	properNoun  *regexp.Regexp
	quoted      *regexp.Regexp
	nonWord     *regexp.Regexp

	// nowFn is the clock used for temporal windows. Injectable for tests.
	nowFn func() time.Time
}

// ParserOption customizes a Parser.
type ParserOption func(*Parser)

// WithNow overrides the parser clock. Temporal windows are computed
// relative to the returned time.
func WithNow(fn func() time.Time) ParserOption {
	return func(p *Parser) {
		p.nowFn = fn
	}
}

// Common English function and question words dropped from keywords.
var stopWordList = []string{
	"the", "and", "for", "are", "was", "were", "been", "being",
	"have", "has", "had", "not", "but", "you", "your", "our",
	"all", "any", "can", "could", "would", "should", "will",
	"what", "when", "where", "which", "who", "whom", "how", "why",
	"this", "that", "these", "those", "with", "from", "into",
	"about", "than", "then", "them", "they", "their", "there",
	"does", "did", "doing",
}

// NewParser creates a query parser with the built-in pattern tables.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		families: []patternFamily{
			{
				queryType: QueryTypeFactual,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`^(what|who|where|which)\s+(is|are|was|were)\b`),
					regexp.MustCompile(`^(define|definition\s+of)\b`),
					regexp.MustCompile(`^(tell\s+me\s+about|do\s+i\s+know)\b`),
					regexp.MustCompile(`^(is|are|was|were|does|do|did)\s+\w+`),
				},
			},
			{
				queryType: QueryTypeRelational,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`^how\s+(is|are|was|were)\s+.+\s+(related|connected|linked)`),
					regexp.MustCompile(`^(relationship|connection|link)s?\s+between\b`),
					regexp.MustCompile(`^who\s+(knows|works\s+with|introduced)\b`),
					regexp.MustCompile(`^.*\b(related\s+to|connected\s+to|linked\s+to)\b`),
				},
			},
			{
				queryType: QueryTypeTemporal,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`^(recent|latest|newest)\b`),
					regexp.MustCompile(`^when\s+(did|do|will)\b`),
					regexp.MustCompile(`^what\s+happened\b`),
					regexp.MustCompile(`^.*\b(today|yesterday|this\s+week|last\s+week|last\s+month)\b`),
				},
			},
			{
				queryType: QueryTypeExploratory,
				patterns: []*regexp.Regexp{
					regexp.MustCompile(`^(explore|browse|discover)\b`),
					regexp.MustCompile(`^(tell\s+me\s+more|what\s+else)\b`),
					regexp.MustCompile(`^(show|find|list)\s+(me\s+)?(everything|all)\b`),
					regexp.MustCompile(`^what\s+do\s+(i|you)\s+know\s+about\b`),
				},
			},
		},
		stopWords:  make(map[string]bool, len(stopWordList)),
		properNoun: regexp.MustCompile(`^[A-Z][A-Za-z]+$`),
		quoted:     regexp.MustCompile(`"([^"]+)"`),
		nonWord:    regexp.MustCompile(`[^a-z0-9]`),
		nowFn:      time.Now,
	}

	for _, w := range stopWordList {
		p.stopWords[w] = true
	}

	p.initTimePhrases()

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// initTimePhrases builds the ordered relative-time phrase table.
// All windows are computed in the server's local time zone.
func (p *Parser) initTimePhrases() {
	startOfDay := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
	// Monday of the week containing t.
	startOfWeek := func(t time.Time) time.Time {
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return startOfDay(t).AddDate(0, 0, -(weekday - 1))
	}

	p.timePhrases = []timePhrase{
		{"recent", func(now time.Time) *TemporalWindow {
			return &TemporalWindow{From: now.AddDate(0, 0, -7), To: now, Label: "recent"}
		}},
		{"today", func(now time.Time) *TemporalWindow {
			start := startOfDay(now)
			return &TemporalWindow{From: start, To: start.Add(24 * time.Hour), Label: "today"}
		}},
		{"yesterday", func(now time.Time) *TemporalWindow {
			start := startOfDay(now).AddDate(0, 0, -1)
			return &TemporalWindow{From: start, To: start.Add(24 * time.Hour), Label: "yesterday"}
		}},
		{"this week", func(now time.Time) *TemporalWindow {
			start := startOfWeek(now)
			return &TemporalWindow{From: start, To: start.AddDate(0, 0, 7), Label: "this week"}
		}},
		{"last week", func(now time.Time) *TemporalWindow {
			start := startOfWeek(now).AddDate(0, 0, -7)
			return &TemporalWindow{From: start, To: start.AddDate(0, 0, 7), Label: "last week"}
		}},
		{"last month", func(now time.Time) *TemporalWindow {
			firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
			return &TemporalWindow{From: firstOfMonth.AddDate(0, -1, 0), To: firstOfMonth, Label: "last month"}
		}},
	}
}

// Parse converts query text into a StructuredQuery. It never fails: text
// that matches no pattern family falls back to the semantic type with
// reduced confidence.
func (p *Parser) Parse(text string) *StructuredQuery {
	trimmed := strings.TrimSpace(text)
	lowered := strings.ToLower(trimmed)

	query := &StructuredQuery{
		OriginalText: text,
		Type:         p.classify(lowered),
		Entities:     p.extractEntities(trimmed),
		Keywords:     p.extractKeywords(lowered),
		Window:       p.detectWindow(lowered),
	}

	query.Intent = buildIntent(query)
	query.Confidence = scoreConfidence(query)
	return query
}

// classify returns the type of the first family with a matching pattern,
// or the semantic fallback when nothing matches.
func (p *Parser) classify(lowered string) QueryType {
	for _, family := range p.families {
		for _, pattern := range family.patterns {
			if pattern.MatchString(lowered) {
				return family.queryType
			}
		}
	}
	return QueryTypeSemantic
}

// extractEntities collects quoted phrases verbatim plus capitalized words
// after the first token. Deduplicated case-sensitively, order preserved.
func (p *Parser) extractEntities(trimmed string) []string {
	seen := make(map[string]bool)
	var entities []string

	add := func(e string) {
		if e != "" && !seen[e] {
			seen[e] = true
			entities = append(entities, e)
		}
	}

	for _, match := range p.quoted.FindAllStringSubmatch(trimmed, -1) {
		add(match[1])
	}

	words := strings.Fields(trimmed)
	for i, word := range words {
		if i == 0 {
			// The first word is capitalized by convention, not by meaning.
			continue
		}
		candidate := strings.Trim(word, `.,!?;:'"()`)
		if len(candidate) >= 2 && p.properNoun.MatchString(candidate) {
			add(candidate)
		}
	}

	return entities
}

// extractKeywords returns lowercase content tokens with punctuation
// stripped, stop words removed, and short tokens dropped.
func (p *Parser) extractKeywords(lowered string) []string {
	seen := make(map[string]bool)
	var keywords []string

	for _, token := range strings.Fields(lowered) {
		cleaned := p.nonWord.ReplaceAllString(token, "")
		if len(cleaned) < 3 || p.stopWords[cleaned] || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		keywords = append(keywords, cleaned)
	}

	return keywords
}

// detectWindow resolves the first matching relative-time phrase, in table
// order, against the parser clock.
func (p *Parser) detectWindow(lowered string) *TemporalWindow {
	for _, tp := range p.timePhrases {
		if strings.Contains(lowered, tp.phrase) {
			return tp.window(p.nowFn())
		}
	}
	return nil
}

// buildIntent produces a human-readable summary for logs and debugging.
// It is derived deterministically and never matched against.
func buildIntent(q *StructuredQuery) string {
	keywords := q.Keywords
	if len(keywords) > 3 {
		keywords = keywords[:3]
	}

	intent := fmt.Sprintf("%s query", q.Type)
	if len(keywords) > 0 {
		intent += " about " + strings.Join(keywords, ", ")
	}
	if len(q.Entities) > 0 {
		intent += " involving " + strings.Join(q.Entities, ", ")
	}
	return intent
}

// scoreConfidence estimates how confident the rule-based classification is.
func scoreConfidence(q *StructuredQuery) float32 {
	confidence := float32(0.5)
	if q.Type != QueryTypeSemantic {
		confidence += 0.2
	}
	entityCount := len(q.Entities)
	if entityCount > 2 {
		entityCount = 2
	}
	confidence += 0.15 * float32(entityCount)
	if len(q.Keywords) >= 2 {
		confidence += 0.1
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
