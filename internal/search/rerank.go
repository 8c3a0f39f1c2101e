package search

import (
	"strings"
	"unicode"

	"github.com/m0rfeo/ragbox/internal/vectorstore"
)

// Reranker adjusts the order of ranked candidates without changing which
// candidates are present. Implementations must not add, drop, or rescore
// entries.
type Reranker interface {
	Rerank(query string, candidates []vectorstore.Scored) []vectorstore.Scored
}

// lexicalEpsilon is the maximum cosine-score gap at which lexical overlap is
// allowed to reorder two adjacent candidates. Larger gaps reflect a real
// semantic difference that token overlap must not override.
const lexicalEpsilon = 0.01

// LexicalReranker nudges near-tied candidates by query token overlap.
// It performs a single bubble pass swapping only adjacent pairs whose cosine
// scores differ by less than lexicalEpsilon, so top-k membership and the
// ordering of clearly-separated results are preserved.
type LexicalReranker struct{}

// Rerank returns the candidates with epsilon-tied neighbours reordered by
// descending token overlap with the query. The input slice is not modified.
func (LexicalReranker) Rerank(query string, candidates []vectorstore.Scored) []vectorstore.Scored {
	if len(candidates) < 2 {
		return candidates
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return candidates
	}

	out := make([]vectorstore.Scored, len(candidates))
	copy(out, candidates)

	overlaps := make([]float64, len(out))
	for i, c := range out {
		overlaps[i] = tokenOverlap(queryTokens, c.Chunk.Text)
	}

	for i := 0; i < len(out)-1; i++ {
		if out[i].Score-out[i+1].Score < lexicalEpsilon && overlaps[i+1] > overlaps[i] {
			out[i], out[i+1] = out[i+1], out[i]
			overlaps[i], overlaps[i+1] = overlaps[i+1], overlaps[i]
		}
	}
	return out
}

// tokenize lowercases and splits on non-alphanumeric runes, returning the
// set of distinct tokens.
func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}

// tokenOverlap is the fraction of query tokens that appear in text.
func tokenOverlap(queryTokens map[string]struct{}, text string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	textTokens := tokenize(text)
	hits := 0
	for tok := range queryTokens {
		if _, ok := textTokens[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}
