package engine

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"ragd/internal/domain"
)

var wordPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// lexicalSearch ranks chunks by the Ochiai coefficient of their token sets
// with the query. Used when embeddings carry no signal.
func lexicalSearch(chunks []domain.Chunk, query string, topK int) []domain.SearchResult {
	qset := tokenSet(query)
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(chunks))
	for i, ch := range chunks {
		scores[i] = pair{i, ochiai(qset, tokenSet(ch.Text))}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	topK = min(topK, len(scores))
	out := make([]domain.SearchResult, 0, topK)
	for _, p := range scores[:topK] {
		out = append(out, domain.SearchResult{Chunk: chunks[p.idx], Score: p.score})
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordPattern.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// ochiai is |A∩B| / sqrt(|A||B|).
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range b {
		if _, ok := a[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
