// Package summarizer builds the short corpus summary stored with a dataset.
package summarizer

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strings"

	"ragd/internal/chunker"
)

const defaultSentences = 5

var wordPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// FrequencySummarizer picks the sentences whose words recur most across the
// corpus. Sentences are split the same way passages are chunked.
type FrequencySummarizer struct {
	split     func(string) []string
	stopwords map[string]struct{}
}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{split: chunker.Sentences, stopwords: defaultStopwords()}
}

type sentence struct {
	pos    int
	text   string
	words  []string
	weight float64
}

// Summarize returns up to maxSentences sentences of text in corpus order.
// Sentences repeated by overlapping passages count once.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = defaultSentences
	}
	sentences := s.distinct(text)
	if len(sentences) == 0 {
		return strings.TrimSpace(text), nil
	}

	freq := map[string]float64{}
	peak := 0.0
	for _, st := range sentences {
		for _, w := range st.words {
			freq[w]++
			peak = max(peak, freq[w])
		}
	}
	for i := range sentences {
		st := &sentences[i]
		if len(st.words) == 0 {
			continue
		}
		for _, w := range st.words {
			st.weight += freq[w] / peak
		}
		st.weight /= math.Sqrt(float64(len(st.words)))
	}

	ranked := slices.Clone(sentences)
	slices.SortStableFunc(ranked, func(a, b sentence) int { return cmp.Compare(b.weight, a.weight) })
	ranked = ranked[:min(maxSentences, len(ranked))]
	slices.SortFunc(ranked, func(a, b sentence) int { return cmp.Compare(a.pos, b.pos) })

	out := make([]string, len(ranked))
	for i, st := range ranked {
		out[i] = st.text
	}
	return strings.Join(out, " "), nil
}

func (s *FrequencySummarizer) distinct(text string) []sentence {
	seen := map[string]struct{}{}
	var out []sentence
	for _, raw := range s.split(text) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		out = append(out, sentence{pos: len(out), text: raw, words: s.words(raw)})
	}
	return out
}

// words returns the lowercased non-stopword tokens of text.
func (s *FrequencySummarizer) words(text string) []string {
	all := wordPattern.FindAllString(strings.ToLower(text), -1)
	out := all[:0]
	for _, w := range all {
		if _, stop := s.stopwords[w]; !stop {
			out = append(out, w)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := strings.Fields(`a an the and or but if then else for to of in on at by with as is are was were
		be been being it this that these those from up down over under again further than so such into
		about between through during before after above below out off own same too very can will just
		don should now`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
