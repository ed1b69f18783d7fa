package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize_PicksFrequentSentencesInOrder(t *testing.T) {
	s := NewFrequencySummarizer()
	text := "Go channels carry values. The weather was mild. Channels in Go synchronize goroutines. Lunch was late."
	got, err := s.Summarize(text, 2)
	require.NoError(t, err)
	assert.Equal(t, "Go channels carry values. Channels in Go synchronize goroutines.", got)
}

func TestSummarize_KeepsTrailingFragment(t *testing.T) {
	s := NewFrequencySummarizer()
	got, err := s.Summarize("  no punctuation here ", 3)
	require.NoError(t, err)
	assert.Equal(t, "no punctuation here", got)
}

func TestSummarize_OverlappingPassagesCountOnce(t *testing.T) {
	s := NewFrequencySummarizer()
	// Two passages sharing the middle sentence, as chunk overlap produces.
	text := "Cats purr. Dogs bark at night.\nDogs bark at night. Birds sing."
	got, err := s.Summarize(text, 3)
	require.NoError(t, err)
	assert.Equal(t, "Cats purr. Dogs bark at night. Birds sing.", got)
}

func TestSummarize_UsesInjectedSplitter(t *testing.T) {
	s := NewFrequencySummarizer()
	s.split = func(text string) []string { return []string{"first part", "second part", "first part"} }
	got, err := s.Summarize("ignored", 5)
	require.NoError(t, err)
	assert.Equal(t, "first part second part", got)
}

func TestWords_DropsStopwordsAndKeepsApostrophes(t *testing.T) {
	s := NewFrequencySummarizer()
	assert.Equal(t, []string{"don’t", "stop", "music"}, s.words("Don’t stop the music"))
}
