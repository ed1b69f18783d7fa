package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragd/internal/domain"
)

func TestSentences_KeepsTrailingFragment(t *testing.T) {
	got := Sentences("One. Two!  Three? four")
	assert.Equal(t, []string{"One.", "Two!", "Three?", "four"}, got)
	assert.Empty(t, Sentences("   "))
}

func TestChunk_Overlap(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	chunks, err := c.Chunk(domain.Document{ID: "d", Content: "A. B. C. D."})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "A. B.", chunks[0].Text)
	assert.Equal(t, "B. C.", chunks[1].Text)
	assert.Equal(t, "C. D.", chunks[2].Text)
	assert.Equal(t, "d:2", chunks[2].ChunkID)
	assert.Equal(t, 2, chunks[2].Index)
}

func TestChunk_OverlapNeverStalls(t *testing.T) {
	c := NewSentenceChunker(1, 5)
	chunks, err := c.Chunk(domain.Document{ID: "d", Content: "A. B. C."})
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestPassages(t *testing.T) {
	c := NewSentenceChunker(5, 0)
	assert.Equal(t, []string{"doc1 text. more text."}, c.Passages("f", "doc1 text. more text."))
	assert.Empty(t, c.Passages("f", ""))
}
