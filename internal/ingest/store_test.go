package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragd/internal/domain"
)

func TestParseJSON_Shapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"strings", `["doc1 text", "doc2 text"]`, []string{"doc1 text", "doc2 text"}},
		{"objects", `[{"text": "a"}, {"content": "b"}, {"chunk": "c"}, {"other": "d"}]`, []string{"a", "b", "c"}},
		{"chunks", `{"chunks": ["a", {"text": "b"}]}`, []string{"a", "b"}},
		{"documents", `{"documents": ["a", {"content": "b"}]}`, []string{"a", "b"}},
		{"passages", `{"passages": [{"text": "a"}, "  "]}`, []string{"a"}},
		{"unknown object", `{"items": ["a"]}`, nil},
		{"scalar", `42`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseJSON([]byte(`{`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_SaveAndPassages(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 1<<20, nil, nil)

	up, err := s.Save("wiki5", "corpus.json", []byte(`["doc1 text", "doc2 text"]`))
	require.NoError(t, err)
	assert.Len(t, up.FileID, 12)
	assert.Equal(t, 2, up.Passages)
	assert.FileExists(t, filepath.Join(dir, "wiki5", up.FileID+".json"))

	_, err = s.Save("wiki5", "notes.TXT", []byte("Third passage. Still third."))
	require.NoError(t, err)

	passages, err := s.Passages("wiki5")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc1 text", "doc2 text", "Third passage. Still third."}, passages)
}

func TestStore_SameContentSameID(t *testing.T) {
	s := NewStore(t.TempDir(), 0, nil, nil)
	a, err := s.Save("d", "a.json", []byte(`["x"]`))
	require.NoError(t, err)
	b, err := s.Save("d", "b.json", []byte(`["x"]`))
	require.NoError(t, err)
	assert.Equal(t, a.FileID, b.FileID)
}

func TestStore_Rejects(t *testing.T) {
	s := NewStore(t.TempDir(), 8, nil, nil)

	_, err := s.Save("d", "a.pdf", []byte("x"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = s.Save("d", "a.json", []byte(`["a very long passage"]`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "too large")

	_, err = s.Save("d", "a.json", []byte(`[]`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "no passages")

	_, err = s.Save("../d", "a.txt", []byte("x."))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_PassagesMissing(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, 0, nil, nil)
	_, err := s.Passages("wiki5")
	assert.ErrorIs(t, err, domain.ErrDatasetNotFound)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))
	_, err = s.Passages("empty")
	assert.ErrorIs(t, err, domain.ErrDatasetNotFound)
}
