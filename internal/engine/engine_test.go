package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragd/internal/domain"
	"ragd/internal/embedding/tfidf"
	"ragd/internal/summarizer"
	"ragd/internal/vectorstore"
	"ragd/internal/vectorstore/memory"
)

func testConfig(t *testing.T) domain.EngineConfig {
	return domain.EngineConfig{
		DatasetName:   "wiki5",
		WorkingDir:    t.TempDir(),
		MaxWorkers:    2,
		RetrievalTopK: 5,
		BatchSize:     1,
	}
}

func TestEngine_IndexAndRetrieve(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	e, err := New(ctx, cfg, tfidf.NewEmbedder(), Options{Summarizer: summarizer.NewFrequencySummarizer(), SummarySentences: 1})
	require.NoError(t, err)

	_, err = e.Retrieve(ctx, []domain.RetrievalQuery{{Question: "x"}})
	require.ErrorIs(t, err, domain.ErrIndexNotBuilt)

	require.NoError(t, e.Index(ctx, []string{"doc1 text", "doc2 text"}))
	assert.Equal(t, 2, e.Len())

	res, err := e.Retrieve(ctx, []domain.RetrievalQuery{{Question: "What is doc1 about?"}, {Question: "doc2"}})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "doc1 text", res[0].SortedPassages[0])
	assert.Equal(t, "doc2 text", res[1].SortedPassages[0])
	assert.Len(t, res[0].SortedScores, 2)
	assert.GreaterOrEqual(t, res[0].SortedScores[0], res[0].SortedScores[1])

	for _, name := range []string{passagesFile, embedderFile, manifestFile} {
		assert.FileExists(t, filepath.Join(cfg.Dir(), name))
	}
}

func TestEngine_RestoresFromArtifacts(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	first, err := New(ctx, cfg, tfidf.NewEmbedder(), Options{})
	require.NoError(t, err)
	require.NoError(t, first.Index(ctx, []string{"cats purr softly", "dogs bark loudly", "birds sing early"}))

	want, err := first.Retrieve(ctx, []domain.RetrievalQuery{{Question: "which animal barks loudly"}})
	require.NoError(t, err)

	second, err := New(ctx, cfg, tfidf.NewEmbedder(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, second.Len())
	got, err := second.Retrieve(ctx, []domain.RetrievalQuery{{Question: "which animal barks loudly"}})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEngine_RestoreRejectsCorruptArtifact(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Dir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Dir(), passagesFile), []byte("{"), 0o644))

	_, err := New(context.Background(), cfg, tfidf.NewEmbedder(), Options{})
	assert.Error(t, err)
}

func TestEngine_LexicalFallback(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, testConfig(t), tfidf.NewEmbedder(), Options{})
	require.NoError(t, err)
	require.NoError(t, e.Index(ctx, []string{"alpha beta", "what about this"}))

	// Only stopwords: the TF-IDF vector is zero.
	res, err := e.Retrieve(ctx, []domain.RetrievalQuery{{Question: "what about"}})
	require.NoError(t, err)
	assert.Equal(t, "what about this", res[0].SortedPassages[0])
	assert.InDelta(t, 0.816, res[0].SortedScores[0], 0.001)
}

func TestEngine_UsesConfiguredStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	var asked, generation string
	opts := Options{NewStore: func(dataset, gen string) vectorstore.Storage {
		asked, generation = dataset, gen
		return store
	}}
	e, err := New(ctx, testConfig(t), tfidf.NewEmbedder(), opts)
	require.NoError(t, err)
	require.NoError(t, e.Index(ctx, []string{"one fish", "two fish", "red fish"}))
	assert.Equal(t, "wiki5", asked)
	assert.NotEmpty(t, generation)
	assert.Equal(t, 3, store.Len())
}

func TestEngine_DoesNotPrepareSharedEmbedder(t *testing.T) {
	ctx := context.Background()
	shared := tfidf.NewEmbedder()

	fruits, err := New(ctx, testConfig(t), shared, Options{})
	require.NoError(t, err)
	require.NoError(t, fruits.Index(ctx, []string{"apple banana", "cherry date"}))

	cfg := testConfig(t)
	cfg.DatasetName = "other"
	other, err := New(ctx, cfg, shared, Options{})
	require.NoError(t, err)
	require.NoError(t, other.Index(ctx, []string{"cherry zebra", "xylophone"}))

	assert.Zero(t, shared.Dimension(), "the cached embedder stays a template")
	res, err := fruits.Retrieve(ctx, []domain.RetrievalQuery{{Question: "cherry"}})
	require.NoError(t, err)
	assert.Equal(t, "cherry date", res[0].SortedPassages[0])
}

func TestEngine_FailedRebuildKeepsServingState(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	e, err := New(ctx, cfg, tfidf.NewEmbedder(), Options{})
	require.NoError(t, err)
	require.NoError(t, e.Index(ctx, []string{"apple banana", "cherry date"}))

	// A directory where the manifest is staged makes the artifact write fail.
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Dir(), manifestFile+".tmp"), 0o755))
	err = e.Index(ctx, []string{"cherry zebra", "xylophone"})
	require.ErrorContains(t, err, "write artifacts")

	res, err := e.Retrieve(ctx, []domain.RetrievalQuery{{Question: "cherry"}})
	require.NoError(t, err)
	assert.Equal(t, "cherry date", res[0].SortedPassages[0])
	assert.InDelta(t, 0.707, res[0].SortedScores[0], 0.001)

	m, err := readManifest(cfg.Dir())
	require.NoError(t, err)
	assert.Equal(t, 2, m.Passages)
}

type failingEmbedder struct{ *tfidf.Embedder }

func (f *failingEmbedder) Fresh() domain.StatefulEmbedder {
	return &failingEmbedder{Embedder: tfidf.NewEmbedder()}
}

func (f *failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("boom")
}

func TestEngine_IndexErrors(t *testing.T) {
	ctx := context.Background()
	e, err := New(ctx, testConfig(t), &failingEmbedder{Embedder: tfidf.NewEmbedder()}, Options{})
	require.NoError(t, err)

	require.ErrorIs(t, e.Index(ctx, nil), domain.ErrInvalidInput)
	assert.ErrorContains(t, e.Index(ctx, []string{"a passage"}), "boom")
}

func TestEngine_IndexHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, err := New(context.Background(), testConfig(t), tfidf.NewEmbedder(), Options{})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Index(ctx, []string{"a passage", "another passage"}), context.Canceled)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), domain.EngineConfig{}, tfidf.NewEmbedder(), Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = New(context.Background(), testConfig(t), nil, Options{})
	assert.Error(t, err)
}
