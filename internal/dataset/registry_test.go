package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragd/internal/domain"
	"ragd/internal/models"
	"ragd/internal/progress"
)

type stubEmbedder struct{}

func (stubEmbedder) Name() string                                     { return "stub" }
func (stubEmbedder) Prepare([]string) error                           { return nil }
func (stubEmbedder) Dimension() int                                   { return 1 }
func (stubEmbedder) Embed(context.Context, string) ([]float64, error) { return []float64{1}, nil }

type stubEngine struct{ cfg domain.EngineConfig }

func (stubEngine) Index(context.Context, []string) error { return nil }
func (stubEngine) Retrieve(context.Context, []domain.RetrievalQuery) ([]domain.RetrievalResult, error) {
	return nil, nil
}

func newRegistry(t *testing.T) (*Registry, string, string) {
	t.Helper()
	root := t.TempDir()
	work, uploads := filepath.Join(root, "import"), filepath.Join(root, "uploads")
	cache := models.NewCache(progress.NewTracker(nil), func(string) (domain.Embedder, error) { return stubEmbedder{}, nil }, nil, nil)
	factory := func(_ context.Context, cfg domain.EngineConfig, _ domain.Embedder) (domain.Engine, error) {
		return stubEngine{cfg: cfg}, nil
	}
	defaults := domain.EngineConfig{WorkingDir: work, EmbeddingModel: "m", RetrievalTopK: 5}
	return NewRegistry(defaults, uploads, cache, factory, nil), work, uploads
}

func writeArtifact(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}

func TestList(t *testing.T) {
	r, work, _ := newRegistry(t)

	names, err := r.List()
	require.NoError(t, err)
	assert.Empty(t, names, "missing root lists nothing")

	writeArtifact(t, filepath.Join(work, "wiki5"), "passages.rag")
	writeArtifact(t, filepath.Join(work, "notes"), "readme.txt")
	writeArtifact(t, filepath.Join(work, "alpha"), "embedder.rag")
	writeArtifact(t, work, "stray.rag")

	names, err = r.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "wiki5"}, names)
}

func TestLoad(t *testing.T) {
	r, work, _ := newRegistry(t)

	_, _, err := r.Load(context.Background(), "wiki5")
	require.ErrorIs(t, err, domain.ErrDatasetNotFound)

	writeArtifact(t, filepath.Join(work, "wiki5"), "passages.rag")
	eng, cfg, err := r.Load(context.Background(), "wiki5")
	require.NoError(t, err)
	assert.Equal(t, "wiki5", cfg.DatasetName)
	assert.Equal(t, work, cfg.WorkingDir)
	assert.Equal(t, 5, cfg.RetrievalTopK)
	assert.Equal(t, cfg, eng.(stubEngine).cfg)
}

func TestLoad_FactoryError(t *testing.T) {
	r, work, _ := newRegistry(t)
	r.newEngine = func(context.Context, domain.EngineConfig, domain.Embedder) (domain.Engine, error) {
		return nil, errors.New("corrupt")
	}
	writeArtifact(t, filepath.Join(work, "wiki5"), "passages.rag")
	_, _, err := r.Load(context.Background(), "wiki5")
	assert.ErrorContains(t, err, "corrupt")
}

func TestDelete(t *testing.T) {
	r, work, uploads := newRegistry(t)

	_, err := r.Delete("wiki5")
	require.ErrorIs(t, err, domain.ErrDatasetNotFound)

	writeArtifact(t, filepath.Join(work, "wiki5"), "passages.rag")
	writeArtifact(t, filepath.Join(uploads, "wiki5"), "abc.json")
	removed, err := r.Delete("wiki5")
	require.NoError(t, err)
	assert.Equal(t, Removed{Index: true, Uploads: true}, removed)
	assert.NoDirExists(t, filepath.Join(work, "wiki5"))
	assert.NoDirExists(t, filepath.Join(uploads, "wiki5"))

	writeArtifact(t, filepath.Join(uploads, "only"), "abc.json")
	removed, err = r.Delete("only")
	require.NoError(t, err)
	assert.Equal(t, Removed{Uploads: true}, removed)
}

func TestValidateName(t *testing.T) {
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`, "../etc"} {
		assert.ErrorIs(t, ValidateName(bad), domain.ErrInvalidInput, bad)
	}
	assert.NoError(t, ValidateName("wiki5"))

	r, _, _ := newRegistry(t)
	_, err := r.Delete("../x")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.False(t, r.Exists(".."))
}
