package models

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragd/internal/domain"
	"ragd/internal/progress"
)

type stubEmbedder struct{ path string }

func (s *stubEmbedder) Name() string                                     { return "stub" }
func (s *stubEmbedder) Prepare([]string) error                           { return nil }
func (s *stubEmbedder) Dimension() int                                   { return 1 }
func (s *stubEmbedder) Embed(context.Context, string) ([]float64, error) { return []float64{1}, nil }

type stubLLM struct{}

func (stubLLM) Infer(context.Context, []domain.Message) (string, error) { return "Answer: ok", nil }

func TestCache_EmbeddingModelIsMemoized(t *testing.T) {
	calls := 0
	c := NewCache(progress.NewTracker(nil), func(path string) (domain.Embedder, error) {
		calls++
		return &stubEmbedder{path: path}, nil
	}, nil, nil)

	first, err := c.EmbeddingModel("model/a")
	require.NoError(t, err)
	second, err := c.EmbeddingModel("model/b")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "model/a", second.(*stubEmbedder).path, "first writer wins")
	assert.Equal(t, 1, calls)
}

func TestCache_EmbeddingFailureLeavesSlotEmpty(t *testing.T) {
	fail := true
	c := NewCache(progress.NewTracker(nil), func(path string) (domain.Embedder, error) {
		if fail {
			return nil, errors.New("out of memory")
		}
		return &stubEmbedder{path: path}, nil
	}, nil, nil)

	_, err := c.EmbeddingModel("m")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelLoad)
	emb, _ := c.Loaded()
	assert.False(t, emb)

	fail = false
	m, err := c.EmbeddingModel("m")
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestCache_LanguageModelCheckpoint(t *testing.T) {
	tr := progress.NewTracker(nil)
	var steps []string
	tr.Register(func(s domain.ProgressState) error {
		steps = append(steps, s.CurrentStep)
		return nil
	})
	calls := 0
	c := NewCache(tr, nil, func(string) (domain.LanguageModel, error) {
		calls++
		return stubLLM{}, nil
	}, nil)

	_, err := c.LanguageModel("gpt-4o-mini")
	require.NoError(t, err)
	_, err = c.LanguageModel("other")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"loading_llm"}, steps)
	_, llm := c.Loaded()
	assert.True(t, llm)
}

func TestCache_LanguageDisabled(t *testing.T) {
	c := NewCache(progress.NewTracker(nil), nil, nil, nil)
	assert.False(t, c.LanguageEnabled())
	_, err := c.LanguageModel("x")
	assert.ErrorIs(t, err, domain.ErrModelLoad)
}

func TestCache_ConcurrentCallersConstructOnce(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c := NewCache(progress.NewTracker(nil), func(path string) (domain.Embedder, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return &stubEmbedder{path: path}, nil
	}, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.EmbeddingModel("m")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}
