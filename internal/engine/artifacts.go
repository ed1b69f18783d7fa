package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"ragd/internal/domain"
)

const (
	passagesFile = "passages" + domain.ArtifactExt
	embedderFile = "embedder" + domain.ArtifactExt
	manifestFile = "manifest.yaml"
)

// Manifest describes a built index. It is informational; the engine reloads
// from the artifact files.
type Manifest struct {
	Dataset   string `yaml:"dataset"`
	Embedder  string `yaml:"embedder"`
	Dimension int    `yaml:"dimension"`
	Passages  int    `yaml:"passages"`
	Summary   string `yaml:"summary,omitempty"`
	// Generation names the vector store build the passages were written to.
	Generation string              `yaml:"generation,omitempty"`
	IndexedAt  time.Time           `yaml:"indexed_at"`
	Config     domain.EngineConfig `yaml:"config"`
}

type passageArtifact struct {
	Passages []string    `json:"passages"`
	Vectors  [][]float64 `json:"vectors"`
}

func newManifest(cfg domain.EngineConfig, embedder domain.Embedder, n int, summary, generation string) *Manifest {
	return &Manifest{
		Dataset:    cfg.DatasetName,
		Embedder:   embedder.Name(),
		Dimension:  embedder.Dimension(),
		Passages:   n,
		Summary:    summary,
		Generation: generation,
		IndexedAt:  time.Now().UTC(),
		Config:     cfg,
	}
}

func readManifest(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", manifestFile, err)
	}
	return &m, nil
}

func hasArtifacts(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && domain.IsArtifact(e.Name()) {
			return true
		}
	}
	return false
}

// writeArtifacts stages every file before renaming any of them, so a failed
// write leaves the previous artifacts in place.
func writeArtifacts(dir string, passages []string, vectors [][]float64, embedder domain.Embedder, m *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := map[string][]byte{}
	if stateful, ok := embedder.(domain.StatefulEmbedder); ok {
		state, err := stateful.MarshalState()
		if err != nil {
			return fmt.Errorf("embedder state: %w", err)
		}
		files[embedderFile] = state
	}
	data, err := json.Marshal(passageArtifact{Passages: passages, Vectors: vectors})
	if err != nil {
		return err
	}
	files[passagesFile] = data
	out, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	files[manifestFile] = out

	order := []string{embedderFile, passagesFile, manifestFile}
	for _, name := range order {
		if data, ok := files[name]; ok {
			if err := os.WriteFile(filepath.Join(dir, name+".tmp"), data, 0o644); err != nil {
				return err
			}
		}
	}
	for _, name := range order {
		if _, ok := files[name]; ok {
			if err := os.Rename(filepath.Join(dir, name+".tmp"), filepath.Join(dir, name)); err != nil {
				return err
			}
		}
	}
	return nil
}

// restore loads the artifacts of the current generation. A store that already
// holds every passage is reused as is.
func (e *Engine) restore(ctx context.Context) error {
	dir := e.cfg.Dir()
	data, err := os.ReadFile(filepath.Join(dir, passagesFile))
	if err != nil {
		return err
	}
	var art passageArtifact
	if err := json.Unmarshal(data, &art); err != nil {
		return fmt.Errorf("decode %s: %w", passagesFile, err)
	}
	if len(art.Passages) == 0 || len(art.Passages) != len(art.Vectors) {
		return errors.New("corrupt passage artifact")
	}

	emb := e.freshEmbedder()
	if stateful, ok := emb.(domain.StatefulEmbedder); ok {
		state, err := os.ReadFile(filepath.Join(dir, embedderFile))
		switch {
		case err == nil:
			if err := stateful.RestoreState(state); err != nil {
				return fmt.Errorf("restore embedder: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			e.log.Warn("no embedder state, preparing from passages")
			if err := emb.Prepare(art.Passages); err != nil {
				return err
			}
		default:
			return err
		}
	}

	m, err := readManifest(dir)
	if err != nil {
		e.log.Warn("unreadable manifest", zap.Error(err))
		m = &Manifest{}
	}
	store := e.newStore(m.Generation)
	chunks := e.chunksFor(art.Passages)
	n, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count store: %w", err)
	}
	if n != len(chunks) {
		if err := fill(ctx, store, chunks, art.Vectors, e.cfg.BatchSize); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.embedder, e.store, e.generation = emb, store, m.Generation
	e.chunks = chunks
	e.manifest = m
	e.mu.Unlock()
	e.log.Info("index restored", zap.Int("passages", len(chunks)), zap.Bool("reused_store", n == len(chunks)))
	return nil
}
