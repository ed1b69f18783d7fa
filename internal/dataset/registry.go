// Package dataset discovers, loads and deletes datasets stored under the
// working root.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"ragd/internal/domain"
	"ragd/internal/logger"
	"ragd/internal/models"
)

// Registry maps dataset names to directories under the working root.
type Registry struct {
	defaults  domain.EngineConfig
	uploadDir string
	models    *models.Cache
	newEngine domain.EngineFactory
	log       *zap.Logger
}

// NewRegistry returns a registry rooted at defaults.WorkingDir. Loaded
// engines get defaults bound to the dataset name.
func NewRegistry(defaults domain.EngineConfig, uploadDir string, cache *models.Cache, newEngine domain.EngineFactory, log *zap.Logger) *Registry {
	return &Registry{
		defaults:  defaults,
		uploadDir: uploadDir,
		models:    cache,
		newEngine: newEngine,
		log:       logger.Module(log, "dataset"),
	}
}

// Removed reports which directories Delete removed.
type Removed struct {
	Index   bool `json:"index"`
	Uploads bool `json:"uploads"`
}

// ValidateName rejects names that are not a single path element.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: invalid dataset name %q", domain.ErrInvalidInput, name)
	}
	return nil
}

// List returns the names of all datasets. A missing working root yields none.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.defaults.WorkingDir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() && r.Exists(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Exists reports whether name has at least one index artifact.
func (r *Registry) Exists(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	entries, err := os.ReadDir(r.indexDir(name))
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

// Config returns the engine configuration for name.
func (r *Registry) Config(name string) domain.EngineConfig {
	return r.defaults.ForDataset(name)
}

// Load rebuilds the engine of name from its artifacts.
func (r *Registry) Load(ctx context.Context, name string) (domain.Engine, domain.EngineConfig, error) {
	if err := ValidateName(name); err != nil {
		return nil, domain.EngineConfig{}, err
	}
	if !r.Exists(name) {
		return nil, domain.EngineConfig{}, fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, name)
	}
	cfg := r.Config(name)
	embedder, err := r.models.EmbeddingModel(cfg.EmbeddingModel)
	if err != nil {
		return nil, cfg, err
	}
	if r.models.LanguageEnabled() {
		if _, err := r.models.LanguageModel(cfg.LLMModel); err != nil {
			return nil, cfg, err
		}
	}
	eng, err := r.newEngine(ctx, cfg, embedder)
	if err != nil {
		return nil, cfg, fmt.Errorf("load %s: %w", name, err)
	}
	r.log.Info("dataset loaded", zap.String("dataset", name))
	return eng, cfg, nil
}

// Delete removes the index and upload directories of name.
func (r *Registry) Delete(name string) (Removed, error) {
	var removed Removed
	if err := ValidateName(name); err != nil {
		return removed, err
	}
	var err error
	if removed.Index, err = removeDir(r.indexDir(name)); err != nil {
		return removed, err
	}
	if r.uploadDir != "" {
		if removed.Uploads, err = removeDir(filepath.Join(r.uploadDir, name)); err != nil {
			return removed, err
		}
	}
	if !removed.Index && !removed.Uploads {
		return removed, fmt.Errorf("%w: %s", domain.ErrDatasetNotFound, name)
	}
	r.log.Info("dataset deleted", zap.String("dataset", name), zap.Bool("index", removed.Index), zap.Bool("uploads", removed.Uploads))
	return removed, nil
}

func (r *Registry) indexDir(name string) string {
	return filepath.Join(r.defaults.WorkingDir, name)
}

func removeDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return false, err
	}
	return true, nil
}
