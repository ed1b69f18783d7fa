// Package ingest stores uploaded corpus files and turns them into passages.
package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"ragd/internal/chunker"
	"ragd/internal/dataset"
	"ragd/internal/domain"
	"ragd/internal/logger"
)

// Upload describes one stored file.
type Upload struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Dataset  string `json:"dataset_name"`
	Size     int64  `json:"file_size"`
	Passages int    `json:"chunks_count"`
}

// Store keeps raw uploads under <dir>/<dataset>.
type Store struct {
	dir     string
	maxSize int64
	chunker *chunker.SentenceChunker
	log     *zap.Logger
}

func NewStore(dir string, maxSize int64, c *chunker.SentenceChunker, log *zap.Logger) *Store {
	if c == nil {
		c = chunker.NewSentenceChunker(5, 0)
	}
	return &Store{dir: dir, maxSize: maxSize, chunker: c, log: logger.Module(log, "ingest")}
}

// Save validates and parses content, then stores it as <fileid><ext>.
func (s *Store) Save(datasetName, filename string, content []byte) (Upload, error) {
	if err := dataset.ValidateName(datasetName); err != nil {
		return Upload{}, err
	}
	if s.maxSize > 0 && int64(len(content)) > s.maxSize {
		return Upload{}, fmt.Errorf("%w: file exceeds %d bytes", domain.ErrInvalidInput, s.maxSize)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	passages, err := s.parse(ext, content)
	if err != nil {
		return Upload{}, err
	}
	if len(passages) == 0 {
		return Upload{}, fmt.Errorf("%w: no passages found in %s", domain.ErrInvalidInput, filename)
	}

	sum := md5.Sum(content)
	id := hex.EncodeToString(sum[:])[:12]
	dir := filepath.Join(s.dir, datasetName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Upload{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, id+ext), content, 0o644); err != nil {
		return Upload{}, err
	}
	up := Upload{FileID: id, Filename: filename, Dataset: datasetName, Size: int64(len(content)), Passages: len(passages)}
	s.log.Info("upload stored",
		zap.String("dataset", datasetName),
		zap.String("file_id", id),
		zap.Int("passages", len(passages)))
	return up, nil
}

// Passages returns the passages of every upload of a dataset, ordered by
// file name.
func (s *Store) Passages(datasetName string) ([]string, error) {
	if err := dataset.ValidateName(datasetName); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.dir, datasetName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no uploads for %s", domain.ErrDatasetNotFound, datasetName)
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []string
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(s.dir, datasetName, name))
		if err != nil {
			return nil, err
		}
		passages, err := s.parse(strings.ToLower(filepath.Ext(name)), data)
		if err != nil {
			s.log.Warn("skipping unreadable upload", zap.String("file", name), zap.Error(err))
			continue
		}
		all = append(all, passages...)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: no uploads for %s", domain.ErrDatasetNotFound, datasetName)
	}
	return all, nil
}

func (s *Store) parse(ext string, content []byte) ([]string, error) {
	switch ext {
	case ".json":
		return ParseJSON(content)
	case ".txt":
		return s.chunker.Passages("upload", string(content)), nil
	default:
		return nil, fmt.Errorf("%w: only .json and .txt files are supported", domain.ErrInvalidInput)
	}
}

// ParseJSON extracts passages from the accepted JSON layouts: a list of
// strings or objects with text/content/chunk, or an object with chunks,
// documents or passages.
func ParseJSON(data []byte) ([]string, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", domain.ErrInvalidInput, err)
	}
	var out []string
	switch v := raw.(type) {
	case []any:
		out = collect(v, "text", "content", "chunk")
	case map[string]any:
		switch {
		case v["chunks"] != nil:
			out = collect(asList(v["chunks"]), "text")
		case v["documents"] != nil:
			out = collect(asList(v["documents"]), "content")
		case v["passages"] != nil:
			out = collect(asList(v["passages"]), "text")
		}
	}
	return out, nil
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func collect(items []any, keys ...string) []string {
	var out []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			for _, k := range keys {
				if s, ok := v[k].(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
					break
				}
			}
		}
	}
	return out
}
