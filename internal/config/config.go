package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ragd/internal/domain"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	Debug               bool   `yaml:"debug"`
	ShutdownTimeoutSecs int    `yaml:"shutdown_timeout_secs"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig locates index artifacts and raw uploads.
type StorageConfig struct {
	WorkingDir  string `yaml:"working_dir"`
	UploadDir   string `yaml:"upload_dir"`
	MaxFileSize int64  `yaml:"max_file_size"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKeyEnv     string `yaml:"api_key_env"`
	TimeoutSecs   int    `yaml:"timeout_secs"`
	AllowEmptyKey bool   `yaml:"allow_empty_key"`
	MaxRetries    int    `yaml:"max_retries"`
}

// EmbedderConfig selects the embedding runtime. Model is the path or name the
// model cache loads.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	Model  string                `yaml:"model"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// LLMConfig selects the answer generation runtime. Type "none" disables it.
type LLMConfig struct {
	Type          string `yaml:"type"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	APIKeyEnv     string `yaml:"api_key_env"`
	AllowEmptyKey bool   `yaml:"allow_empty_key"`
	MaxRetries    int    `yaml:"max_retries"`
}

// Enabled reports whether answer generation is configured.
func (l LLMConfig) Enabled() bool {
	return l.Type != "" && l.Type != "none"
}

// ChunkerConfig configures how plain-text uploads are split into passages.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store. Each
// build of a dataset gets the collection <collection>_<dataset>_<generation>.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// PipelineConfig holds the engine parameters every dataset starts with.
type PipelineConfig struct {
	SpacyModel         string  `yaml:"spacy_model"`
	MaxWorkers         int     `yaml:"max_workers"`
	RetrievalTopK      int     `yaml:"retrieval_top_k"`
	MaxIterations      int     `yaml:"max_iterations"`
	TopKSentence       int     `yaml:"top_k_sentence"`
	PassageRatio       float64 `yaml:"passage_ratio"`
	PassageNodeWeight  float64 `yaml:"passage_node_weight"`
	Damping            float64 `yaml:"damping"`
	IterationThreshold float64 `yaml:"iteration_threshold"`
	BatchSize          int     `yaml:"batch_size"`
}

// QueryConfig tunes query execution.
type QueryConfig struct {
	DefaultTopK           int `yaml:"default_top_k"`
	BatchWorkers          int `yaml:"batch_workers"`
	GenerationTimeoutSecs int `yaml:"generation_timeout_secs"`
}

// GenerationTimeout converts GenerationTimeoutSecs.
func (q QueryConfig) GenerationTimeout() time.Duration {
	return time.Duration(q.GenerationTimeoutSecs) * time.Second
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	Production bool   `yaml:"production"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	LLM         LLMConfig         `yaml:"llm"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Query       QueryConfig       `yaml:"query"`
	Log         LogConfig         `yaml:"log"`
}

// EngineDefaults returns the engine configuration new datasets start with.
func (c *AppConfig) EngineDefaults() domain.EngineConfig {
	return domain.EngineConfig{
		WorkingDir:         c.Storage.WorkingDir,
		EmbeddingModel:     c.Embedder.Model,
		SpacyModel:         c.Pipeline.SpacyModel,
		LLMModel:           c.LLM.Model,
		MaxWorkers:         c.Pipeline.MaxWorkers,
		RetrievalTopK:      c.Pipeline.RetrievalTopK,
		MaxIterations:      c.Pipeline.MaxIterations,
		TopKSentence:       c.Pipeline.TopKSentence,
		PassageRatio:       c.Pipeline.PassageRatio,
		PassageNodeWeight:  c.Pipeline.PassageNodeWeight,
		Damping:            c.Pipeline.Damping,
		IterationThreshold: c.Pipeline.IterationThreshold,
		BatchSize:          c.Pipeline.BatchSize,
	}
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragd/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragd/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides settings from the environment. Unparsable numbers are
// reported and leave the setting unchanged.
func (c *AppConfig) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	str("API_HOST", &c.Server.Host)
	num("API_PORT", &c.Server.Port)
	if v := strings.TrimSpace(getenv("API_DEBUG")); v != "" {
		c.Server.Debug = strings.EqualFold(v, "true") || v == "1"
	}
	str("WORKING_DIR", &c.Storage.WorkingDir)
	str("UPLOAD_DIR", &c.Storage.UploadDir)
	str("EMBEDDING_MODEL", &c.Embedder.Model)
	str("SPACY_MODEL", &c.Pipeline.SpacyModel)
	str("LLM_MODEL", &c.LLM.Model)
	num("MAX_WORKERS", &c.Pipeline.MaxWorkers)
	str("LOG_LEVEL", &c.Log.Level)
	return errors.Join(errs...)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragd", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Server:      ServerConfig{Host: "0.0.0.0", Port: 8000, ShutdownTimeoutSecs: 10},
		Storage:     StorageConfig{WorkingDir: "./import", UploadDir: "./uploads", MaxFileSize: 100 << 20},
		Embedder:    EmbedderConfig{Type: "tfidf", Model: "tfidf"},
		LLM:         LLMConfig{Type: "none", Model: "gpt-4o-mini", APIKeyEnv: "OPENAI_API_KEY", MaxRetries: 2},
		Chunker:     ChunkerConfig{Type: "sentence", SentencesPerChunk: 5, OverlapSentences: 1},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Summarizer:  SummarizerConfig{Type: "frequency", MaxSentences: 5},
		Pipeline: PipelineConfig{
			SpacyModel:         "en_core_web_trf",
			MaxWorkers:         4,
			RetrievalTopK:      5,
			MaxIterations:      3,
			TopKSentence:       1,
			PassageRatio:       1.5,
			PassageNodeWeight:  0.05,
			Damping:            0.5,
			IterationThreshold: 0.5,
			BatchSize:          128,
		},
		Query: QueryConfig{DefaultTopK: 5, BatchWorkers: 1, GenerationTimeoutSecs: 60},
		Log:   LogConfig{Level: "info"},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Pipeline.MaxWorkers <= 0 {
		cfg.Pipeline.MaxWorkers = 1
	}
	if cfg.Query.BatchWorkers <= 0 {
		cfg.Query.BatchWorkers = 1
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.Model == "" || cfg.Embedder.Model == "tfidf" {
			cfg.Embedder.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.VectorStore.Type == "qdrant" && cfg.VectorStore.Qdrant != nil && cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "ragd"
	}
}
