package domain

import (
	"path/filepath"
	"strings"
)

// EngineConfig carries the model selections and algorithm parameters of one
// dataset. It is forwarded to the engine as is.
type EngineConfig struct {
	DatasetName        string  `yaml:"dataset_name" json:"dataset_name"`
	WorkingDir         string  `yaml:"working_dir" json:"working_dir"`
	EmbeddingModel     string  `yaml:"embedding_model" json:"embedding_model"`
	SpacyModel         string  `yaml:"spacy_model" json:"spacy_model"`
	LLMModel           string  `yaml:"llm_model" json:"llm_model"`
	MaxWorkers         int     `yaml:"max_workers" json:"max_workers"`
	RetrievalTopK      int     `yaml:"retrieval_top_k" json:"retrieval_top_k"`
	MaxIterations      int     `yaml:"max_iterations" json:"max_iterations"`
	TopKSentence       int     `yaml:"top_k_sentence" json:"top_k_sentence"`
	PassageRatio       float64 `yaml:"passage_ratio" json:"passage_ratio"`
	PassageNodeWeight  float64 `yaml:"passage_node_weight" json:"passage_node_weight"`
	Damping            float64 `yaml:"damping" json:"damping"`
	IterationThreshold float64 `yaml:"iteration_threshold" json:"iteration_threshold"`
	BatchSize          int     `yaml:"batch_size" json:"batch_size"`
}

// Dir is the directory holding the dataset's index artifacts.
func (c EngineConfig) Dir() string {
	return filepath.Join(c.WorkingDir, c.DatasetName)
}

// ForDataset returns a copy of c bound to the named dataset.
func (c EngineConfig) ForDataset(name string) EngineConfig {
	c.DatasetName = name
	return c
}

// ArtifactExt is the file suffix of index artifacts. A directory under the
// working root that holds at least one such file is a dataset.
const ArtifactExt = ".rag"

// IsArtifact reports whether a file name is an index artifact.
func IsArtifact(name string) bool {
	return strings.HasSuffix(name, ArtifactExt)
}
