package domain

import "context"

// Document represents a single uploaded text file.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a passage held by the retrieval engine.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// StatefulEmbedder is an Embedder whose preparation result must be persisted
// next to the index so that a reloaded dataset embeds queries the same way.
// Fresh returns an unprepared instance with the same settings; every index
// prepares its own instance.
type StatefulEmbedder interface {
	Embedder
	MarshalState() ([]byte, error)
	RestoreState(data []byte) error
	Fresh() StatefulEmbedder
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Message is one turn sent to a language model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LanguageModel answers a conversation with free text.
type LanguageModel interface {
	Infer(ctx context.Context, messages []Message) (string, error)
}

// RetrievalQuery is a single question sent to the engine. Answer is empty at query time.
type RetrievalQuery struct {
	Question string
	Answer   string
}

// RetrievalResult holds passages ranked by descending score, paired index by index
// with their scores.
type RetrievalResult struct {
	SortedPassages []string
	SortedScores   []float64
}

// Engine builds and queries the passage index of one dataset.
type Engine interface {
	Index(ctx context.Context, passages []string) error
	// Retrieve returns exactly one result per query, in query order.
	Retrieve(ctx context.Context, queries []RetrievalQuery) ([]RetrievalResult, error)
}

// EngineFactory constructs an engine bound to cfg. When the dataset directory
// already holds index artifacts the engine reconstructs its index from them.
type EngineFactory func(ctx context.Context, cfg EngineConfig, embedder Embedder) (Engine, error)
