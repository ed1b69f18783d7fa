package vectorstore

import (
	"context"

	"ragd/internal/domain"
)

// Storage persists vectors and supports similarity search.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	// Clear removes every vector. For remote stores it drops the collection.
	Clear(ctx context.Context) error
	// Count returns the number of stored vectors, 0 for a missing collection.
	Count(ctx context.Context) (int, error)
}
