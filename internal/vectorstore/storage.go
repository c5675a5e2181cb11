package vectorstore

import (
	"context"

	"docqa/internal/domain"
)

// Storage holds chunk vectors with their metadata and supports similarity
// search. Entries are addressed only by insertion position.
type Storage interface {
	Dimension() int
	Count(ctx context.Context) (int, error)
	Add(ctx context.Context, vectors [][]float64, chunks []domain.Chunk) error
	Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error)
	Reset(ctx context.Context) error
}

// Snapshotter is implemented by stores that persist themselves to disk.
type Snapshotter interface {
	Save(path string) error
	Load(path string) error
}

// Replacer is implemented by stores that can swap their whole content in one
// step, which makes a rebuild invisible to concurrent searches.
type Replacer interface {
	Replace(vectors [][]float64, chunks []domain.Chunk) error
}
