package embedding

import (
	"context"
	"fmt"

	"docqa/internal/domain"
)

// Embedder converts free text into a numeric vector representation.
type Embedder = domain.Embedder

// EmbedAll embeds texts one at a time, in order, and checks that every vector
// has the embedder's dimension. The first failure aborts the batch.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, domain.WrapProvider(e.Name(), "embed", err)
		}
		if dim := e.Dimension(); dim > 0 && len(vec) != dim {
			return nil, domain.WrapProvider(e.Name(), "embed", fmt.Errorf("vector %d has dimension %d, want %d", i, len(vec), dim))
		}
		vectors[i] = vec
	}
	return vectors, nil
}
