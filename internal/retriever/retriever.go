package retriever

import (
	"context"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// Retriever runs similarity search over a vector store and optionally
// restricts the results to a set of documents.
//
// Filtering happens after the search. To keep a filter from starving the
// result, a filtered search first fetches a larger candidate pool of
// k*overfetch entries; with overfetch <= 0 the pool is the whole index.
type Retriever struct {
	store     vectorstore.Storage
	overfetch int
}

func New(store vectorstore.Storage, overfetch int) *Retriever {
	return &Retriever{store: store, overfetch: overfetch}
}

// Retrieve returns up to k results ranked by descending score. When
// documentIDs is non-empty only chunks of those documents are returned, in
// their original rank order.
func (r *Retriever) Retrieve(ctx context.Context, queryVector []float64, k int, documentIDs []string) ([]domain.SearchResult, error) {
	if len(documentIDs) == 0 {
		return r.store.Search(ctx, queryVector, k)
	}
	pool, err := r.poolSize(ctx, k)
	if err != nil {
		return nil, err
	}
	candidates, err := r.store.Search(ctx, queryVector, pool)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(documentIDs))
	for _, id := range documentIDs {
		allowed[id] = struct{}{}
	}
	out := make([]domain.SearchResult, 0, k)
	for _, c := range candidates {
		if _, ok := allowed[c.Chunk.DocumentID]; !ok {
			continue
		}
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func (r *Retriever) poolSize(ctx context.Context, k int) (int, error) {
	if k <= 0 {
		// let the store reject it
		return k, nil
	}
	n, err := r.store.Count(ctx)
	if err != nil {
		return 0, err
	}
	pool := n
	if r.overfetch > 0 && k*r.overfetch < n {
		pool = k * r.overfetch
	}
	if pool < k {
		pool = k
	}
	return pool, nil
}
