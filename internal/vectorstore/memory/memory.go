package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"docqa/internal/domain"
)

// DefaultDimension matches the OpenAI ada-002 and text-embedding-3-small models.
const DefaultDimension = 1536

// Storage is an exact in-memory vector index. Vectors are L2-normalized on
// insert so the inner product equals cosine similarity. vectors[i] and
// chunks[i] always describe the same entry.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	chunks    []domain.Chunk
}

// NewStorage creates an empty index for vectors of the given dimension.
func NewStorage(dimension int) *Storage {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Storage{dimension: dimension}
}

func (s *Storage) Dimension() int { return s.dimension }

// Len returns the number of indexed entries.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

func (s *Storage) Count(context.Context) (int, error) { return s.Len(), nil }

// Add appends a batch. The batch is validated in full before anything is
// stored, so it is either entirely visible to Search or not at all.
func (s *Storage) Add(_ context.Context, vectors [][]float64, chunks []domain.Chunk) error {
	normalized, stored, err := s.prepare(vectors, chunks)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = append(s.vectors, normalized...)
	s.chunks = append(s.chunks, stored...)
	return nil
}

// Replace swaps the whole index content for the given batch.
func (s *Storage) Replace(vectors [][]float64, chunks []domain.Chunk) error {
	normalized, stored, err := s.prepare(vectors, chunks)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = normalized
	s.chunks = stored
	return nil
}

func (s *Storage) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.chunks = nil
	return nil
}

// Entries returns a copy of the metadata in index order.
func (s *Storage) Entries() []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Search returns the topK entries with the highest cosine similarity to
// vector, best first. Equal scores are ordered by insertion position.
func (s *Storage) Search(_ context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrUnsupportedInput, topK)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", domain.ErrUnsupportedInput, len(vector), s.dimension)
	}
	query := normalize(vector)

	s.mu.RLock()
	defer s.mu.RUnlock()
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = dot(s.vectors[i], query)
	}
	idxs := argsortDesc(scores)
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) prepare(vectors [][]float64, chunks []domain.Chunk) ([][]float32, []domain.Chunk, error) {
	if len(vectors) != len(chunks) {
		return nil, nil, fmt.Errorf("%w: %d vectors for %d metadata records", domain.ErrUnsupportedInput, len(vectors), len(chunks))
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != s.dimension {
			return nil, nil, fmt.Errorf("%w: vector %d has dimension %d, index dimension %d", domain.ErrUnsupportedInput, i, len(v), s.dimension)
		}
		normalized[i] = normalize(v)
	}
	stored := make([]domain.Chunk, len(chunks))
	for i, ch := range chunks {
		ch.Embedding = nil
		stored[i] = ch
	}
	return normalized, stored, nil
}

// normalize returns v scaled to unit length as float32. The zero vector
// stays zero.
func normalize(v []float64) []float32 {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	sum := 0.0
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool { return vals[idxs[a]] > vals[idxs[b]] })
	return idxs
}
