package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docqa/internal/domain"
)

// Query answers req.Query from the indexed chunks, optionally restricted to
// req.DocumentIDs.
func (s *RAGServiceImpl) Query(ctx context.Context, req QueryRequest) (domain.QueryResult, error) {
	start := time.Now()
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return domain.QueryResult{}, fmt.Errorf("%w: query is required", domain.ErrUnsupportedInput)
	}
	k := req.K
	if k == 0 {
		k = s.opts.DefaultK
	}
	if k < 0 {
		return domain.QueryResult{}, fmt.Errorf("%w: k must be positive, got %d", domain.ErrUnsupportedInput, k)
	}

	vec, err := s.embedder.Embed(ctx, q)
	if err != nil {
		return domain.QueryResult{}, domain.WrapProvider(s.embedder.Name(), "embed query", err)
	}

	var ranked []domain.SearchResult
	if isZero(vec) {
		// nothing hashed to a bucket; similarity is meaningless
		ranked, err = s.lexicalSearch(ctx, q, k, req.DocumentIDs)
	} else {
		s.mu.RLock()
		ranked, err = s.retriever.Retrieve(ctx, vec, k, req.DocumentIDs)
		s.mu.RUnlock()
	}
	if err != nil {
		return domain.QueryResult{}, err
	}

	answer, citations, err := s.composer.Answer(ctx, q, ranked)
	if err != nil {
		return domain.QueryResult{}, err
	}
	s.logger.Info("query answered",
		"k", k,
		"filter", len(req.DocumentIDs),
		"retrieved", len(ranked),
		"duration", time.Since(start),
	)
	return domain.QueryResult{Answer: answer, Citations: citations, RetrievedChunks: len(ranked)}, nil
}

// SummarizeDocument summarizes a stored document in at most maxBullets
// bullets; maxBullets <= 0 uses the configured default.
func (s *RAGServiceImpl) SummarizeDocument(ctx context.Context, id string, maxBullets int) (Summary, error) {
	if maxBullets <= 0 {
		maxBullets = s.opts.MaxBullets
	}
	doc, err := s.catalog.GetDocument(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	text, err := s.summarizer.Summarize(ctx, doc.Content, maxBullets)
	if err != nil {
		return Summary{}, err
	}
	return Summary{DocumentID: doc.ID, Filename: doc.Filename, Summary: text}, nil
}

// Documents lists stored documents in upload order, without content.
func (s *RAGServiceImpl) Documents(ctx context.Context) ([]domain.Document, error) {
	return s.catalog.ListDocuments(ctx)
}

// Document returns one stored document with its chunks.
func (s *RAGServiceImpl) Document(ctx context.Context, id string) (DocumentDetail, error) {
	doc, err := s.catalog.GetDocument(ctx, id)
	if err != nil {
		return DocumentDetail{}, err
	}
	chunks, err := s.catalog.DocumentChunks(ctx, id)
	if err != nil {
		return DocumentDetail{}, err
	}
	return DocumentDetail{Document: doc, Chunks: chunks}, nil
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
