package service

import (
	"context"
	"math"
	"sort"

	"docqa/internal/domain"
	"docqa/internal/textutil"
)

// lexicalSearch ranks catalog chunks by token overlap with the query. It is
// the fallback when the query embedding carries no signal. Chunks without
// any shared token are dropped.
func (s *RAGServiceImpl) lexicalSearch(ctx context.Context, query string, topK int, documentIDs []string) ([]domain.SearchResult, error) {
	chunks, err := s.catalog.AllChunks(ctx)
	if err != nil {
		return nil, err
	}
	var allowed map[string]struct{}
	if len(documentIDs) > 0 {
		allowed = make(map[string]struct{}, len(documentIDs))
		for _, id := range documentIDs {
			allowed[id] = struct{}{}
		}
	}
	qset := toTokenSet(query)
	out := make([]domain.SearchResult, 0, topK)
	for _, ch := range chunks {
		if allowed != nil {
			if _, ok := allowed[ch.DocumentID]; !ok {
				continue
			}
		}
		score := overlapOchiai(qset, ch.Text)
		if score <= 0 {
			continue
		}
		ch.Embedding = nil
		out = append(out, domain.SearchResult{Chunk: ch, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func toTokenSet(s string) map[string]struct{} {
	tokens := textutil.Words(s)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over the distinct tokens of the
// query and the chunk.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	stoks := textutil.Words(text)
	seen := make(map[string]struct{}, len(stoks))
	inter := 0
	for _, t := range stoks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
