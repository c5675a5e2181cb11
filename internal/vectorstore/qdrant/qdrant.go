package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"docqa/internal/domain"
)

var errCollectionMissing = errors.New("collection missing")

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing. Point ids
// are insertion positions, mirroring the in-memory index.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client

	mu      sync.Mutex
	ensured bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	dim := cfg.Dimension
	if dim <= 0 {
		dim = 1536
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  dim,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *Storage) Dimension() int { return s.dimension }

// Count returns the exact number of stored points; a missing collection
// counts as empty.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/count", map[string]any{"exact": true}, &resp)
	if errors.Is(err, errCollectionMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Add(ctx context.Context, vectors [][]float64, chunks []domain.Chunk) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d vectors for %d metadata records", domain.ErrUnsupportedInput, len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, index dimension %d", domain.ErrUnsupportedInput, i, len(v), s.dimension)
		}
	}
	if len(vectors) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}
	offset, err := s.Count(ctx)
	if err != nil {
		return err
	}
	points := make([]map[string]any, len(chunks))
	for i := range chunks {
		points[i] = map[string]any{
			"id":     offset + i,
			"vector": vectors[i],
			"payload": map[string]any{
				"document_id": chunks[i].DocumentID,
				"filename":    chunks[i].Filename,
				"chunk_index": chunks[i].Index,
				"text":        chunks[i].Text,
				"page_number": chunks[i].PageNumber,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", domain.ErrUnsupportedInput, topK)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query dimension %d, index dimension %d", domain.ErrUnsupportedInput, len(vector), s.dimension)
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				DocumentID string `json:"document_id"`
				Filename   string `json:"filename"`
				ChunkIndex int    `json:"chunk_index"`
				Text       string `json:"text"`
				PageNumber *int   `json:"page_number"`
			} `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp)
	if errors.Is(err, errCollectionMissing) {
		return []domain.SearchResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{
			Chunk: domain.Chunk{
				DocumentID: r.Payload.DocumentID,
				Filename:   r.Payload.Filename,
				Index:      r.Payload.ChunkIndex,
				Text:       r.Payload.Text,
				PageNumber: r.Payload.PageNumber,
			},
			Score: r.Score,
		})
	}
	return results, nil
}

// Reset drops the collection; it is recreated on the next Add.
func (s *Storage) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured = false
	err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	if errors.Is(err, errCollectionMissing) {
		return nil
	}
	return err
}

func (s *Storage) ensureCollection(ctx context.Context) error {
	if s.ensured {
		return nil
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, nil)
	if errors.Is(err, errCollectionMissing) {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     s.dimension,
				"distance": "Cosine",
			},
		}
		err = s.do(ctx, http.MethodPut, s.collectionURL(), body, nil)
	}
	if err != nil {
		return err
	}
	s.ensured = true
	return nil
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

// do sends one request. A 404 comes back as errCollectionMissing; transport
// failures, other error statuses and undecodable bodies are provider failures.
func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	op := method + " " + strings.TrimPrefix(url, s.url)
	resp, err := s.client.Do(req)
	if err != nil {
		return domain.WrapProvider("qdrant", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errCollectionMissing
	}
	if resp.StatusCode >= 300 {
		return domain.WrapProvider("qdrant", op, fmt.Errorf("unexpected status %s", resp.Status))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.WrapProvider("qdrant", op, fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}
