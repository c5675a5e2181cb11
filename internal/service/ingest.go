package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/extract"
)

// IngestFile extracts, chunks, embeds and stores the file at path. filename
// is the user-facing name and decides the file type.
func (s *RAGServiceImpl) IngestFile(ctx context.Context, path, filename string) (IngestResult, error) {
	if filename == "" {
		filename = filepath.Base(path)
	}
	fileType := extract.TypeOf(filename)
	text, err := s.extractor.Extract(path, fileType)
	if err != nil {
		return IngestResult{}, err
	}
	return s.ingest(ctx, filename, fileType, text)
}

// IngestText stores text that was already extracted.
func (s *RAGServiceImpl) IngestText(ctx context.Context, filename, text string) (IngestResult, error) {
	fileType := extract.TypeOf(filename)
	if fileType == "" {
		fileType = "txt"
	}
	return s.ingest(ctx, filename, fileType, domain.ExtractedText{Text: text})
}

// ingest embeds every chunk before touching any state. Once embedding
// succeeded the catalog rows and the index batch are written together: if
// the index rejects the batch the catalog rows are removed again.
func (s *RAGServiceImpl) ingest(ctx context.Context, filename, fileType string, text domain.ExtractedText) (IngestResult, error) {
	start := time.Now()
	if strings.TrimSpace(text.Text) == "" {
		return IngestResult{}, fmt.Errorf("%w: no text extracted from %s", domain.ErrUnsupportedInput, filename)
	}
	spans := s.chunker.Split(text.Text)
	if len(spans) == 0 {
		return IngestResult{}, fmt.Errorf("%w: %s produced no chunks", domain.ErrUnsupportedInput, filename)
	}

	doc := domain.Document{
		ID:         s.newID(),
		Filename:   filename,
		FileType:   fileType,
		Content:    text.Text,
		UploadedAt: s.now(),
	}
	chunks := make([]domain.Chunk, len(spans))
	texts := make([]string, len(spans))
	for i, sp := range spans {
		chunks[i] = domain.Chunk{
			DocumentID: doc.ID,
			Filename:   filename,
			Index:      i,
			Text:       sp.Text,
			PageNumber: text.PageAt(sp.Start),
		}
		texts[i] = sp.Text
	}

	vectors, err := embedding.EmbedAll(ctx, s.embedder, texts)
	if err != nil {
		return IngestResult{}, fmt.Errorf("embed %s: %w", filename, err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.catalog.CreateDocument(ctx, doc, chunks); err != nil {
		return IngestResult{}, fmt.Errorf("store %s: %w", filename, err)
	}
	if err := s.store.Add(ctx, vectors, chunks); err != nil {
		if derr := s.catalog.DeleteDocument(ctx, doc.ID); derr != nil {
			s.logger.Error("rollback catalog after index failure", "document_id", doc.ID, "err", derr)
		}
		return IngestResult{}, fmt.Errorf("index %s: %w", filename, err)
	}
	s.persistLocked()

	s.logger.Info("document ingested",
		"document_id", doc.ID,
		"filename", filename,
		"file_type", fileType,
		"chunks", len(chunks),
		"duration", time.Since(start),
	)
	return IngestResult{DocumentID: doc.ID, Filename: filename, ChunksCreated: len(chunks)}, nil
}
