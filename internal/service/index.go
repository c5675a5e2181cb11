package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/vectorstore"
)

// DeleteDocument removes a document and its chunks from the catalog. The
// index keeps serving the document's vectors until RebuildIndex runs.
func (s *RAGServiceImpl) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.catalog.DeleteDocument(ctx, id); err != nil {
		return err
	}
	s.stale = true
	s.logger.Warn("document deleted; index keeps its chunks until rebuild", "document_id", id)
	return nil
}

// RebuildIndex replaces the index content with every chunk in the catalog.
// Chunks stored without a vector of the current dimension are embedded
// first and their vectors written back. It returns the new index size.
//
// The write lock is held from the catalog read to the swap, so an ingest or
// delete running meanwhile lands either fully before or fully after it.
func (s *RAGServiceImpl) RebuildIndex(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	chunks, err := s.catalog.AllChunks(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog chunks: %w", err)
	}

	dim := s.store.Dimension()
	var missing []int
	for i := range chunks {
		if len(chunks[i].Embedding) != dim {
			missing = append(missing, i)
		}
	}
	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = chunks[i].Text
		}
		vectors, err := embedding.EmbedAll(ctx, s.embedder, texts)
		if err != nil {
			return 0, fmt.Errorf("re-embed chunks: %w", err)
		}
		updated := make([]domain.Chunk, len(missing))
		for j, i := range missing {
			chunks[i].Embedding = vectors[j]
			updated[j] = chunks[i]
		}
		if err := s.catalog.SetEmbeddings(ctx, updated); err != nil {
			return 0, fmt.Errorf("store re-embedded vectors: %w", err)
		}
	}

	vectors := make([][]float64, len(chunks))
	for i := range chunks {
		vectors[i] = chunks[i].Embedding
	}

	if r, ok := s.store.(vectorstore.Replacer); ok {
		err = r.Replace(vectors, chunks)
	} else {
		if err = s.store.Reset(ctx); err == nil && len(chunks) > 0 {
			err = s.store.Add(ctx, vectors, chunks)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("replace index: %w", err)
	}
	s.stale = false
	s.persistLocked()
	s.logger.Info("index rebuilt",
		"chunks", len(chunks),
		"re_embedded", len(missing),
		"duration", time.Since(start),
	)
	return len(chunks), nil
}

// SaveIndex writes the index snapshot. Stores that persist themselves and a
// service without a snapshot path make this a no-op.
func (s *RAGServiceImpl) SaveIndex() error {
	snap, ok := s.store.(vectorstore.Snapshotter)
	if !ok || s.opts.SnapshotPath == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snap.Save(s.opts.SnapshotPath)
}

// LoadIndex replaces the index with the snapshot. A missing snapshot wraps
// fs.ErrNotExist; inconsistent artifacts wrap domain.ErrIndexCorruption.
func (s *RAGServiceImpl) LoadIndex() error {
	snap, ok := s.store.(vectorstore.Snapshotter)
	if !ok || s.opts.SnapshotPath == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return snap.Load(s.opts.SnapshotPath)
}

// RestoreIndex prepares the index at startup. It loads the snapshot and
// falls back to a rebuild from the catalog when the snapshot is missing
// while the catalog has documents, or when the snapshot is corrupted.
func (s *RAGServiceImpl) RestoreIndex(ctx context.Context) error {
	err := s.LoadIndex()
	switch {
	case err == nil:
		n, _ := s.IndexSize(ctx)
		s.logger.Debug("index ready", "entries", n)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		docs, lerr := s.catalog.ListDocuments(ctx)
		if lerr != nil {
			return lerr
		}
		if len(docs) == 0 {
			s.logger.Info("no index snapshot; starting with an empty index")
			return nil
		}
		s.logger.Warn("index snapshot missing; rebuilding from catalog", "documents", len(docs))
	case errors.Is(err, domain.ErrIndexCorruption):
		s.logger.Warn("index snapshot unusable; rebuilding from catalog", "err", err)
	default:
		return err
	}
	_, err = s.RebuildIndex(ctx)
	return err
}

// IndexSize returns the number of indexed chunks.
func (s *RAGServiceImpl) IndexSize(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Count(ctx)
}

// persistLocked saves the snapshot after a mutation. A failed save is logged
// and does not undo the mutation; the catalog still allows a rebuild.
func (s *RAGServiceImpl) persistLocked() {
	snap, ok := s.store.(vectorstore.Snapshotter)
	if !ok || s.opts.SnapshotPath == "" {
		return
	}
	if err := snap.Save(s.opts.SnapshotPath); err != nil {
		s.logger.Error("save index snapshot", "path", s.opts.SnapshotPath, "err", err)
	}
}
