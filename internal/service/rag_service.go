package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
	"docqa/internal/rag"
	"docqa/internal/retriever"
	"docqa/internal/vectorstore"
)

// Catalog is the durable record of documents and chunks the index is
// rebuilt from.
type Catalog interface {
	CreateDocument(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	GetDocument(ctx context.Context, id string) (domain.Document, error)
	DocumentChunks(ctx context.Context, id string) ([]domain.Chunk, error)
	DeleteDocument(ctx context.Context, id string) error
	AllChunks(ctx context.Context) ([]domain.Chunk, error)
	SetEmbeddings(ctx context.Context, chunks []domain.Chunk) error
}

// Deps are the components the service orchestrates.
type Deps struct {
	Extractor  domain.TextExtractor
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Store      vectorstore.Storage
	Completer  domain.Completer
	Summarizer domain.Summarizer // defaults to the completion-backed summary
	Catalog    Catalog
	Logger     *slog.Logger
}

// Options tune retrieval and persistence.
type Options struct {
	DefaultK     int
	Overfetch    int
	MaxBullets   int
	SnapshotPath string // memory store snapshot; empty disables persistence
}

// RAGServiceImpl ingests documents and answers questions about them.
//
// mu serializes catalog and index mutations (ingest, delete, rebuild, load)
// against each other and against searches, so a query never observes a
// half-applied batch or rebuild.
type RAGServiceImpl struct {
	extractor  domain.TextExtractor
	chunker    domain.Chunker
	embedder   domain.Embedder
	store      vectorstore.Storage
	retriever  *retriever.Retriever
	composer   *rag.Composer
	summarizer domain.Summarizer
	catalog    Catalog
	logger     *slog.Logger
	opts       Options

	mu    sync.RWMutex
	stale bool

	newID func() string
	now   func() time.Time
}

func NewRAGService(deps Deps, opts Options) *RAGServiceImpl {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = 5
	}
	if opts.MaxBullets <= 0 {
		opts.MaxBullets = 5
	}
	composer := rag.NewComposer(deps.Completer, deps.Logger)
	summarizer := deps.Summarizer
	if summarizer == nil {
		summarizer = composer
	}
	return &RAGServiceImpl{
		extractor:  deps.Extractor,
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		store:      deps.Store,
		retriever:  retriever.New(deps.Store, opts.Overfetch),
		composer:   composer,
		summarizer: summarizer,
		catalog:    deps.Catalog,
		logger:     deps.Logger,
		opts:       opts,
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IngestResult describes a stored document.
type IngestResult struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	ChunksCreated int    `json:"chunks_created"`
}

// QueryRequest is a question, optionally restricted to some documents.
type QueryRequest struct {
	Query       string   `json:"query"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	K           int      `json:"k,omitempty"`
}

// Summary is a bullet summary of one stored document.
type Summary struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Summary    string `json:"summary"`
}

// DocumentDetail is a stored document with its chunks.
type DocumentDetail struct {
	Document domain.Document
	Chunks   []domain.Chunk
}

// IndexStale reports whether documents were deleted since the index was last
// rebuilt, so searches may still return their chunks.
func (s *RAGServiceImpl) IndexStale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}
