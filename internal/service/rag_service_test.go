package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"docqa/internal/catalog"
	"docqa/internal/chunker"
	"docqa/internal/domain"
	"docqa/internal/embedding/hashing"
	"docqa/internal/extract"
	"docqa/internal/logging"
	"docqa/internal/rag"
	"docqa/internal/summarizer"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
)

const testDim = 64

type fakeCompleter struct {
	calls int
	users []string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	f.calls++
	f.users = append(f.users, req.User)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("answer #%d [1]", f.calls), nil
}

type failingEmbedder struct{ domain.Embedder }

func (failingEmbedder) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("rate limited")
}

type failingStore struct{ vectorstore.Storage }

func (failingStore) Add(context.Context, [][]float64, []domain.Chunk) error {
	return errors.New("disk full")
}

type fixture struct {
	svc   *RAGServiceImpl
	cat   *catalog.Catalog
	store *memory.Storage
	comp  *fakeCompleter
}

func newFixture(t *testing.T, mutate func(*Deps, *Options)) *fixture {
	t.Helper()
	cat, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })
	f := &fixture{cat: cat, store: memory.NewStorage(testDim), comp: &fakeCompleter{}}
	deps := Deps{
		Extractor: extract.New(),
		Chunker:   chunker.NewWindowChunker(120, 20),
		Embedder:  hashing.NewEmbedder(testDim),
		Store:     f.store,
		Completer: f.comp,
		Catalog:   cat,
		Logger:    logging.Discard(),
	}
	opts := Options{DefaultK: 3}
	if mutate != nil {
		mutate(&deps, &opts)
	}
	f.svc = NewRAGService(deps, opts)
	return f
}

const (
	solarText   = "The sun is a star at the centre of the solar system. Planets orbit the sun along elliptical paths. Jupiter is the largest planet."
	cookingText = "Bread needs flour, water, salt and yeast. Knead the dough for ten minutes. Bake the loaf until golden brown."
)

func TestIngestAndQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.svc.IngestText(ctx, "solar.txt", solarText)
	if err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if res.DocumentID == "" || res.ChunksCreated < 2 || res.Filename != "solar.txt" {
		t.Fatalf("unexpected ingest result %+v", res)
	}
	if _, err := f.svc.IngestText(ctx, "bread.txt", cookingText); err != nil {
		t.Fatalf("IngestText: %v", err)
	}

	n, _ := f.svc.IndexSize(ctx)
	all, _ := f.cat.AllChunks(ctx)
	if n != len(all) {
		t.Fatalf("index has %d entries, catalog %d chunks", n, len(all))
	}

	out, err := f.svc.Query(ctx, QueryRequest{Query: "Which planet orbits the sun?", K: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Answer != "answer #1 [1]" || out.RetrievedChunks != 2 || len(out.Citations) != 2 {
		t.Fatalf("unexpected result %+v", out)
	}
	if out.Citations[0].Filename != "solar.txt" || out.Citations[0].DocumentID != res.DocumentID {
		t.Fatalf("expected best citation from solar.txt, got %+v", out.Citations[0])
	}
	if !strings.Contains(f.comp.users[0], "[1] ") || !strings.Contains(f.comp.users[0], "[2] ") {
		t.Fatalf("prompt must number the context blocks")
	}
}

func TestQuery_DocumentFilter(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, _ = f.svc.IngestText(ctx, "solar.txt", solarText)
	bread, _ := f.svc.IngestText(ctx, "bread.txt", cookingText)

	out, err := f.svc.Query(ctx, QueryRequest{Query: "sun planets orbit", DocumentIDs: []string{bread.DocumentID}})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.RetrievedChunks == 0 {
		t.Fatalf("expected chunks of the filtered document")
	}
	for _, c := range out.Citations {
		if c.DocumentID != bread.DocumentID {
			t.Fatalf("citation outside the filter: %+v", c)
		}
	}
}

func TestQuery_EmptyIndexSkipsCompletion(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.svc.Query(context.Background(), QueryRequest{Query: "anything?"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.Answer != rag.NoResultsAnswer || out.RetrievedChunks != 0 || len(out.Citations) != 0 {
		t.Fatalf("unexpected result %+v", out)
	}
	if f.comp.calls != 0 {
		t.Fatalf("completion must not be called")
	}
}

func TestQuery_InvalidInput(t *testing.T) {
	f := newFixture(t, nil)
	for _, req := range []QueryRequest{{Query: "  "}, {Query: "q", K: -1}} {
		if _, err := f.svc.Query(context.Background(), req); !errors.Is(err, domain.ErrUnsupportedInput) {
			t.Fatalf("%+v: expected unsupported input, got %v", req, err)
		}
	}
}

func TestQuery_ProviderFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, _ = f.svc.IngestText(ctx, "solar.txt", solarText)
	f.comp.err = errors.New("503")
	if _, err := f.svc.Query(ctx, QueryRequest{Query: "sun"}); !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
}

func TestQuery_StopwordQueryFallsBackToLexical(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	_, _ = f.svc.IngestText(ctx, "solar.txt", solarText)
	_, _ = f.svc.IngestText(ctx, "empty.txt", "Zzz zzz zzz.")

	out, err := f.svc.Query(ctx, QueryRequest{Query: "the", K: 5})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if out.RetrievedChunks == 0 {
		t.Fatalf("expected lexical matches")
	}
	for _, c := range out.Citations {
		if c.Filename != "solar.txt" {
			t.Fatalf("chunks without shared tokens must be dropped, got %+v", c)
		}
	}
}

func TestIngest_EmbeddingFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(d *Deps, _ *Options) { d.Embedder = failingEmbedder{hashing.NewEmbedder(testDim)} })

	_, err := f.svc.IngestText(ctx, "solar.txt", solarText)
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("expected provider failure, got %v", err)
	}
	docs, _ := f.svc.Documents(ctx)
	n, _ := f.svc.IndexSize(ctx)
	if len(docs) != 0 || n != 0 {
		t.Fatalf("failed ingest left %d documents and %d index entries", len(docs), n)
	}
}

func TestIngest_IndexFailureRollsBackCatalog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(d *Deps, _ *Options) { d.Store = failingStore{memory.NewStorage(testDim)} })

	if _, err := f.svc.IngestText(ctx, "solar.txt", solarText); err == nil {
		t.Fatalf("expected index error")
	}
	docs, _ := f.svc.Documents(ctx)
	chunks, _ := f.cat.AllChunks(ctx)
	if len(docs) != 0 || len(chunks) != 0 {
		t.Fatalf("catalog not rolled back: %d docs, %d chunks", len(docs), len(chunks))
	}
}

func TestIngestFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	dir := t.TempDir()

	html := filepath.Join(dir, "upload-123")
	_ = os.WriteFile(html, []byte("<html><body><p>"+solarText+"</p></body></html>"), 0o644)
	res, err := f.svc.IngestFile(ctx, html, "page.html")
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	detail, err := f.svc.Document(ctx, res.DocumentID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if detail.Document.FileType != "html" || detail.Document.Filename != "page.html" || len(detail.Chunks) != res.ChunksCreated {
		t.Fatalf("unexpected detail %+v", detail.Document)
	}

	exe := filepath.Join(dir, "tool.exe")
	_ = os.WriteFile(exe, []byte("MZ"), 0o644)
	if _, err := f.svc.IngestFile(ctx, exe, ""); !errors.Is(err, domain.ErrUnsupportedInput) {
		t.Fatalf("expected unsupported input, got %v", err)
	}
	blank := filepath.Join(dir, "blank.txt")
	_ = os.WriteFile(blank, []byte(" \n\t"), 0o644)
	if _, err := f.svc.IngestFile(ctx, blank, ""); !errors.Is(err, domain.ErrUnsupportedInput) {
		t.Fatalf("expected unsupported input for blank text, got %v", err)
	}
	docs, _ := f.svc.Documents(ctx)
	if len(docs) != 1 {
		t.Fatalf("rejected uploads must not be stored, got %d documents", len(docs))
	}
}

func TestDeleteThenRebuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	solar, _ := f.svc.IngestText(ctx, "solar.txt", solarText)
	bread, _ := f.svc.IngestText(ctx, "bread.txt", cookingText)
	before, _ := f.svc.IndexSize(ctx)

	if err := f.svc.DeleteDocument(ctx, solar.DocumentID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if after, _ := f.svc.IndexSize(ctx); after != before || !f.svc.IndexStale() {
		t.Fatalf("delete must not touch the index until rebuild")
	}
	if err := f.svc.DeleteDocument(ctx, solar.DocumentID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}

	n, err := f.svc.RebuildIndex(ctx)
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if n != bread.ChunksCreated || f.svc.IndexStale() {
		t.Fatalf("expected %d entries after rebuild, got %d", bread.ChunksCreated, n)
	}
	for _, ch := range f.store.Entries() {
		if ch.DocumentID != bread.DocumentID {
			t.Fatalf("deleted document still indexed: %+v", ch)
		}
	}
}

// hookedCatalog runs hook once, right after the first AllChunks read.
type hookedCatalog struct {
	Catalog
	once sync.Once
	hook func()
}

func (h *hookedCatalog) AllChunks(ctx context.Context) ([]domain.Chunk, error) {
	chunks, err := h.Catalog.AllChunks(ctx)
	if h.hook != nil {
		h.once.Do(h.hook)
	}
	return chunks, err
}

func TestRebuild_ConcurrentIngestIsKept(t *testing.T) {
	ctx := context.Background()
	var hc *hookedCatalog
	f := newFixture(t, func(d *Deps, _ *Options) {
		hc = &hookedCatalog{Catalog: d.Catalog}
		d.Catalog = hc
	})
	if _, err := f.svc.IngestText(ctx, "solar.txt", solarText); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	hc.hook = func() {
		go func() {
			_, err := f.svc.IngestText(ctx, "bread.txt", cookingText)
			done <- err
		}()
	}
	if _, err := f.svc.RebuildIndex(ctx); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("IngestText: %v", err)
	}

	n, _ := f.svc.IndexSize(ctx)
	all, _ := f.cat.AllChunks(ctx)
	if n != len(all) || f.svc.IndexStale() {
		t.Fatalf("index=%d catalog=%d stale=%v", n, len(all), f.svc.IndexStale())
	}
	docs := map[string]bool{}
	for _, ch := range f.store.Entries() {
		docs[ch.Filename] = true
	}
	if !docs["bread.txt"] {
		t.Fatalf("document ingested during rebuild is not searchable")
	}
}

func TestRebuild_ConcurrentDeleteMarksStale(t *testing.T) {
	ctx := context.Background()
	var hc *hookedCatalog
	f := newFixture(t, func(d *Deps, _ *Options) {
		hc = &hookedCatalog{Catalog: d.Catalog}
		d.Catalog = hc
	})
	solar, _ := f.svc.IngestText(ctx, "solar.txt", solarText)
	if _, err := f.svc.IngestText(ctx, "bread.txt", cookingText); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	hc.hook = func() {
		go func() { done <- f.svc.DeleteDocument(ctx, solar.DocumentID) }()
	}
	if _, err := f.svc.RebuildIndex(ctx); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	n, _ := f.svc.IndexSize(ctx)
	all, _ := f.cat.AllChunks(ctx)
	if n != len(all) && !f.svc.IndexStale() {
		t.Fatalf("index=%d catalog=%d but the index is not marked stale", n, len(all))
	}
}

func TestRebuild_ReembedsOnDimensionChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	res, _ := f.svc.IngestText(ctx, "solar.txt", solarText)

	// same catalog, new embedder dimension
	store := memory.NewStorage(16)
	svc := NewRAGService(Deps{
		Extractor: extract.New(),
		Chunker:   chunker.NewWindowChunker(120, 20),
		Embedder:  hashing.NewEmbedder(16),
		Store:     store,
		Completer: f.comp,
		Catalog:   f.cat,
		Logger:    logging.Discard(),
	}, Options{})
	n, err := svc.RebuildIndex(ctx)
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if n != res.ChunksCreated {
		t.Fatalf("expected %d entries, got %d", res.ChunksCreated, n)
	}
	chunks, _ := f.cat.AllChunks(ctx)
	for _, ch := range chunks {
		if len(ch.Embedding) != 16 {
			t.Fatalf("expected stored vectors to be updated, got dimension %d", len(ch.Embedding))
		}
	}
}

func TestRestoreIndex(t *testing.T) {
	ctx := context.Background()
	snap := filepath.Join(t.TempDir(), "idx", "vector_store")
	f := newFixture(t, func(_ *Deps, o *Options) { o.SnapshotPath = snap })
	_, _ = f.svc.IngestText(ctx, "solar.txt", solarText)
	want, _ := f.svc.IndexSize(ctx)

	restart := func() *RAGServiceImpl {
		return NewRAGService(Deps{
			Extractor: extract.New(),
			Chunker:   chunker.NewWindowChunker(120, 20),
			Embedder:  hashing.NewEmbedder(testDim),
			Store:     memory.NewStorage(testDim),
			Completer: f.comp,
			Catalog:   f.cat,
			Logger:    logging.Discard(),
		}, Options{SnapshotPath: snap})
	}

	svc := restart()
	if err := svc.RestoreIndex(ctx); err != nil {
		t.Fatalf("RestoreIndex: %v", err)
	}
	if got, _ := svc.IndexSize(ctx); got != want {
		t.Fatalf("restored %d entries, want %d", got, want)
	}

	if err := os.WriteFile(snap+memory.IndexSuffix, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	svc = restart()
	if err := svc.LoadIndex(); !errors.Is(err, domain.ErrIndexCorruption) {
		t.Fatalf("expected corruption, got %v", err)
	}
	if err := svc.RestoreIndex(ctx); err != nil {
		t.Fatalf("RestoreIndex after corruption: %v", err)
	}
	if got, _ := svc.IndexSize(ctx); got != want {
		t.Fatalf("rebuilt %d entries, want %d", got, want)
	}

	_ = os.Remove(snap + memory.IndexSuffix)
	_ = os.Remove(snap + memory.MetadataSuffix)
	svc = restart()
	if err := svc.RestoreIndex(ctx); err != nil {
		t.Fatalf("RestoreIndex without snapshot: %v", err)
	}
	if got, _ := svc.IndexSize(ctx); got != want {
		t.Fatalf("expected rebuild from catalog, got %d entries", got)
	}
}

func TestRestoreIndex_FreshInstall(t *testing.T) {
	snap := filepath.Join(t.TempDir(), "vector_store")
	f := newFixture(t, func(_ *Deps, o *Options) { o.SnapshotPath = snap })
	if err := f.svc.RestoreIndex(context.Background()); err != nil {
		t.Fatalf("RestoreIndex: %v", err)
	}
	if n, _ := f.svc.IndexSize(context.Background()); n != 0 {
		t.Fatalf("expected empty index, got %d", n)
	}
}

func TestSummarizeDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(d *Deps, o *Options) {
		d.Summarizer = summarizer.NewFrequencySummarizer()
		o.MaxBullets = 2
	})
	res, _ := f.svc.IngestText(ctx, "solar.txt", solarText)

	sum, err := f.svc.SummarizeDocument(ctx, res.DocumentID, 0)
	if err != nil {
		t.Fatalf("SummarizeDocument: %v", err)
	}
	if sum.Filename != "solar.txt" || strings.Count(sum.Summary, "- ") != 2 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if _, err := f.svc.SummarizeDocument(ctx, "missing", 3); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSummarizeDocument_DefaultsToCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	res, _ := f.svc.IngestText(ctx, "solar.txt", solarText)
	sum, err := f.svc.SummarizeDocument(ctx, res.DocumentID, 4)
	if err != nil {
		t.Fatalf("SummarizeDocument: %v", err)
	}
	if f.comp.calls != 1 || !strings.Contains(f.comp.users[0], "in 4 key bullet points") || sum.Summary == "" {
		t.Fatalf("expected completion-backed summary, got %+v", sum)
	}
}
