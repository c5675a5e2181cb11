package domain

import (
	"context"
	"time"
)

// Document represents a single uploaded file after text extraction.
type Document struct {
	ID         string
	Filename   string
	FileType   string
	Content    string
	UploadedAt time.Time
}

// Chunk is a contiguous slice of a document used for indexing. The JSON form
// is the metadata record persisted next to the vector index.
type Chunk struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	Index      int       `json:"chunk_index"`
	Text       string    `json:"text"`
	PageNumber *int      `json:"page_number"`
	Embedding  []float64 `json:"-"`
}

// Span is a chunk candidate expressed in rune offsets of the source text.
// Start and End delimit the untrimmed window; Text is trimmed.
type Span struct {
	Start int
	End   int
	Text  string
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Citation ties a retrieved chunk to a generated answer.
type Citation struct {
	DocumentID      string  `json:"document_id"`
	Filename        string  `json:"filename"`
	Text            string  `json:"text"`
	SimilarityScore float64 `json:"similarity_score"`
	PageNumber      *int    `json:"page_number,omitempty"`
}

// QueryResult is the answer to a question together with its sources.
type QueryResult struct {
	Answer          string     `json:"answer"`
	Citations       []Citation `json:"citations"`
	RetrievedChunks int        `json:"retrieved_chunks"`
}

// PageSpan marks the rune offset at which a page starts in extracted text.
type PageSpan struct {
	Number int
	Start  int
}

// ExtractedText is the plain text of a file plus optional page boundaries.
type ExtractedText struct {
	Text  string
	Pages []PageSpan
}

// PageAt returns the page containing rune offset pos, or nil when the
// extractor reported no pages.
func (e ExtractedText) PageAt(pos int) *int {
	var page *int
	for i := range e.Pages {
		if e.Pages[i].Start > pos {
			break
		}
		n := e.Pages[i].Number
		page = &n
	}
	return page
}

// CompletionRequest is a single system+user exchange with a chat model.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Embedder converts free text into a numeric vector representation of a
// fixed dimension.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Completer produces free-form text for a prompt.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Chunker splits text into overlapping spans suitable for retrieval indexing.
type Chunker interface {
	Split(text string) []Span
}

// TextExtractor turns a stored file into plain text.
type TextExtractor interface {
	Extract(path, fileType string) (ExtractedText, error)
}

// Summarizer produces a brief bullet summary of the provided text.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxBullets int) (string, error)
}
