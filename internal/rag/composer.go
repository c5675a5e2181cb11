package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"docqa/internal/domain"
)

const (
	// NoResultsAnswer is returned when retrieval found nothing to ground an
	// answer on.
	NoResultsAnswer = "I couldn't find relevant information in the uploaded documents to answer your question."

	previewLimit       = 200
	summaryInputLimit  = 4000
	answerTemperature  = 0.1
	answerMaxTokens    = 1000
	summaryTemperature = 0.1
	summaryMaxTokens   = 500
)

const answerSystemPrompt = `You are a helpful research assistant. Answer the user's question based on the provided context from their uploaded documents.

Important guidelines:
1. Only use information from the provided context
2. When referencing information, use the reference numbers [1], [2], etc. that correspond to the context sources
3. If the context doesn't contain enough information to answer the question, say so clearly
4. Be precise and cite your sources using the reference numbers
5. Provide a comprehensive answer when possible`

const summarySystemPrompt = "You are a helpful assistant that creates concise, informative summaries."

// Composer builds grounded prompts from retrieved chunks and asks a
// completion provider for the answer.
type Composer struct {
	completer domain.Completer
	logger    *slog.Logger
}

func NewComposer(completer domain.Completer, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{completer: completer, logger: logger}
}

// Answer returns the model's answer to query grounded on ranked, together
// with one citation per chunk in rank order. With no chunks it returns
// NoResultsAnswer without contacting the provider.
func (c *Composer) Answer(ctx context.Context, query string, ranked []domain.SearchResult) (string, []domain.Citation, error) {
	if len(ranked) == 0 {
		return NoResultsAnswer, []domain.Citation{}, nil
	}
	block, citations := BuildContext(ranked)
	user := fmt.Sprintf(`Context from uploaded documents:
%s

Question: %s

Please answer the question based on the provided context, using reference numbers [1], [2], etc. when citing sources.`, block, query)

	answer, err := c.completer.Complete(ctx, domain.CompletionRequest{
		System:      answerSystemPrompt,
		User:        user,
		Temperature: answerTemperature,
		MaxTokens:   answerMaxTokens,
	})
	if err != nil {
		return "", nil, domain.WrapProvider("completion", "answer", err)
	}
	c.logger.Debug("answer composed", "chunks", len(ranked), "answer_chars", len(answer))
	return answer, citations, nil
}

// Summarize asks for at most maxBullets bullet points about text. Only the
// first 4000 characters of text are sent.
func (c *Composer) Summarize(ctx context.Context, text string, maxBullets int) (string, error) {
	if maxBullets <= 0 {
		return "", fmt.Errorf("%w: max bullets must be positive, got %d", domain.ErrUnsupportedInput, maxBullets)
	}
	user := fmt.Sprintf(`Please provide a concise summary of the following document in %d key bullet points:

%s

Focus on the main ideas, key findings, and important conclusions.`, maxBullets, truncateRunes(text, summaryInputLimit))

	summary, err := c.completer.Complete(ctx, domain.CompletionRequest{
		System:      summarySystemPrompt,
		User:        user,
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
	if err != nil {
		return "", domain.WrapProvider("completion", "summarize", err)
	}
	return summary, nil
}

// BuildContext renders ranked chunks as "[n] text" blocks separated by blank
// lines and derives the matching citations.
func BuildContext(ranked []domain.SearchResult) (string, []domain.Citation) {
	parts := make([]string, 0, len(ranked))
	citations := make([]domain.Citation, 0, len(ranked))
	for i, r := range ranked {
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, r.Chunk.Text))
		filename := r.Chunk.Filename
		if filename == "" {
			filename = "Unknown"
		}
		citations = append(citations, domain.Citation{
			DocumentID:      r.Chunk.DocumentID,
			Filename:        filename,
			Text:            Preview(r.Chunk.Text),
			SimilarityScore: r.Score,
			PageNumber:      r.Chunk.PageNumber,
		})
	}
	return strings.Join(parts, "\n\n"), citations
}

// Preview shortens text to 200 characters followed by "..." when longer.
func Preview(text string) string {
	if len([]rune(text)) <= previewLimit {
		return text
	}
	return truncateRunes(text, previewLimit) + "..."
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
