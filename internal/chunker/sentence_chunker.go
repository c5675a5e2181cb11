package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

func (c *SentenceChunker) Split(text string) []domain.Span {
	sentences := c.sentences(text)
	if len(sentences) == 0 {
		return nil
	}
	var spans []domain.Span
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		span := domain.Span{Start: sentences[i].Start, End: sentences[end-1].End}
		parts := make([]string, 0, end-i)
		for _, s := range sentences[i:end] {
			parts = append(parts, s.Text)
		}
		span.Text = strings.Join(parts, " ")
		spans = append(spans, span)
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return spans
}

// sentences returns trimmed, non-empty sentences with rune offsets. Text
// after the last terminator counts as a final sentence.
func (c *SentenceChunker) sentences(text string) []domain.Span {
	var out []domain.Span
	add := func(from, to int) {
		piece := strings.TrimSpace(text[from:to])
		if piece == "" {
			return
		}
		out = append(out, domain.Span{
			Start: utf8.RuneCountInString(text[:from]),
			End:   utf8.RuneCountInString(text[:to]),
			Text:  piece,
		})
	}
	last := 0
	for _, loc := range c.splitter.FindAllStringIndex(text, -1) {
		add(loc[0], loc[1])
		last = loc[1]
	}
	if last < len(text) {
		add(last, len(text))
	}
	return out
}
