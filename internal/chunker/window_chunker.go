package chunker

import (
	"strings"
	"unicode"

	"docqa/internal/domain"
)

const (
	DefaultWindowSize = 1000
	DefaultOverlap    = 200
)

// WindowChunker splits text into overlapping character windows, preferring
// to cut after a sentence terminator, then at whitespace.
type WindowChunker struct {
	windowSize int
	overlap    int
}

// NewWindowChunker creates a chunker with the given window size and overlap,
// both counted in runes.
func NewWindowChunker(windowSize, overlap int) *WindowChunker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &WindowChunker{windowSize: windowSize, overlap: overlap}
}

// Chunk returns the trimmed text of every window.
func (c *WindowChunker) Chunk(text string) []string {
	spans := c.Split(text)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Text
	}
	return out
}

// Split returns the windows covering text in order. Windows whose content is
// blank after trimming are dropped.
func (c *WindowChunker) Split(text string) []domain.Span {
	runes := []rune(text)
	n := len(runes)
	var spans []domain.Span
	start := 0
	for start < n {
		end := start + c.windowSize
		if end < n {
			if cut := lastIndexFunc(runes, start, end, isSentenceEnd); cut > start {
				end = cut + 1
			} else if cut := lastIndexFunc(runes, start, end, unicode.IsSpace); cut > start {
				end = cut
			}
		} else {
			end = n
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			spans = append(spans, domain.Span{Start: start, End: end, Text: piece})
		}
		if end >= n {
			break
		}
		next := end - c.overlap
		if next <= start {
			// overlap would stall the loop; continue without overlap
			next = end
		}
		start = next
	}
	return spans
}

func isSentenceEnd(r rune) bool { return r == '.' }

// lastIndexFunc returns the highest index i in (lo, hi) with f(runes[i]),
// or -1.
func lastIndexFunc(runes []rune, lo, hi int, f func(rune) bool) int {
	for i := hi - 1; i > lo; i-- {
		if f(runes[i]) {
			return i
		}
	}
	return -1
}
