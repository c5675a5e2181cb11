package summarizer

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/textutil"
)

var sentencePattern = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)

// FrequencySummarizer is the offline extractive summary. Sentences are
// ranked by how often their content words occur across the whole text, so
// it needs no provider.
type FrequencySummarizer struct{}

func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{}
}

type sentence struct {
	pos   int
	text  string
	terms []string
	score float64
}

// Summarize picks the maxBullets best ranked sentences and returns them as
// "- " bullet lines in document order.
func (FrequencySummarizer) Summarize(ctx context.Context, text string, maxBullets int) (string, error) {
	if maxBullets <= 0 {
		return "", fmt.Errorf("%w: max bullets must be positive, got %d", domain.ErrUnsupportedInput, maxBullets)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sents := splitSentences(text)
	if len(sents) == 0 {
		return "", nil
	}

	weights := termWeights(sents)
	for i := range sents {
		sents[i].score = sents[i].rank(weights)
	}
	ranked := slices.Clone(sents)
	slices.SortStableFunc(ranked, func(a, b sentence) int { return cmp.Compare(b.score, a.score) })
	top := ranked[:min(maxBullets, len(ranked))]
	slices.SortFunc(top, func(a, b sentence) int { return cmp.Compare(a.pos, b.pos) })

	var b strings.Builder
	for i, s := range top {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(s.text)
	}
	return b.String(), nil
}

func splitSentences(text string) []sentence {
	var out []sentence
	for _, raw := range sentencePattern.FindAllString(text, -1) {
		clean := strings.Join(strings.Fields(raw), " ")
		if clean == "" {
			continue
		}
		out = append(out, sentence{pos: len(out), text: clean, terms: textutil.ContentWords(clean)})
	}
	return out
}

// termWeights maps each content word to its count relative to the most
// frequent one.
func termWeights(sents []sentence) map[string]float64 {
	counts := map[string]int{}
	peak := 0
	for _, s := range sents {
		for _, t := range s.terms {
			counts[t]++
			peak = max(peak, counts[t])
		}
	}
	w := make(map[string]float64, len(counts))
	for t, c := range counts {
		w[t] = float64(c) / float64(peak)
	}
	return w
}

// rank sums the term weights damped by the square root of the term count;
// long sentences would otherwise always win.
func (s sentence) rank(weights map[string]float64) float64 {
	if len(s.terms) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range s.terms {
		sum += weights[t]
	}
	return sum / math.Sqrt(float64(len(s.terms)))
}
