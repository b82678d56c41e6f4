// Package extractive answers questions offline by quoting the most
// representative sentences of the retrieved context. It needs no credentials
// and is the generator used in mock mode.
package extractive

import (
	"context"
	"fmt"
	"strings"

	"agentiq/internal/domain"
	"agentiq/internal/generation"
)

// DefaultMaxSentences bounds the length of an answer.
const DefaultMaxSentences = 3

// Generator implements domain.Generator without a language model.
type Generator struct {
	summarizer   *frequencySummarizer
	maxSentences int
}

var _ domain.Generator = (*Generator)(nil)

// New returns an extractive generator quoting at most maxSentences sentences.
func New(maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	return &Generator{summarizer: newFrequencySummarizer(), maxSentences: maxSentences}
}

// Generate quotes the context and cites its sources. Confidence is the mean
// chunk similarity expressed as a percentage.
func (g *Generator) Generate(ctx context.Context, query string, chunks []domain.ContextChunk) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if len(chunks) == 0 {
		return generation.NoDocumentsMessage, 0, nil
	}
	passages := make([]string, len(chunks))
	var sources []string
	seen := make(map[string]struct{})
	sum := 0.0
	for i, c := range chunks {
		passages[i] = c.Text
		sum += c.Similarity
		if _, ok := seen[c.Metadata.Source]; !ok {
			seen[c.Metadata.Source] = struct{}{}
			sources = append(sources, c.Metadata.Source)
		}
	}
	summary := g.summarizer.summarize(query, passages, g.maxSentences)
	answer := fmt.Sprintf("%s\n\nSources: %s", summary, strings.Join(sources, ", "))
	return answer, sum / float64(len(chunks)) * 100, nil
}

// GenerateFallback returns a fixed explanation.
func (g *Generator) GenerateFallback(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return generation.NoDocumentsMessage, nil
}
