package extractive

import (
	"context"
	"math"
	"strings"
	"testing"

	"agentiq/internal/domain"
	"agentiq/internal/generation"
)

func TestGenerator_QuotesRelevantSentences(t *testing.T) {
	g := New(1)
	chunks := []domain.ContextChunk{
		{Text: "Cats sleep a lot. The sky is blue on clear days.", Metadata: domain.Metadata{Source: "facts.txt"}, Similarity: 0.8},
		{Text: "The sky is blue on clear days. Rain falls from clouds.", Metadata: domain.Metadata{Source: "weather.md"}, Similarity: 0.6},
	}
	answer, conf, err := g.Generate(context.Background(), "what color is the sky", chunks)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(answer, "The sky is blue on clear days.") {
		t.Errorf("unexpected answer %q", answer)
	}
	if !strings.HasSuffix(answer, "Sources: facts.txt, weather.md") {
		t.Errorf("answer does not cite sources: %q", answer)
	}
	if math.Abs(conf-70) > 1e-9 {
		t.Errorf("confidence = %v, want 70", conf)
	}
}

func TestGenerator_KeepsUnterminatedText(t *testing.T) {
	answer, _, err := New(0).Generate(context.Background(), "q",
		[]domain.ContextChunk{{Text: "no terminator here", Metadata: domain.Metadata{Source: "a.txt"}, Similarity: 0.5}})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(answer, "no terminator here") {
		t.Errorf("unexpected answer %q", answer)
	}
}

func TestGenerator_Fallback(t *testing.T) {
	got, err := New(2).GenerateFallback(context.Background(), "anything")
	if err != nil || got != generation.NoDocumentsMessage {
		t.Fatalf("GenerateFallback = (%q, %v)", got, err)
	}
}
