package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"agentiq/internal/domain"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

type span struct {
	text       string
	start, end int // rune offsets
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

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Fragment, error) {
	text := Normalize(document.Content)
	if text == "" {
		return nil, nil
	}
	sentences := c.sentences(text)
	var fragments []domain.Fragment
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		parts := make([]string, 0, end-i)
		for _, s := range sentences[i:end] {
			parts = append(parts, s.text)
		}
		fragments = append(fragments, domain.Fragment{
			Text:       strings.Join(parts, " "),
			Source:     document.Source,
			ChunkIndex: len(fragments),
			CharStart:  sentences[i].start,
			CharEnd:    sentences[end-1].end,
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	for k := range fragments {
		fragments[k].TotalChunks = len(fragments)
	}
	return fragments, nil
}

// sentences returns trimmed, non-empty sentences with rune offsets. Text after
// the last terminator becomes a final sentence.
func (c *SentenceChunker) sentences(text string) []span {
	var out []span
	add := func(from, to int) {
		raw := text[from:to]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return
		}
		lead := strings.Index(raw, trimmed)
		start := utf8.RuneCountInString(text[:from+lead])
		out = append(out, span{
			text:  trimmed,
			start: start,
			end:   start + utf8.RuneCountInString(trimmed),
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
