package chunker

import (
	"regexp"
	"strings"

	"agentiq/internal/domain"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// WindowChunker splits text into overlapping character windows, preferring to
// cut after a period or newline in the second half of each window.
type WindowChunker struct {
	chunkSize int
	overlap   int
}

func NewWindowChunker(chunkSize, overlap int) *WindowChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	return &WindowChunker{chunkSize: chunkSize, overlap: overlap}
}

func (c *WindowChunker) Chunk(document domain.Document) ([]domain.Fragment, error) {
	return Split(document.Content, c.chunkSize, c.overlap, document.Source), nil
}

// Normalize trims the text and collapses runs of three or more newlines into two.
func Normalize(text string) string {
	return excessNewlines.ReplaceAllString(strings.TrimSpace(text), "\n\n")
}

// Split chunks the normalized text. Offsets in the returned fragments are rune
// offsets into Normalize(text). An empty text yields no fragments.
func Split(text string, chunkSize, overlap int, source string) []domain.Fragment {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	runes := []rune(Normalize(text))
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= chunkSize {
		return []domain.Fragment{{
			Text:        string(runes),
			Source:      source,
			ChunkIndex:  0,
			TotalChunks: 1,
			CharStart:   0,
			CharEnd:     n,
		}}
	}

	var fragments []domain.Fragment
	half := chunkSize / 2
	start := 0
	for start < n {
		end := start + chunkSize
		if end < n {
			if bp := lastBoundary(runes, start+half, end); bp > start+half {
				end = bp + 1
			}
		} else {
			end = n
		}

		if text := strings.TrimSpace(string(runes[start:end])); text != "" {
			fragments = append(fragments, domain.Fragment{
				Text:       text,
				Source:     source,
				ChunkIndex: len(fragments),
				CharStart:  start,
				CharEnd:    end,
			})
		}
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			// overlap too large for this window: move forward by at least one rune
			next = start + 1
		}
		start = next
	}

	for i := range fragments {
		fragments[i].TotalChunks = len(fragments)
	}
	return fragments
}

// lastBoundary returns the index of the last '.' or '\n' in runes[lo:hi], or -1.
func lastBoundary(runes []rune, lo, hi int) int {
	for i := hi - 1; i >= lo; i-- {
		if runes[i] == '.' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}
