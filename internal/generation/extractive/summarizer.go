package extractive

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// queryBoost is added to the normalized frequency of tokens that also occur in the question.
const queryBoost = 1.0

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// frequencySummarizer ranks sentences by word frequency (stopwords filtered),
// favouring words shared with the question.
type frequencySummarizer struct {
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func newFrequencySummarizer() *frequencySummarizer {
	return &frequencySummarizer{
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// summarize picks up to maxSentences sentences from passages, returned in
// their original order. Sentences repeated across overlapping passages count once.
func (s *frequencySummarizer) summarize(query string, passages []string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	var sentences []string
	seen := make(map[string]struct{})
	for _, p := range passages {
		found := sentencePattern.FindAllString(p, -1)
		if len(found) == 0 && strings.TrimSpace(p) != "" {
			found = []string{p}
		}
		for _, sent := range found {
			sent = strings.Join(strings.Fields(sent), " ")
			if sent == "" {
				continue
			}
			if _, dup := seen[sent]; dup {
				continue
			}
			seen[sent] = struct{}{}
			sentences = append(sentences, sent)
		}
	}
	if len(sentences) == 0 {
		return ""
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	for _, tok := range s.tokens(query) {
		if _, ok := freq[tok]; ok {
			freq[tok] += queryBoost
		}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		sscore := 0.0
		for _, tok := range toks {
			sscore += freq[tok]
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			sscore /= math.Sqrt(l)
		}
		scores[i] = pair{i, sscore}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	// Keep original order among selected
	selected := make([]int, maxSentences)
	for i := 0; i < maxSentences; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}

func (s *frequencySummarizer) tokens(text string) []string {
	raw := s.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := s.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "why", "when", "where", "do", "does", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
