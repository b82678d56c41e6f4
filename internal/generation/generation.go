// Package generation builds prompts for answer generators and parses the
// confidence marker they are asked to append.
package generation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"agentiq/internal/domain"
)

// Generator is re-exported for callers that only deal with generation.
type Generator = domain.Generator

// DefaultConfidence is reported when an answer carries no usable marker.
const DefaultConfidence = 70.0

// NoDocumentsMessage is the offline reply when nothing relevant was retrieved.
const NoDocumentsMessage = "No relevant documents were found for your question. Please upload some documents first, then try again."

var confidenceMarker = regexp.MustCompile(`\[CONFIDENCE:\s*([^%\]]*)%\]`)

// BuildPrompt renders the numbered source blocks followed by the question.
func BuildPrompt(query string, chunks []domain.ContextChunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		source := c.Metadata.Source
		if source == "" {
			source = "Unknown"
		}
		parts[i] = fmt.Sprintf("[Source %d: %s]\n%s", i+1, source, c.Text)
	}
	var b strings.Builder
	b.WriteString("You are AgentIQ, a knowledge assistant for support agents. Your job is to:\n")
	b.WriteString("1. Answer questions accurately based ONLY on the provided context\n")
	b.WriteString("2. Always cite which source(s) you used for your answer\n")
	b.WriteString("3. If the context doesn't contain enough information, say so clearly\n")
	b.WriteString("4. Be concise but complete\n\n")
	b.WriteString("Context from knowledge base:\n")
	b.WriteString(strings.Join(parts, "\n\n---\n\n"))
	b.WriteString("\n\n---\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\n\nProvide a helpful answer based on the context above. Include source citations.\n")
	b.WriteString("At the end of your response, write exactly: [CONFIDENCE: XX%] where XX is your confidence score from 0-100.")
	return b.String()
}

// FallbackPrompt asks the model to explain that nothing relevant was found.
func FallbackPrompt(query string) string {
	return fmt.Sprintf("The user asked: '%s' but no relevant documents were found in the knowledge base. "+
		"Politely explain this and suggest they upload relevant documents or rephrase their question.", query)
}

// ParseConfidence strips the trailing confidence marker from answer. When the
// marker is missing or unparsable the answer is returned untouched together
// with DefaultConfidence.
func ParseConfidence(answer string) (string, float64) {
	loc := confidenceMarker.FindStringSubmatchIndex(answer)
	if loc == nil {
		return answer, DefaultConfidence
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(answer[loc[2]:loc[3]]), 64)
	if err != nil {
		return answer, DefaultConfidence
	}
	return strings.TrimSpace(answer[:loc[0]]), v
}

// ErrorAnswer is the answer text reported when generation failed.
func ErrorAnswer(err error) string {
	return "Error generating answer: " + err.Error()
}

// FallbackErrorAnswer is the canned reply when even the fallback call failed.
func FallbackErrorAnswer(err error) string {
	return fmt.Sprintf("I couldn't find any relevant documents for your question. "+
		"Please upload some documents first. (Error: %v)", err)
}
