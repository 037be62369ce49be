package remote

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const defaultSuggestionCount = 4

var suggestionPrefixes = []string{"-", "*", "•"}

// Suggester generates candidate example questions for a freshly populated
// store. Suggestions are cosmetic: every failure degrades to an empty list and
// is only logged, never surfaced.
type Suggester struct {
	backend Backend
	logger  *log.Logger

	// Count caps how many questions are returned. Zero picks the default.
	Count int
}

func NewSuggester(backend Backend, logger *log.Logger) *Suggester {
	if logger == nil {
		logger = log.Default()
	}
	return &Suggester{backend: backend, logger: logger}
}

// ExampleQuestions asks the remote model for questions answerable from the
// store's contents and parses its delimited answer. Best effort by contract.
func (s *Suggester) ExampleQuestions(ctx context.Context, store StoreID) []string {
	count := s.Count
	if count <= 0 {
		count = defaultSuggestionCount
	}

	prompt := fmt.Sprintf(
		"Propose %d short example questions that can be answered from the uploaded documents. "+
			"Reply with a numbered list, one question per line, and nothing else.", count)

	gen, err := s.backend.GenerateWithRetrieval(ctx, []StoreID{store}, prompt)
	if err != nil {
		s.logger.Printf("suggestion generation failed: %v", err)
		return nil
	}

	questions := ParseQuestionList(gen.Text, count)
	if len(questions) == 0 {
		s.logger.Printf("suggestion generation returned nothing parseable")
	}
	return questions
}

// ParseQuestionList extracts up to max question strings from a numbered or
// bulleted list, discarding empty and malformed lines.
func ParseQuestionList(text string, max int) []string {
	var questions []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = stripListPrefix(line)
		line = strings.Trim(line, "\"'")
		if line == "" {
			continue
		}
		questions = append(questions, line)
		if max > 0 && len(questions) == max {
			break
		}
	}
	return questions
}

// stripListPrefix drops leading bullets and "1." / "1)" style numbering.
func stripListPrefix(line string) string {
	for _, prefix := range suggestionPrefixes {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}

	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}
