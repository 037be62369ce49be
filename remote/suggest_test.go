package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExampleQuestionsParsesNumberedList(t *testing.T) {
	backend := newStubBackend()
	backend.generation = Generation{
		Text: "1. What is the scope of the document?\n2. Who are the intended readers?\n3. When was it last revised?",
	}

	questions := NewSuggester(backend, quietLogger()).ExampleQuestions(context.Background(), "vs-stub")
	require.Equal(t, []string{
		"What is the scope of the document?",
		"Who are the intended readers?",
		"When was it last revised?",
	}, questions)
	require.Contains(t, backend.prompts[0], "4 short example questions")
}

func TestExampleQuestionsDegradesToEmptyOnError(t *testing.T) {
	backend := newStubBackend()
	backend.generateErr = errors.New("503 from upstream")

	questions := NewSuggester(backend, quietLogger()).ExampleQuestions(context.Background(), "vs-stub")
	require.Empty(t, questions)
}

func TestParseQuestionList(t *testing.T) {
	cases := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{
			name: "bulleted",
			text: "- First question?\n* Second question?\n• Third question?",
			max:  10,
			want: []string{"First question?", "Second question?", "Third question?"},
		},
		{
			name: "numbered with parens and quotes",
			text: "1) \"One?\"\n2) 'Two?'",
			max:  10,
			want: []string{"One?", "Two?"},
		},
		{
			name: "blank lines skipped",
			text: "\n1. One?\n\n\n2. Two?\n",
			max:  10,
			want: []string{"One?", "Two?"},
		},
		{
			name: "capped at max",
			text: "1. a?\n2. b?\n3. c?",
			max:  2,
			want: []string{"a?", "b?"},
		},
		{
			name: "plain lines survive",
			text: "What is this about?",
			max:  10,
			want: []string{"What is this about?"},
		},
		{
			name: "nothing parseable",
			text: "   \n\n",
			max:  10,
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ParseQuestionList(tc.text, tc.max))
		})
	}
}
