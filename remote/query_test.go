package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAskReturnsAnswerWithFragmentsInOrder(t *testing.T) {
	backend := newStubBackend()
	backend.generation = Generation{
		Text: "The format is described in section 3.",
		Fragments: []Fragment{
			{FileID: "file-1-a.pdf", Quote: "Section 3 defines the format.", Marker: "【0†source】"},
			{FileID: "file-2-b.txt", Marker: "【1†source】"},
			{FileID: "file-1-a.pdf", Quote: "See also the appendix.", Marker: "【2†source】"},
		},
	}

	client := NewQueryClient(backend, quietLogger())
	result, err := client.Ask(context.Background(), []StoreID{"vs-stub"}, "What format is used?")
	require.NoError(t, err)
	require.Equal(t, "The format is described in section 3.", result.Answer)
	require.Len(t, result.Fragments, 3)

	citable := result.CitableFragments()
	require.Len(t, citable, 2, "fragments without a quote are not citable")
	require.Equal(t, "Section 3 defines the format.", citable[0].Quote)
	require.Equal(t, "See also the appendix.", citable[1].Quote)

	require.Equal(t, []string{"What format is used?"}, backend.prompts)
}

func TestAskWrapsBackendFailure(t *testing.T) {
	backend := newStubBackend()
	backend.generateErr = errors.New("run expired")

	client := NewQueryClient(backend, quietLogger())
	_, err := client.Ask(context.Background(), []StoreID{"vs-stub"}, "anything?")

	var qErr *QueryError
	require.ErrorAs(t, err, &qErr)
	require.ErrorContains(t, err, "run expired")
}

func TestAskRejectsEmptyAnswer(t *testing.T) {
	backend := newStubBackend()
	backend.generation = Generation{Text: "   "}

	client := NewQueryClient(backend, quietLogger())
	_, err := client.Ask(context.Background(), []StoreID{"vs-stub"}, "anything?")

	var qErr *QueryError
	require.ErrorAs(t, err, &qErr)
}

func TestAskValidatesInput(t *testing.T) {
	backend := newStubBackend()
	client := NewQueryClient(backend, quietLogger())

	_, err := client.Ask(context.Background(), []StoreID{"vs-stub"}, "   ")
	var qErr *QueryError
	require.ErrorAs(t, err, &qErr)

	_, err = client.Ask(context.Background(), nil, "a question?")
	require.ErrorAs(t, err, &qErr)

	require.Empty(t, backend.eventLog(), "invalid input never reaches the remote service")
}
