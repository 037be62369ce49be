package remote

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Result is one answered question: the generated text plus grounding
// fragments in the order the remote response listed them.
type Result struct {
	Answer    string
	Fragments []Fragment
}

// CitableFragments filters to fragments carrying retrievable source text.
// Positions among the remaining fragments are preserved.
func (r Result) CitableFragments() []Fragment {
	citable := make([]Fragment, 0, len(r.Fragments))
	for _, f := range r.Fragments {
		if f.Citable() {
			citable = append(citable, f)
		}
	}
	return citable
}

// QueryClient answers natural-language questions bound to one or more stores.
// Retrieval is a capability the remote model invokes on demand, not a step we
// run ourselves.
type QueryClient struct {
	backend Backend
	logger  *log.Logger
}

func NewQueryClient(backend Backend, logger *log.Logger) *QueryClient {
	if logger == nil {
		logger = log.Default()
	}
	return &QueryClient{backend: backend, logger: logger}
}

// Ask sends the question against the given stores. On error no partial result
// is returned; callers must not record a transcript entry for the attempt.
func (c *QueryClient) Ask(ctx context.Context, stores []StoreID, question string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, &QueryError{Err: fmt.Errorf("question is empty")}
	}
	if len(stores) == 0 {
		return Result{}, &QueryError{Err: fmt.Errorf("no stores bound to the session")}
	}

	gen, err := c.backend.GenerateWithRetrieval(ctx, stores, question)
	if err != nil {
		return Result{}, &QueryError{Err: err}
	}
	if strings.TrimSpace(gen.Text) == "" {
		return Result{}, &QueryError{Err: fmt.Errorf("service returned an empty answer")}
	}

	return Result{Answer: gen.Text, Fragments: gen.Fragments}, nil
}
