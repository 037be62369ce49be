// Package remote is the client for the hosted document-retrieval service. It
// owns store lifecycle, asynchronous file ingestion with polling, retrieval
// queries with grounding citations, and example-question generation. No
// retrieval or generation logic lives here; all of that runs remotely.
package remote

import "context"

// StoreID identifies a remote document collection.
type StoreID string

// OperationHandle identifies one in-flight remote ingestion job. It is opaque
// to callers and only meaningful to the backend that issued it.
type OperationHandle struct {
	StoreID StoreID
	FileID  string
}

// OperationState is a snapshot of an ingestion job.
type OperationState struct {
	Done   bool
	Failed bool
	// Reason carries the remote-reported failure detail when Failed is set.
	Reason string
}

// Fragment is one grounding citation returned alongside a generated answer.
// Order follows the remote response. Quote may be empty; such fragments keep
// their position but are not citable.
type Fragment struct {
	// FileID references the uploaded file the fragment was retrieved from.
	FileID string
	// Quote is the retrieved source text, when the service returned any.
	Quote string
	// Marker is the inline citation marker embedded in the answer text.
	Marker string
}

// Citable reports whether the fragment carries displayable source text.
func (f Fragment) Citable() bool { return f.Quote != "" }

// Generation is the raw outcome of one generate-with-retrieval call.
type Generation struct {
	Text      string
	Fragments []Fragment
}

// Backend mirrors the remote operations this app consumes. Implementations
// must treat every method as a network round trip: honor ctx and return
// promptly on cancellation.
type Backend interface {
	CreateStore(ctx context.Context, displayName string) (StoreID, error)
	DeleteStore(ctx context.Context, id StoreID) error

	// SubmitFile starts asynchronous ingestion and returns immediately with a
	// pollable handle.
	SubmitFile(ctx context.Context, id StoreID, fileName string, data []byte) (OperationHandle, error)
	OperationStatus(ctx context.Context, op OperationHandle) (OperationState, error)

	// GenerateWithRetrieval answers a prompt with retrieval over the given
	// stores exposed to the model as a callable tool.
	GenerateWithRetrieval(ctx context.Context, stores []StoreID, prompt string) (Generation, error)
}
