package remote

import (
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// CredentialError means the API key is missing or rejected. It is surfaced
// before any further remote work is attempted and blocks the session.
type CredentialError struct {
	Reason string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credentials: %s", e.Reason)
}

// RemoteServiceError wraps a failed store management call.
type RemoteServiceError struct {
	Op  string
	Err error
}

func (e *RemoteServiceError) Error() string {
	return fmt.Sprintf("remote service: %s: %v", e.Op, e.Err)
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

// UploadError means one file's ingestion failed after submission. It is scoped
// to that file; sibling uploads are unaffected on the remote side.
type UploadError struct {
	FileName string
	Reason   string
	Err      error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upload %s: %s: %v", e.FileName, e.Reason, e.Err)
	}
	return fmt.Sprintf("upload %s: %s", e.FileName, e.Reason)
}

func (e *UploadError) Unwrap() error { return e.Err }

// QueryError means a question could not be answered. Callers must not append
// a partial transcript entry when they receive one.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("query: %v", e.Err) }

func (e *QueryError) Unwrap() error { return e.Err }

// TimeoutError reports an operation poll that exhausted its time budget.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no terminal status after %s", e.Op, e.Elapsed.Round(time.Second))
}

// isAuthError reports whether the remote API rejected our credentials.
func isAuthError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 401 || reqErr.HTTPStatusCode == 403
	}
	return false
}

// isNotFound reports whether the remote API says the resource is gone, which
// delete paths treat as success.
func isNotFound(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 404
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 404
	}
	return false
}

// classify maps a raw remote failure onto the error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if isAuthError(err) {
		return &CredentialError{Reason: fmt.Sprintf("%s rejected: %v", op, err)}
	}
	return &RemoteServiceError{Op: op, Err: err}
}
