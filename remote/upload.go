package remote

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// UploadFile is one local file queued for ingestion.
type UploadFile struct {
	Name string
	Data []byte
}

// UploadedFile records a completed ingestion. The file id is what grounding
// fragments reference, so callers keep it to resolve citations to file names.
type UploadedFile struct {
	Name   string
	FileID string
}

// ProgressFunc receives (currentIndex, totalFiles, currentFileName) as each
// file starts. currentIndex is 1-based.
type ProgressFunc func(current, total int, fileName string)

// BatchResult reports the outcome of an upload batch.
type BatchResult struct {
	Uploaded []UploadedFile
	// Failed maps file name to the failure, populated only when the uploader
	// continues past errors.
	Failed map[string]error
}

// Uploader submits files to a store and waits for the remote ingestion job of
// each to settle. Files are processed strictly one at a time, in input order;
// no two ingestion polls ever overlap.
type Uploader struct {
	backend Backend
	logger  *log.Logger

	// PollInterval and PollTimeout bound the per-file ingestion poll. Zero
	// values pick the package defaults.
	PollInterval time.Duration
	PollTimeout  time.Duration

	// ContinueOnError keeps the batch going after one file fails. The default
	// stops at the first failure; already-ingested files stay in the store
	// either way.
	ContinueOnError bool
}

func NewUploader(backend Backend, logger *log.Logger) *Uploader {
	if logger == nil {
		logger = log.Default()
	}
	return &Uploader{backend: backend, logger: logger}
}

// Upload submits one file and polls its operation handle until the remote
// service reports a terminal state.
func (u *Uploader) Upload(ctx context.Context, store StoreID, file UploadFile) (UploadedFile, error) {
	if file.Name == "" {
		return UploadedFile{}, &UploadError{FileName: file.Name, Reason: "file has no name"}
	}
	if len(file.Data) == 0 {
		return UploadedFile{}, &UploadError{FileName: file.Name, Reason: "file is empty"}
	}

	op, err := u.backend.SubmitFile(ctx, store, file.Name, file.Data)
	if err != nil {
		return UploadedFile{}, &UploadError{FileName: file.Name, Reason: "submission rejected", Err: err}
	}

	var state OperationState
	err = Poll(ctx, fmt.Sprintf("ingest %s", file.Name), u.PollInterval, u.PollTimeout, func(ctx context.Context) (bool, error) {
		var statusErr error
		state, statusErr = u.backend.OperationStatus(ctx, op)
		if statusErr != nil {
			return false, statusErr
		}
		return state.Done, nil
	})
	if err != nil {
		return UploadedFile{}, &UploadError{FileName: file.Name, Reason: "waiting for ingestion", Err: err}
	}
	if state.Failed {
		return UploadedFile{}, &UploadError{FileName: file.Name, Reason: state.Reason}
	}

	return UploadedFile{Name: file.Name, FileID: op.FileID}, nil
}

// UploadAll processes files sequentially in the given order, invoking progress
// as each file starts. On failure the batch either stops (default) or records
// the error and continues, per ContinueOnError. A non-nil BatchResult is
// returned alongside the error so callers can see what did land.
func (u *Uploader) UploadAll(ctx context.Context, store StoreID, batch []UploadFile, progress ProgressFunc) (BatchResult, error) {
	result := BatchResult{Uploaded: make([]UploadedFile, 0, len(batch))}

	var firstErr error
	for i, file := range batch {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if progress != nil {
			progress(i+1, len(batch), file.Name)
		}

		uploaded, err := u.Upload(ctx, store, file)
		if err != nil {
			// Cancellation and timeouts are not per-file policy decisions.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			u.logger.Printf("upload failed for %s: %v", file.Name, err)
			if !u.ContinueOnError {
				return result, err
			}
			if result.Failed == nil {
				result.Failed = make(map[string]error)
			}
			result.Failed[file.Name] = err
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		result.Uploaded = append(result.Uploaded, uploaded)
	}

	return result, firstErr
}
