package remote

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func fastUploader(backend Backend) *Uploader {
	u := NewUploader(backend, quietLogger())
	u.PollInterval = time.Millisecond
	u.PollTimeout = 250 * time.Millisecond
	return u
}

func TestUploadWaitsForTerminalStatus(t *testing.T) {
	backend := newStubBackend()
	backend.statusPlan["a.pdf"] = []OperationState{{}, {}, {Done: true}}

	uploaded, err := fastUploader(backend).Upload(context.Background(), "vs-stub", UploadFile{Name: "a.pdf", Data: []byte("x")})
	require.NoError(t, err)
	require.Equal(t, "a.pdf", uploaded.Name)
	require.NotEmpty(t, uploaded.FileID)
	require.Equal(t, 3, backend.statusCalls["a.pdf"], "polling must stop at the first done status")
}

func TestUploadReportsRemoteFailure(t *testing.T) {
	backend := newStubBackend()
	backend.statusPlan["a.pdf"] = []OperationState{{}, {Done: true, Failed: true, Reason: "ingestion failed"}}

	_, err := fastUploader(backend).Upload(context.Background(), "vs-stub", UploadFile{Name: "a.pdf", Data: []byte("x")})

	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	require.Equal(t, "a.pdf", upErr.FileName)
	require.Contains(t, upErr.Reason, "ingestion failed")
}

func TestUploadTimesOut(t *testing.T) {
	backend := newStubBackend()
	backend.statusPlan["slow.pdf"] = []OperationState{{}} // never done

	_, err := fastUploader(backend).Upload(context.Background(), "vs-stub", UploadFile{Name: "slow.pdf", Data: []byte("x")})

	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	backend := newStubBackend()

	_, err := fastUploader(backend).Upload(context.Background(), "vs-stub", UploadFile{Name: "a.pdf"})

	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	require.Empty(t, backend.eventLog(), "nothing may reach the remote service")
}

func TestUploadAllIsStrictlySequential(t *testing.T) {
	backend := newStubBackend()
	backend.statusPlan["a.pdf"] = []OperationState{{}, {Done: true}}
	backend.statusPlan["b.txt"] = []OperationState{{}, {Done: true}}
	backend.statusPlan["c.md"] = []OperationState{{Done: true}}

	batch := []UploadFile{
		{Name: "a.pdf", Data: []byte("a")},
		{Name: "b.txt", Data: []byte("b")},
		{Name: "c.md", Data: []byte("c")},
	}

	var progress []string
	result, err := fastUploader(backend).UploadAll(context.Background(), "vs-stub", batch, func(current, total int, name string) {
		progress = append(progress, fmt.Sprintf("%d/%d %s", current, total, name))
	})
	require.NoError(t, err)
	require.Len(t, result.Uploaded, 3)
	require.Equal(t, []string{"1/3 a.pdf", "2/3 b.txt", "3/3 c.md"}, progress)

	// One submission per file, in input order, with each file's polling fully
	// settled before the next submission.
	require.Equal(t, []string{
		"submit a.pdf", "status a.pdf", "status a.pdf",
		"submit b.txt", "status b.txt", "status b.txt",
		"submit c.md", "status c.md",
	}, backend.eventLog())
}

func TestUploadAllStopsAtFirstFailureByDefault(t *testing.T) {
	backend := newStubBackend()
	backend.statusPlan["a.pdf"] = []OperationState{{Done: true, Failed: true, Reason: "bad file"}}

	batch := []UploadFile{
		{Name: "a.pdf", Data: []byte("a")},
		{Name: "b.txt", Data: []byte("b")},
	}

	result, err := fastUploader(backend).UploadAll(context.Background(), "vs-stub", batch, nil)

	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	require.Equal(t, "a.pdf", upErr.FileName)
	require.Empty(t, result.Uploaded)
	require.NotContains(t, backend.eventLog(), "submit b.txt")
}

func TestUploadAllContinuesPastFailuresWhenConfigured(t *testing.T) {
	backend := newStubBackend()
	backend.statusPlan["a.pdf"] = []OperationState{{Done: true, Failed: true, Reason: "bad file"}}

	batch := []UploadFile{
		{Name: "a.pdf", Data: []byte("a")},
		{Name: "b.txt", Data: []byte("b")},
	}

	uploader := fastUploader(backend)
	uploader.ContinueOnError = true

	result, err := uploader.UploadAll(context.Background(), "vs-stub", batch, nil)
	require.Error(t, err, "the first failure is still reported")
	require.Len(t, result.Uploaded, 1)
	require.Equal(t, "b.txt", result.Uploaded[0].Name)
	require.Contains(t, result.Failed, "a.pdf")
}

func TestUploadAllStopsOnCancellation(t *testing.T) {
	backend := newStubBackend()
	backend.statusPlan["a.pdf"] = []OperationState{{}} // never done

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	uploader := fastUploader(backend)
	uploader.ContinueOnError = true
	uploader.PollTimeout = time.Minute

	var err error
	go func() {
		defer close(done)
		_, err = uploader.UploadAll(ctx, "vs-stub", []UploadFile{
			{Name: "a.pdf", Data: []byte("a")},
			{Name: "b.txt", Data: []byte("b")},
		}, nil)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	require.ErrorIs(t, err, context.Canceled)
	require.NotContains(t, backend.eventLog(), "submit b.txt", "cancellation is not a per-file failure")
}
