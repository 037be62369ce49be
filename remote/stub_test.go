package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// stubBackend records every call in order so tests can assert sequencing.
type stubBackend struct {
	mu     sync.Mutex
	events []string

	createErr error
	deleteErr error
	submitErr map[string]error
	// statusPlan maps file name to the sequence of states its poll reports;
	// the final state repeats once exhausted.
	statusPlan map[string][]OperationState

	statusCalls map[string]int
	nextFileID  int

	generation  Generation
	generateErr error
	prompts     []string
}

var _ Backend = (*stubBackend)(nil)

func newStubBackend() *stubBackend {
	return &stubBackend{
		submitErr:   map[string]error{},
		statusPlan:  map[string][]OperationState{},
		statusCalls: map[string]int{},
	}
}

func (s *stubBackend) record(format string, args ...any) {
	s.events = append(s.events, fmt.Sprintf(format, args...))
}

func (s *stubBackend) CreateStore(ctx context.Context, displayName string) (StoreID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("create %s", displayName)
	if s.createErr != nil {
		return "", s.createErr
	}
	return "vs-stub", nil
}

func (s *stubBackend) DeleteStore(ctx context.Context, id StoreID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete %s", id)
	return s.deleteErr
}

func (s *stubBackend) SubmitFile(ctx context.Context, id StoreID, fileName string, data []byte) (OperationHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("submit %s", fileName)
	if err := s.submitErr[fileName]; err != nil {
		return OperationHandle{}, err
	}
	s.nextFileID++
	fileID := fmt.Sprintf("file-%d-%s", s.nextFileID, fileName)
	return OperationHandle{StoreID: id, FileID: fileID}, nil
}

func (s *stubBackend) OperationStatus(ctx context.Context, op OperationHandle) (OperationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := fileNameOf(op.FileID)
	s.record("status %s", name)
	call := s.statusCalls[name]
	s.statusCalls[name] = call + 1

	plan, ok := s.statusPlan[name]
	if !ok || len(plan) == 0 {
		return OperationState{Done: true}, nil
	}
	if call >= len(plan) {
		call = len(plan) - 1
	}
	return plan[call], nil
}

func (s *stubBackend) GenerateWithRetrieval(ctx context.Context, stores []StoreID, prompt string) (Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("generate")
	s.prompts = append(s.prompts, prompt)
	if s.generateErr != nil {
		return Generation{}, s.generateErr
	}
	return s.generation, nil
}

func (s *stubBackend) eventLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// fileNameOf recovers the submitted file name from a stub file id.
func fileNameOf(fileID string) string {
	parts := strings.SplitN(fileID, "-", 3)
	if len(parts) == 3 {
		return parts[2]
	}
	return fileID
}
