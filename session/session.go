// Package session orchestrates one chat session over the remote document
// service: store lifecycle, the upload batch, repeated queries, suggestion
// generation, and the new-chat reset. All session state lives here and is
// mutated only through the session's own transitions.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmarchi/docqa/files"
	"github.com/dmarchi/docqa/remote"
)

// State names the session lifecycle stages.
type State string

const (
	// StateNoKey blocks everything until credentials arrive.
	StateNoKey State = "no_key"
	// StateFilesPending accepts files for the next upload batch.
	StateFilesPending State = "files_pending"
	// StateUploading has an upload batch in flight.
	StateUploading State = "uploading"
	// StateReady accepts questions.
	StateReady State = "ready"
	// StateQuerying has a question in flight; input is disabled meanwhile.
	StateQuerying State = "querying"
	// StateUploadFailed permits a batch retry or a reset. Files that already
	// ingested stay in the remote store.
	StateUploadFailed State = "upload_failed"
	// StateClosed is terminal.
	StateClosed State = "closed"
)

// BackendFactory builds a remote backend for a session-scoped API key.
type BackendFactory func(apiKey string) (remote.Backend, error)

// Recorder persists chat history. All calls are best effort: the session logs
// failures and carries on.
type Recorder interface {
	RecordStore(ctx context.Context, storeID, name string) error
	MarkStoreDeleted(ctx context.Context, storeID string) error
	RecordSession(ctx context.Context, id uuid.UUID, storeID, storeName string) error
	RecordMessage(ctx context.Context, sessionID uuid.UUID, msg Message) error
	CloseSession(ctx context.Context, id uuid.UUID) error
}

// Options configures a session.
type Options struct {
	// APIKey, when set, skips the no-key stage. Session-scoped only; nothing
	// here ever writes it anywhere durable.
	APIKey    string
	StoreName string

	PollInterval          time.Duration
	PollTimeout           time.Duration
	ContinueOnUploadError bool
	SuggestionCount       int

	// Recorder is optional; nil disables persistence.
	Recorder Recorder
	Logger   *log.Logger
}

// Session owns one chat: the current store id, the transcript, pending files,
// and whichever remote operation is in flight. At most one remote operation
// runs at a time; NewChat and Close cancel it promptly.
type Session struct {
	id      uuid.UUID
	factory BackendFactory
	opts    Options
	logger  *log.Logger

	mu          sync.Mutex
	state       State
	backend     remote.Backend
	stores      *remote.StoreClient
	uploader    *remote.Uploader
	queries     *remote.QueryClient
	suggester   *remote.Suggester
	storeID     remote.StoreID
	pending     []files.InputFile
	uploaded    map[string]bool   // file names that already ingested
	fileNames   map[string]string // remote file id -> display name
	transcript  []Message
	suggestions []string
	cancel      context.CancelFunc
	// epoch guards against an interrupted operation finishing into a session
	// that NewChat already reset.
	epoch int
}

// New creates a session. With an API key in opts it starts at files_pending,
// otherwise at no_key until SetKey succeeds.
func New(factory BackendFactory, opts Options) (*Session, error) {
	if factory == nil {
		return nil, fmt.Errorf("backend factory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Session{
		id:        uuid.New(),
		factory:   factory,
		opts:      opts,
		logger:    logger,
		state:     StateNoKey,
		uploaded:  make(map[string]bool),
		fileNames: make(map[string]string),
	}

	if opts.APIKey != "" {
		if err := s.SetKey(opts.APIKey); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns a copy of the append-only message list.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Session) Suggestions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.suggestions...)
}

// PendingFiles lists the names queued for the next upload batch, in order.
func (s *Session) PendingFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.pending))
	for i, f := range s.pending {
		names[i] = f.Name
	}
	return names
}

// SetKey supplies credentials for this session only and moves a no_key
// session to files_pending.
func (s *Session) SetKey(apiKey string) error {
	backend, err := s.factory(apiKey)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return fmt.Errorf("session is closed")
	}

	s.backend = backend
	s.stores = remote.NewStoreClient(backend, s.logger)
	s.uploader = remote.NewUploader(backend, s.logger)
	s.uploader.PollInterval = s.opts.PollInterval
	s.uploader.PollTimeout = s.opts.PollTimeout
	s.uploader.ContinueOnError = s.opts.ContinueOnUploadError
	s.queries = remote.NewQueryClient(backend, s.logger)
	s.suggester = remote.NewSuggester(backend, s.logger)
	s.suggester.Count = s.opts.SuggestionCount

	if s.state == StateNoKey {
		s.state = StateFilesPending
	}
	return nil
}

// AddFiles queues documents for the next batch. A file with a name already
// queued replaces the earlier entry.
func (s *Session) AddFiles(inputs ...files.InputFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFilesPending && s.state != StateUploadFailed {
		return fmt.Errorf("cannot add files while %s", s.state)
	}

	for _, input := range inputs {
		replaced := false
		for i := range s.pending {
			if s.pending[i].Name == input.Name {
				s.pending[i] = input
				replaced = true
				break
			}
		}
		if !replaced {
			s.pending = append(s.pending, input)
		}
	}
	return nil
}

// RemoveFile drops a queued document by name.
func (s *Session) RemoveFile(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateFilesPending && s.state != StateUploadFailed {
		return fmt.Errorf("cannot remove files while %s", s.state)
	}

	for i := range s.pending {
		if s.pending[i].Name == name {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no pending file named %s", name)
}

// ConfirmUpload creates the session's store on first use and uploads the
// pending batch sequentially, reporting progress per file. On a retry after a
// failure, files that already ingested are skipped so nothing double-ingests.
// After a successful batch the session becomes ready and example questions
// are generated best effort.
func (s *Session) ConfirmUpload(ctx context.Context, progress remote.ProgressFunc) error {
	s.mu.Lock()
	if s.state != StateFilesPending && s.state != StateUploadFailed {
		s.mu.Unlock()
		return fmt.Errorf("cannot upload while %s", s.state)
	}
	if s.backend == nil {
		s.mu.Unlock()
		return &remote.CredentialError{Reason: "no API key supplied"}
	}

	batch := make([]remote.UploadFile, 0, len(s.pending))
	for _, f := range s.pending {
		if s.uploaded[f.Name] {
			continue
		}
		batch = append(batch, remote.UploadFile{Name: f.Name, Data: f.Data})
	}
	if len(batch) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no files pending upload")
	}

	prev := s.state
	s.state = StateUploading
	opCtx, cancel, epoch := s.beginOpLocked(ctx)
	uploader, stores := s.uploader, s.stores
	storeID := s.storeID
	storeName := s.opts.StoreName
	s.mu.Unlock()

	defer cancel()

	if storeID == "" {
		created, err := stores.Create(opCtx, storeName)
		if err != nil {
			s.settle(epoch, prev)
			return err
		}
		if !s.adoptStore(epoch, created) {
			// The session was reset while the store was being created; the
			// remote resource is ours to release.
			if delErr := stores.Delete(context.WithoutCancel(opCtx), created); delErr != nil {
				s.logger.Printf("release orphaned store %s: %v", created, delErr)
			}
			return context.Canceled
		}
		storeID = created
		s.record(func(r Recorder) error {
			return r.RecordStore(context.WithoutCancel(opCtx), string(created), storeName)
		})
	}

	result, err := uploader.UploadAll(opCtx, storeID, batch, progress)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return context.Canceled
	}
	for _, up := range result.Uploaded {
		s.uploaded[up.Name] = true
		s.fileNames[up.FileID] = up.Name
	}
	if err != nil {
		s.state = StateUploadFailed
		s.cancel = nil
		s.mu.Unlock()
		return err
	}
	s.pending = nil
	s.state = StateReady
	s.cancel = nil
	suggester := s.suggester
	s.mu.Unlock()

	s.record(func(r Recorder) error {
		return r.RecordSession(context.WithoutCancel(opCtx), s.id, string(storeID), storeName)
	})

	// Suggestions are cosmetic; a reset while they generate only discards them.
	questions := suggester.ExampleQuestions(opCtx, storeID)
	s.mu.Lock()
	if s.epoch == epoch {
		s.suggestions = questions
	}
	s.mu.Unlock()
	return nil
}

// Ask submits one question. The transcript gains the user message and the
// model's answer together on success, and nothing at all on failure.
func (s *Session) Ask(ctx context.Context, question string) (Message, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return Message{}, fmt.Errorf("cannot ask while %s", s.state)
	}
	s.state = StateQuerying
	opCtx, cancel, epoch := s.beginOpLocked(ctx)
	queries := s.queries
	storeID := s.storeID
	s.mu.Unlock()

	defer cancel()

	result, err := queries.Ask(opCtx, []remote.StoreID{storeID}, question)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return Message{}, context.Canceled
	}
	s.state = StateReady
	s.cancel = nil
	if err != nil {
		s.mu.Unlock()
		return Message{}, err
	}

	now := time.Now()
	userMsg := Message{ID: uuid.New(), Role: RoleUser, Content: question, CreatedAt: now}
	modelMsg := Message{
		ID:        uuid.New(),
		Role:      RoleModel,
		Content:   result.Answer,
		Citations: resolveCitations(result.Fragments, s.fileNames),
		CreatedAt: now,
	}
	s.transcript = append(s.transcript, userMsg, modelMsg)
	s.mu.Unlock()

	s.record(func(r Recorder) error {
		if err := r.RecordMessage(context.WithoutCancel(opCtx), s.id, userMsg); err != nil {
			return err
		}
		return r.RecordMessage(context.WithoutCancel(opCtx), s.id, modelMsg)
	})

	return modelMsg, nil
}

// NewChat tears the current chat down: any in-flight operation is canceled,
// the store is deleted before a new one can exist, and the transcript,
// suggestions and file queue are cleared. The session returns to
// files_pending (or no_key when no credentials are set).
func (s *Session) NewChat(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	s.interruptLocked()
	storeID := s.storeID
	stores := s.stores

	s.storeID = ""
	s.pending = nil
	s.uploaded = make(map[string]bool)
	s.fileNames = make(map[string]string)
	s.transcript = nil
	s.suggestions = nil
	if s.backend == nil {
		s.state = StateNoKey
	} else {
		s.state = StateFilesPending
	}
	s.mu.Unlock()

	if storeID != "" {
		// Failure here must not block the reset; the store id is on record
		// for later cleanup.
		if err := stores.Delete(ctx, storeID); err != nil {
			s.logger.Printf("delete store %s on new chat: %v", storeID, err)
		} else {
			s.record(func(r Recorder) error {
				return r.MarkStoreDeleted(context.WithoutCancel(ctx), string(storeID))
			})
		}
	}
	return nil
}

// Close releases the session's remote store and marks the session terminal.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.interruptLocked()
	storeID := s.storeID
	stores := s.stores
	s.storeID = ""
	s.state = StateClosed
	s.mu.Unlock()

	if storeID != "" {
		if err := stores.Delete(ctx, storeID); err != nil {
			s.logger.Printf("delete store %s on close: %v", storeID, err)
		} else {
			s.record(func(r Recorder) error {
				return r.MarkStoreDeleted(context.WithoutCancel(ctx), string(storeID))
			})
		}
	}
	s.record(func(r Recorder) error {
		return r.CloseSession(context.WithoutCancel(ctx), s.id)
	})
	return nil
}

// beginOpLocked registers a cancelable context for the single in-flight
// remote operation. Callers hold s.mu.
func (s *Session) beginOpLocked(ctx context.Context) (context.Context, context.CancelFunc, int) {
	opCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return opCtx, cancel, s.epoch
}

// interruptLocked cancels the in-flight operation, if any, and bumps the
// epoch so its completion handler discards itself.
func (s *Session) interruptLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.epoch++
}

// adoptStore installs a freshly created store unless the session was reset in
// the meantime.
func (s *Session) adoptStore(epoch int, id remote.StoreID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	s.storeID = id
	return true
}

// settle restores a pre-operation state unless the session moved on.
func (s *Session) settle(epoch int, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return
	}
	s.state = state
	s.cancel = nil
}

func (s *Session) record(fn func(Recorder) error) {
	if s.opts.Recorder == nil {
		return
	}
	if err := fn(s.opts.Recorder); err != nil {
		s.logger.Printf("history: %v", err)
	}
}
