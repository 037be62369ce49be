package remote

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const assistantInstructions = "You answer questions about the user's uploaded documents. " +
	"Search the documents when the question depends on their content; answer directly when it does not. " +
	"Keep answers concise and grounded in what you actually retrieved."

// BackendOptions configures the hosted-service client.
type BackendOptions struct {
	APIKey  string
	BaseURL string
	Model   string

	// PollInterval and PollTimeout bound the answer-generation poll that runs
	// inside GenerateWithRetrieval. Zero values pick the package defaults.
	PollInterval time.Duration
	PollTimeout  time.Duration

	Logger *log.Logger
}

// OpenAIBackend implements Backend on the OpenAI platform: vector stores for
// document collections, file ingestion as pollable vector-store files, and
// assistant runs with the file_search tool for retrieval-grounded answers.
type OpenAIBackend struct {
	client       *openai.Client
	model        string
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *log.Logger
}

var _ Backend = (*OpenAIBackend)(nil)

func NewOpenAIBackend(opts BackendOptions) (*OpenAIBackend, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, &CredentialError{Reason: "no API key configured"}
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAIBackend{
		client:       openai.NewClientWithConfig(cfg),
		model:        opts.Model,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
		logger:       logger,
	}, nil
}

func (b *OpenAIBackend) CreateStore(ctx context.Context, displayName string) (StoreID, error) {
	store, err := b.client.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: displayName})
	if err != nil {
		return "", classify("create store", err)
	}
	return StoreID(store.ID), nil
}

func (b *OpenAIBackend) DeleteStore(ctx context.Context, id StoreID) error {
	if _, err := b.client.DeleteVectorStore(ctx, string(id)); err != nil {
		if isNotFound(err) {
			return nil
		}
		return classify("delete store", err)
	}
	return nil
}

func (b *OpenAIBackend) SubmitFile(ctx context.Context, id StoreID, fileName string, data []byte) (OperationHandle, error) {
	file, err := b.client.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    fileName,
		Bytes:   data,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return OperationHandle{}, classify("upload file", err)
	}

	if _, err := b.client.CreateVectorStoreFile(ctx, string(id), openai.VectorStoreFileRequest{FileID: file.ID}); err != nil {
		return OperationHandle{}, classify("attach file to store", err)
	}

	return OperationHandle{StoreID: id, FileID: file.ID}, nil
}

func (b *OpenAIBackend) OperationStatus(ctx context.Context, op OperationHandle) (OperationState, error) {
	file, err := b.client.RetrieveVectorStoreFile(ctx, string(op.StoreID), op.FileID)
	if err != nil {
		return OperationState{}, classify("operation status", err)
	}

	switch file.Status {
	case "completed":
		return OperationState{Done: true}, nil
	case "failed", "cancelled":
		return OperationState{
			Done:   true,
			Failed: true,
			Reason: fmt.Sprintf("ingestion %s", file.Status),
		}, nil
	default:
		return OperationState{}, nil
	}
}

func (b *OpenAIBackend) GenerateWithRetrieval(ctx context.Context, stores []StoreID, prompt string) (Generation, error) {
	ids := make([]string, len(stores))
	for i, id := range stores {
		ids[i] = string(id)
	}

	instructions := assistantInstructions
	name := "docqa-session"
	assistant, err := b.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        b.model,
		Name:         &name,
		Instructions: &instructions,
		Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}},
		ToolResources: &openai.AssistantToolResource{
			FileSearch: &openai.AssistantToolFileSearch{VectorStoreIDs: ids},
		},
	})
	if err != nil {
		return Generation{}, classify("create assistant", err)
	}
	defer func() {
		// Cleanup runs even when ctx is already canceled.
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if _, err := b.client.DeleteAssistant(cleanupCtx, assistant.ID); err != nil {
			b.logger.Printf("delete assistant %s: %v", assistant.ID, err)
		}
	}()

	thread, err := b.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return Generation{}, classify("create thread", err)
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if _, err := b.client.DeleteThread(cleanupCtx, thread.ID); err != nil {
			b.logger.Printf("delete thread %s: %v", thread.ID, err)
		}
	}()

	if _, err := b.client.CreateMessage(ctx, thread.ID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	}); err != nil {
		return Generation{}, classify("create message", err)
	}

	run, err := b.client.CreateRun(ctx, thread.ID, openai.RunRequest{AssistantID: assistant.ID})
	if err != nil {
		return Generation{}, classify("create run", err)
	}

	if err := b.waitForRun(ctx, thread.ID, run.ID); err != nil {
		return Generation{}, err
	}

	return b.collectAnswer(ctx, thread.ID, run.ID)
}

// waitForRun polls the run until it settles. The run is itself an operation
// handle: queued and in_progress keep polling, everything else is terminal.
func (b *OpenAIBackend) waitForRun(ctx context.Context, threadID, runID string) error {
	var runErr error
	err := Poll(ctx, "generate answer", b.pollInterval, b.pollTimeout, func(ctx context.Context) (bool, error) {
		run, err := b.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return false, classify("run status", err)
		}
		switch run.Status {
		case openai.RunStatusCompleted:
			return true, nil
		case openai.RunStatusQueued, openai.RunStatusInProgress:
			return false, nil
		default:
			reason := string(run.Status)
			if run.LastError != nil && run.LastError.Message != "" {
				reason = fmt.Sprintf("%s: %s", run.Status, run.LastError.Message)
			}
			runErr = fmt.Errorf("run ended without an answer: %s", reason)
			return true, nil
		}
	})
	if err != nil {
		return err
	}
	return runErr
}

func (b *OpenAIBackend) collectAnswer(ctx context.Context, threadID, runID string) (Generation, error) {
	limit := 1
	order := "desc"
	msgs, err := b.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return Generation{}, classify("list messages", err)
	}

	for _, msg := range msgs.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		var gen Generation
		var text strings.Builder
		for _, part := range msg.Content {
			if part.Text == nil {
				continue
			}
			text.WriteString(part.Text.Value)
			gen.Fragments = append(gen.Fragments, parseAnnotations(part.Text.Annotations)...)
		}
		gen.Text = strings.TrimSpace(text.String())
		return gen, nil
	}

	return Generation{}, fmt.Errorf("run produced no assistant message")
}
