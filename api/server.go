// Package api exposes the chat workflow over HTTP and serves the browser UI.
// It consumes only the session orchestrator's state and the data model it
// publishes; everything else stays behind the session boundary.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmarchi/docqa/config"
	"github.com/dmarchi/docqa/files"
	"github.com/dmarchi/docqa/remote"
	"github.com/dmarchi/docqa/session"
)

const maxUploadMemory = 32 << 20

// Server exposes HTTP handlers for the document question-answering workflow.
type Server struct {
	cfg      config.Config
	factory  session.BackendFactory
	recorder session.Recorder
	logger   *log.Logger
	handler  http.Handler

	mu       sync.Mutex
	sessions map[uuid.UUID]*session.Session
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type createSessionRequest struct {
	// APIKey is held for the session only, never stored.
	APIKey string `json:"apiKey"`
}

type keyRequest struct {
	APIKey string `json:"apiKey"`
}

type chatRequest struct {
	Question string `json:"question"`
}

type sessionView struct {
	ID           string        `json:"id"`
	State        string        `json:"state"`
	PendingFiles []string      `json:"pendingFiles"`
	Suggestions  []string      `json:"suggestions"`
	Transcript   []messageView `json:"transcript"`
}

type messageView struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Citations []citationView `json:"citations"`
	CreatedAt time.Time      `json:"createdAt"`
}

type citationView struct {
	FileName  string `json:"fileName"`
	Quote     string `json:"quote,omitempty"`
	Marker    string `json:"marker,omitempty"`
	Clickable bool   `json:"clickable"`
}

type uploadResponse struct {
	State    string         `json:"state"`
	Progress []progressView `json:"progress"`
}

type progressView struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	FileName string `json:"fileName"`
}

// New constructs a Server. The factory builds one remote backend per
// session-scoped API key; the recorder may be nil.
func New(cfg config.Config, factory session.BackendFactory, recorder session.Recorder, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:      cfg,
		factory:  factory,
		recorder: recorder,
		logger:   logger,
		sessions: make(map[uuid.UUID]*session.Session),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/key", s.handleSetKey)
	mux.HandleFunc("POST /v1/sessions/{id}/files", s.handleAddFiles)
	mux.HandleFunc("DELETE /v1/sessions/{id}/files/{name}", s.handleRemoveFile)
	mux.HandleFunc("POST /v1/sessions/{id}/samples", s.handleSamples)
	mux.HandleFunc("POST /v1/sessions/{id}/upload", s.handleUpload)
	mux.HandleFunc("POST /v1/sessions/{id}/chat", s.handleChat)
	mux.HandleFunc("GET /v1/sessions/{id}/suggestions", s.handleSuggestions)
	mux.HandleFunc("POST /v1/sessions/{id}/reset", s.handleReset)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = s.cfg.OpenAIAPIKey
	}

	sess, err := session.New(s.factory, session.Options{
		APIKey:                apiKey,
		StoreName:             "docqa web session",
		PollInterval:          s.cfg.PollInterval,
		PollTimeout:           s.cfg.PollTimeout,
		ContinueOnUploadError: s.cfg.ContinueOnUploadError,
		Recorder:              s.recorder,
		Logger:                s.logger,
	})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	s.writeJSON(w, http.StatusCreated, viewOf(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if err := sess.Close(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, messageResponse{Message: "session closed"})
}

func (s *Server) handleSetKey(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req keyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("apiKey is required"))
		return
	}

	if err := sess.SetKey(strings.TrimSpace(req.APIKey)); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleAddFiles(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}

	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("no files in request"))
		return
	}

	inputs := make([]files.InputFile, 0, len(parts))
	for _, part := range parts {
		f, err := part.Open()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("open uploaded file: %w", err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("read uploaded file: %w", err))
			return
		}

		input, err := files.New(part.Filename, data)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		inputs = append(inputs, input)
	}

	if err := sess.AddFiles(inputs...); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if err := sess.RemoveFile(r.PathValue("name")); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	samples, err := files.FetchSamples(r.Context(), s.cfg.SampleDocURLs)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	if err := sess.AddFiles(samples...); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	// The upload runs synchronously; progress callbacks are collected for the
	// response and logged as they happen.
	var progress []progressView
	err := sess.ConfirmUpload(r.Context(), func(current, total int, fileName string) {
		s.logger.Printf("uploading %d/%d: %s", current, total, fileName)
		progress = append(progress, progressView{Current: current, Total: total, FileName: fileName})
	})
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{State: string(sess.State()), Progress: progress})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("question is required"))
		return
	}

	msg, err := sess.Ask(r.Context(), req.Question)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOfMessage(msg))
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"suggestions": sess.Suggestions()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if err := sess.NewChat(r.Context()); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, viewOf(sess))
}

// CloseAll tears down every live session, releasing their remote stores.
func (s *Server) CloseAll(ctx context.Context) {
	s.mu.Lock()
	live := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		live = append(live, sess)
	}
	s.sessions = make(map[uuid.UUID]*session.Session)
	s.mu.Unlock()

	for _, sess := range live {
		if err := sess.Close(ctx); err != nil {
			s.logger.Printf("close session %s: %v", sess.ID(), err)
		}
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid session id"))
		return nil, false
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no session %s", id))
		return nil, false
	}
	return sess, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Printf("api error (%d): %v", status, err)
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}

	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}

	return nil
}

// statusFor maps the error taxonomy onto HTTP statuses: credential problems
// are the client's to fix, remote failures are upstream, everything else is a
// request conflict with the session's current state.
func statusFor(err error) int {
	var credErr *remote.CredentialError
	if errors.As(err, &credErr) {
		return http.StatusUnauthorized
	}
	var timeoutErr *remote.TimeoutError
	if errors.As(err, &timeoutErr) {
		return http.StatusGatewayTimeout
	}
	var svcErr *remote.RemoteServiceError
	var upErr *remote.UploadError
	var qErr *remote.QueryError
	if errors.As(err, &svcErr) || errors.As(err, &upErr) || errors.As(err, &qErr) {
		return http.StatusBadGateway
	}
	return http.StatusConflict
}

func viewOf(sess *session.Session) sessionView {
	transcript := sess.Transcript()
	views := make([]messageView, len(transcript))
	for i, msg := range transcript {
		views[i] = viewOfMessage(msg)
	}

	return sessionView{
		ID:           sess.ID().String(),
		State:        string(sess.State()),
		PendingFiles: sess.PendingFiles(),
		Suggestions:  sess.Suggestions(),
		Transcript:   views,
	}
}

func viewOfMessage(msg session.Message) messageView {
	citations := make([]citationView, len(msg.Citations))
	for i, c := range msg.Citations {
		citations[i] = citationView{
			FileName:  c.FileName,
			Quote:     c.Quote,
			Marker:    c.Marker,
			Clickable: c.Clickable(),
		}
	}
	return messageView{
		ID:        msg.ID.String(),
		Role:      string(msg.Role),
		Content:   msg.Content,
		Citations: citations,
		CreatedAt: msg.CreatedAt,
	}
}
