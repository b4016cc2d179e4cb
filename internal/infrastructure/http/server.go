// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle. Handlers
// translate JSON requests into usecase calls and sentinel errors into
// status codes; no business logic lives here.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"studyrag/internal/domain/ports"
	"studyrag/internal/domain/usecases"
	"studyrag/internal/log"
)

// Server is the HTTP server for the studyrag API.
type Server struct {
	ingest       *usecases.IngestUseCase
	chat         *usecases.ChatUseCase
	generate     *usecases.GenerateUseCase
	documentsDir string
	addr         string
	logger       log.Logger
}

// NewServer creates a new HTTP server.
func NewServer(
	ingest *usecases.IngestUseCase,
	chat *usecases.ChatUseCase,
	generate *usecases.GenerateUseCase,
	documentsDir string,
	addr string,
	logger log.Logger,
) *Server {
	return &Server{
		ingest:       ingest,
		chat:         chat,
		generate:     generate,
		documentsDir: documentsDir,
		addr:         addr,
		logger:       logger.With("component", "http"),
	}
}

// Handler builds the route table. Exposed separately so tests can drive
// the full stack through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/documents/process", s.handleProcessDocuments)
	mux.HandleFunc("/api/documents/generate_questions", s.handleGenerateQuestions)
	mux.HandleFunc("/api/chat/start", s.handleChatStart)
	mux.HandleFunc("/api/chat/message", s.handleChatMessage)
	mux.HandleFunc("/api/chat/history", s.handleChatHistory)
	mux.HandleFunc("/api/questions/mcq", s.handleMCQ)
	mux.HandleFunc("/api/questions/fill_in_the_blank", s.handleFillInTheBlank)
	mux.HandleFunc("/api/health", s.handleHealth)

	return corsMiddleware(loggingMiddleware(s.logger, mux))
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 300 * time.Second, // Model invocations are slow
	}

	s.logger.Info("server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// handleProcessDocuments ingests every document in the configured
// documents directory.
func (s *Server) handleProcessDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	assets, err := s.ingest.ProcessDirectory(r.Context(), s.documentsDir)
	if err != nil {
		s.writeUsecaseError(w, "document processing failed", err)
		return
	}

	type assetResult struct {
		AssetID string `json:"asset_id"`
		Chunks  int    `json:"chunks"`
	}
	results := make([]assetResult, 0, len(assets))
	for _, a := range assets {
		results = append(results, assetResult{AssetID: a.ID, Chunks: a.ChunkCount})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"assets": results,
	})
}

// handleChatStart creates a thread bound to an asset.
func (s *Server) handleChatStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req struct {
		AssetID string `json:"asset_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AssetID == "" {
		writeError(w, http.StatusBadRequest, "asset_id is required", "")
		return
	}

	threadID, err := s.chat.Start(r.Context(), req.AssetID)
	if err != nil {
		s.writeUsecaseError(w, "could not start chat", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"chat_thread_id": threadID})
}

// handleChatMessage answers one query within a thread.
func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req struct {
		ChatThreadID string `json:"chat_thread_id"`
		Query        string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.ChatThreadID == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "chat_thread_id and query are required", "")
		return
	}

	answer, err := s.chat.Send(r.Context(), req.ChatThreadID, req.Query)
	if err != nil {
		s.writeUsecaseError(w, "could not answer message", err)
		return
	}

	type sourceJSON struct {
		Source      string `json:"source"`
		PageContent string `json:"page_content"`
	}
	sources := make([]sourceJSON, 0, len(answer.Sources))
	for _, p := range answer.Sources {
		sources = append(sources, sourceJSON{Source: p.Chunk.Source, PageContent: p.Chunk.Content})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":  answer.Text,
		"sources": sources,
	})
}

// handleChatHistory returns a thread's turns in submission order.
func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	threadID := r.URL.Query().Get("chat_thread_id")
	if threadID == "" {
		writeError(w, http.StatusBadRequest, "chat_thread_id is required", "")
		return
	}

	history, err := s.chat.History(r.Context(), threadID)
	if err != nil {
		if errors.Is(err, ports.ErrUnknownThread) {
			writeError(w, http.StatusNotFound, "no history found for this chat thread", "")
			return
		}
		s.writeUsecaseError(w, "could not load history", err)
		return
	}

	type turnJSON struct {
		UserMessage string `json:"user_message"`
		BotResponse string `json:"bot_response"`
	}
	turns := make([]turnJSON, 0, len(history))
	for _, t := range history {
		turns = append(turns, turnJSON{UserMessage: t.UserMessage, BotResponse: t.BotResponse})
	}
	writeJSON(w, http.StatusOK, turns)
}

// handleGenerateQuestions derives comprehension questions from an asset.
func (s *Server) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req struct {
		AssetID string `json:"asset_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AssetID == "" {
		writeError(w, http.StatusBadRequest, "asset_id is required", "")
		return
	}

	set, err := s.generate.GenerateQuestions(r.Context(), req.AssetID)
	if err != nil {
		s.writeUsecaseError(w, "question generation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"questions": set.Questions})
}

// handleMCQ generates multiple-choice questions from raw text.
func (s *Server) handleMCQ(w http.ResponseWriter, r *http.Request) {
	s.handleTextGeneration(w, r, s.generate.GenerateMCQ)
}

// handleFillInTheBlank generates fill-in-the-blank items from raw text.
func (s *Server) handleFillInTheBlank(w http.ResponseWriter, r *http.Request) {
	s.handleTextGeneration(w, r, s.generate.GenerateFillInTheBlank)
}

func (s *Server) handleTextGeneration(w http.ResponseWriter, r *http.Request, gen func(context.Context, string) (string, error)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required", "")
		return
	}

	out, err := gen(r.Context(), req.Text)
	if err != nil {
		s.writeUsecaseError(w, "generation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"questions": out})
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeUsecaseError maps sentinel errors to status codes and renders the
// structured error body. Unclassified errors are 500s.
func (s *Server) writeUsecaseError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ports.ErrUnknownThread),
		errors.Is(err, ports.ErrInvalidAssetID),
		errors.Is(err, ports.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ports.ErrAssetNotFound),
		errors.Is(err, ports.ErrEmptyAsset):
		status = http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		s.logger.Error(msg, "error", err)
	}
	writeError(w, status, msg, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	body := map[string]string{"error": msg}
	if details != "" {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

func loggingMiddleware(logger log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			return
		}
		next.ServeHTTP(w, r)
	})
}
