package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/internal/adapters/parser"
	"studyrag/internal/adapters/vectordb"
	"studyrag/internal/domain/entities"
	"studyrag/internal/domain/ports"
	"studyrag/internal/domain/usecases"
	"studyrag/internal/log"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (s stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = s.Embed(ctx, texts[i])
	}
	return out, nil
}

type stubLLM struct {
	mu       sync.Mutex
	response string
	prompts  []string
}

func (s *stubLLM) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	return s.response, nil
}

type stubSessions struct {
	mu      sync.Mutex
	assets  map[string]string
	history map[string][]entities.ChatTurn
}

func newStubSessions() *stubSessions {
	return &stubSessions{assets: map[string]string{}, history: map[string][]entities.ChatTurn{}}
}

func (s *stubSessions) CreateThread(ctx context.Context, threadID, assetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[threadID] = assetID
	return nil
}

func (s *stubSessions) AssetForThread(ctx context.Context, threadID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	assetID, ok := s.assets[threadID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ports.ErrUnknownThread, threadID)
	}
	return assetID, nil
}

func (s *stubSessions) AppendTurn(ctx context.Context, threadID string, turn entities.ChatTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[threadID] = append(s.history[threadID], turn)
	return nil
}

func (s *stubSessions) History(ctx context.Context, threadID string) ([]entities.ChatTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.ChatTurn(nil), s.history[threadID]...), nil
}

type testEnv struct {
	handler      http.Handler
	llm          *stubLLM
	indexes      *vectordb.InMemoryStore
	documentsDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	indexes := vectordb.NewInMemoryStore()
	llm := &stubLLM{response: "the sky is blue"}
	logger := log.NewNop()

	docsDir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(docsDir, "sample.txt"),
		[]byte("The sky is blue because of Rayleigh scattering."), 0o644))

	ingest := usecases.NewIngestUseCase(
		parser.NewMultiParser(parser.NewPDFParser(), parser.NewTextParser()),
		stubEmbedder{}, indexes, usecases.NewSplitter(1024, 80), logger)
	chat := usecases.NewChatUseCase(newStubSessions(), indexes, stubEmbedder{}, llm, 20, 0.1, logger)
	generate := usecases.NewGenerateUseCase(indexes, llm, 24000, logger)

	server := NewServer(ingest, chat, generate, docsDir, ":0", logger)
	return &testEnv{handler: server.Handler(), llm: llm, indexes: indexes, documentsDir: docsDir}
}

func (e *testEnv) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/api/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestChatFlow(t *testing.T) {
	env := newTestEnv(t)

	// Ingest the drop folder.
	rec := env.post(t, "/api/documents/process", map[string]string{})
	require.Equal(t, http.StatusOK, rec.Code)
	processed := decodeBody[struct {
		Status string `json:"status"`
		Assets []struct {
			AssetID string `json:"asset_id"`
			Chunks  int    `json:"chunks"`
		} `json:"assets"`
	}](t, rec)
	require.Len(t, processed.Assets, 1)
	assert.Equal(t, "sample", processed.Assets[0].AssetID)
	assert.Greater(t, processed.Assets[0].Chunks, 0)

	// Start a thread bound to the ingested asset.
	rec = env.post(t, "/api/chat/start", map[string]string{"asset_id": "sample"})
	require.Equal(t, http.StatusOK, rec.Code)
	started := decodeBody[map[string]string](t, rec)
	threadID := started["chat_thread_id"]
	require.NotEmpty(t, threadID)

	// Ask a question.
	rec = env.post(t, "/api/chat/message", map[string]string{
		"chat_thread_id": threadID,
		"query":          "why is the sky blue?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	answered := decodeBody[struct {
		Answer  string `json:"answer"`
		Sources []struct {
			Source      string `json:"source"`
			PageContent string `json:"page_content"`
		} `json:"sources"`
	}](t, rec)
	assert.Equal(t, "the sky is blue", answered.Answer)
	require.NotEmpty(t, answered.Sources)
	assert.Equal(t, "sample.txt", answered.Sources[0].Source)
	assert.Contains(t, answered.Sources[0].PageContent, "Rayleigh")

	// The turn shows up in history.
	rec = env.get(t, "/api/chat/history?chat_thread_id="+threadID)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]struct {
		UserMessage string `json:"user_message"`
		BotResponse string `json:"bot_response"`
	}](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "why is the sky blue?", history[0].UserMessage)
	assert.Equal(t, "the sky is blue", history[0].BotResponse)
}

func TestChatStart_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.post(t, "/api/chat/start", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.post(t, "/api/chat/start", map[string]string{"asset_id": "no-such-asset"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.post(t, "/api/chat/start", map[string]string{"asset_id": "../etc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get(t, "/api/chat/start")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChatMessage_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.post(t, "/api/chat/message", map[string]string{"query": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.post(t, "/api/chat/message", map[string]string{
		"chat_thread_id": "nope", "query": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.NotEmpty(t, body["error"])
}

func TestChatHistory_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.get(t, "/api/chat/history")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.get(t, "/api/chat/history?chat_thread_id=nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "no history found for this chat thread", body["error"])
}

func TestGenerateQuestions(t *testing.T) {
	env := newTestEnv(t)
	env.llm.response = "1. What causes Rayleigh scattering?\n2. Why does the sky look blue?"

	require.Equal(t, http.StatusOK, env.post(t, "/api/documents/process", map[string]string{}).Code)

	rec := env.post(t, "/api/documents/generate_questions", map[string]string{"asset_id": "sample"})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Questions []string `json:"questions"`
	}](t, rec)
	assert.Equal(t, []string{
		"What causes Rayleigh scattering?",
		"Why does the sky look blue?",
	}, body.Questions)
}

func TestGenerateQuestions_UnknownAsset(t *testing.T) {
	env := newTestEnv(t)

	rec := env.post(t, "/api/documents/generate_questions", map[string]string{"asset_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.post(t, "/api/documents/generate_questions", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTextGenerationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.llm.response = "Q1) Which wavelength scatters most?"

	for _, path := range []string{"/api/questions/mcq", "/api/questions/fill_in_the_blank"} {
		rec := env.post(t, path, map[string]string{"text": "Rayleigh scattering favors short wavelengths."})
		require.Equal(t, http.StatusOK, rec.Code, path)
		body := decodeBody[map[string]string](t, rec)
		assert.Equal(t, "Q1) Which wavelength scatters most?", body["questions"], path)

		rec = env.post(t, path, map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestCORSHeaders(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rec.Code)
}
