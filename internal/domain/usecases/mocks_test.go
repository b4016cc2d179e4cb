package usecases

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"studyrag/internal/domain/entities"
	"studyrag/internal/domain/ports"
)

// mockEmbedder implements ports.EmbeddingService with a deterministic
// bag-of-words embedding, so texts sharing words score as similar.
type mockEmbedder struct {
	embedFn func(text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(text)
	}
	return wordVector(text), nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		emb, err := m.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		result[i] = emb
	}
	return result, nil
}

// wordVector hashes each word into a small fixed-dimension vector.
func wordVector(text string) []float32 {
	v := make([]float32, 16)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,!?")))
		v[h.Sum32()%16]++
	}
	return v
}

// mockIndexStore implements ports.VectorIndexStore in memory.
type mockIndexStore struct {
	assets    map[string][]entities.Chunk
	replaceFn func(assetID string, chunks []entities.Chunk) error
}

func newMockIndexStore() *mockIndexStore {
	return &mockIndexStore{assets: make(map[string][]entities.Chunk)}
}

func (m *mockIndexStore) Replace(ctx context.Context, assetID string, chunks []entities.Chunk) error {
	if m.replaceFn != nil {
		return m.replaceFn(assetID, chunks)
	}
	m.assets[assetID] = chunks
	return nil
}

func (m *mockIndexStore) Search(ctx context.Context, assetID string, embedding []float32, k int, threshold float64) ([]entities.RetrievedPassage, error) {
	chunks, ok := m.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrAssetNotFound, assetID)
	}
	var passages []entities.RetrievedPassage
	for _, c := range chunks {
		score := cosine(embedding, c.Embedding)
		if score > threshold {
			passages = append(passages, entities.RetrievedPassage{Chunk: c, Score: score})
		}
	}
	sort.SliceStable(passages, func(i, j int) bool { return passages[i].Score > passages[j].Score })
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages, nil
}

func (m *mockIndexStore) All(ctx context.Context, assetID string) ([]entities.Chunk, error) {
	chunks, ok := m.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrAssetNotFound, assetID)
	}
	return chunks, nil
}

func (m *mockIndexStore) Exists(assetID string) bool {
	_, ok := m.assets[assetID]
	return ok
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// mockSessionStore implements ports.SessionStore in memory.
type mockSessionStore struct {
	threads map[string]string
	history map[string][]entities.ChatTurn
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{
		threads: make(map[string]string),
		history: make(map[string][]entities.ChatTurn),
	}
}

func (m *mockSessionStore) CreateThread(ctx context.Context, threadID, assetID string) error {
	m.threads[threadID] = assetID
	return nil
}

func (m *mockSessionStore) AssetForThread(ctx context.Context, threadID string) (string, error) {
	assetID, ok := m.threads[threadID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ports.ErrUnknownThread, threadID)
	}
	return assetID, nil
}

func (m *mockSessionStore) AppendTurn(ctx context.Context, threadID string, turn entities.ChatTurn) error {
	m.history[threadID] = append(m.history[threadID], turn)
	return nil
}

func (m *mockSessionStore) History(ctx context.Context, threadID string) ([]entities.ChatTurn, error) {
	return m.history[threadID], nil
}

// mockLLM implements ports.LLMService, recording prompts.
type mockLLM struct {
	response string
	err      error
	prompts  []string
}

func (m *mockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	if m.response != "" {
		return m.response, nil
	}
	return "mocked answer", nil
}

// mockParser implements ports.DocumentParser, returning fixed pages.
type mockParser struct {
	pages []entities.Page
	err   error
}

func (m *mockParser) Parse(ctx context.Context, data []byte, filename string) ([]entities.Page, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.pages != nil {
		return m.pages, nil
	}
	return []entities.Page{{Number: 1, Text: string(data)}}, nil
}

func (m *mockParser) SupportedFormats() []string {
	return []string{"pdf", "txt"}
}

var errBoom = errors.New("boom")
