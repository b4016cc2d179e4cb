package vectordb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"studyrag/internal/domain/entities"
	"studyrag/internal/domain/ports"
)

// InMemoryStore implements ports.VectorIndexStore without persistence.
// Open-Closed: usecases and their tests run against it unchanged.
type InMemoryStore struct {
	mu     sync.RWMutex
	assets map[string][]entities.Chunk
}

// NewInMemoryStore creates a new in-memory vector index store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		assets: make(map[string][]entities.Chunk),
	}
}

// Replace swaps the asset's chunk set.
func (s *InMemoryStore) Replace(ctx context.Context, assetID string, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]entities.Chunk, len(chunks))
	copy(copied, chunks)
	s.assets[assetID] = copied
	return nil
}

// Search scores the asset's chunks against the query embedding.
func (s *InMemoryStore) Search(ctx context.Context, assetID string, embedding []float32, k int, threshold float64) ([]entities.RetrievedPassage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, ok := s.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrAssetNotFound, assetID)
	}

	var passages []entities.RetrievedPassage
	for _, chunk := range chunks {
		score := cosineSimilarity(embedding, chunk.Embedding)
		if score > threshold {
			passages = append(passages, entities.RetrievedPassage{Chunk: chunk, Score: score})
		}
	}

	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages, nil
}

// All returns the asset's chunks in insertion order.
func (s *InMemoryStore) All(ctx context.Context, assetID string) ([]entities.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks, ok := s.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrAssetNotFound, assetID)
	}
	out := make([]entities.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

// Exists reports whether the asset has an index.
func (s *InMemoryStore) Exists(assetID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.assets[assetID]
	return ok
}
