// Package ports defines interfaces for external dependencies.
// Clean Architecture: These are the boundaries - usecases depend on these abstractions,
// not concrete implementations. Adapters implement these interfaces.
package ports

import (
	"context"

	"studyrag/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
// Interface Segregation: Only embedding responsibility, nothing else.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMService generates text from a language model.
// Single capability on purpose: different backing models substitute freely.
type LLMService interface {
	// Generate produces a completion for the given prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

// VectorIndexStore persists and queries per-asset embedding collections.
// Each asset owns exactly one index; replacement is atomic.
type VectorIndexStore interface {
	// Replace atomically swaps the asset's index for the given chunks.
	// A reader never observes a mix of old and new content.
	Replace(ctx context.Context, assetID string, chunks []entities.Chunk) error

	// Search returns up to k passages whose similarity to the query embedding
	// strictly exceeds threshold, ordered by descending score.
	// Fails with ErrAssetNotFound when the asset has no index.
	Search(ctx context.Context, assetID string, embedding []float32, k int, threshold float64) ([]entities.RetrievedPassage, error)

	// All returns every chunk of the asset's index in insertion order.
	// Fails with ErrAssetNotFound when the asset has no index.
	All(ctx context.Context, assetID string) ([]entities.Chunk, error)

	// Exists reports whether the asset has a persisted index.
	Exists(assetID string) bool
}

// SessionStore maps chat threads to assets and keeps their turn history.
// Relational storage; an external collaborator from the engine's point of view.
type SessionStore interface {
	// CreateThread binds a new thread ID to an asset. The binding is immutable.
	CreateThread(ctx context.Context, threadID, assetID string) error

	// AssetForThread resolves a thread to its bound asset.
	// Fails with ErrUnknownThread when the thread does not exist.
	AssetForThread(ctx context.Context, threadID string) (string, error)

	// AppendTurn records one (user message, bot response) pair.
	AppendTurn(ctx context.Context, threadID string, turn entities.ChatTurn) error

	// History returns the thread's turns in submission order.
	History(ctx context.Context, threadID string) ([]entities.ChatTurn, error)
}

// DocumentParser extracts text from binary document formats.
type DocumentParser interface {
	// Parse extracts per-page text content from document bytes.
	Parse(ctx context.Context, data []byte, filename string) ([]entities.Page, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf").
	SupportedFormats() []string
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
