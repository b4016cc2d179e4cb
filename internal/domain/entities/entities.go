// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import "time"

// Asset identifies one ingested document and owns its vector index.
// Created by ingestion; re-ingestion replaces the index wholesale.
type Asset struct {
	ID         string
	SourceName string
	ChunkCount int
	IngestedAt time.Time
}

// Chunk is a bounded span of document text - the unit of embedding and retrieval.
// Clean Architecture: Entity knows nothing about how it's stored or embedded.
type Chunk struct {
	ID        string
	AssetID   string
	Content   string
	Source    string    // Source document name, for citation
	Page      int       // 1-based page in the source document
	Index     int       // Position in the asset's chunk sequence
	Embedding []float32 // Vector representation (populated by adapter)
}

// RetrievedPassage is a chunk plus its similarity score.
// Transient: produced per query, never persisted.
type RetrievedPassage struct {
	Chunk Chunk
	Score float64
}

// ChatTurn is one (user message, model response) pair in a thread.
// Ordering is insertion order; used to rebuild conversational context.
type ChatTurn struct {
	UserMessage string
	BotResponse string
}

// Answer is the model's response plus the passages it was grounded on.
type Answer struct {
	Text    string
	Sources []RetrievedPassage
}

// QuestionSet is the output of question generation over an asset.
type QuestionSet struct {
	AssetID   string
	Summary   string
	Questions []string
}

// Page is one page of extracted document text, as produced by a parser.
type Page struct {
	Number int
	Text   string
}
