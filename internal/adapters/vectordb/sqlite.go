// Package vectordb provides vector index store adapters.
// Clean Architecture: Adapters implementing ports.VectorIndexStore.
// The SQLite store keeps one index file per asset, so an asset's content
// is addressed purely by its ID.
package vectordb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"studyrag/internal/domain/entities"
	"studyrag/internal/domain/ports"
	"studyrag/internal/log"
)

const indexFileName = "index.db"

// SQLiteStore implements ports.VectorIndexStore with one SQLite file per
// asset under dataDir/<assetID>/. Replacement builds a fresh file and
// renames it over the live one, so readers never see mixed content.
//
// Concurrency: many readers per asset, one writer per asset. Writers on
// different assets do not block each other.
type SQLiteStore struct {
	dataDir string
	logger  log.Logger

	mu    sync.Mutex
	locks map[string]*sync.RWMutex // Per-asset reader/writer locks
}

// NewSQLiteStore creates a store rooted at dataDir, creating it if needed.
func NewSQLiteStore(dataDir string, logger log.Logger) (*SQLiteStore, error) {
	if dataDir == "" {
		dataDir = "./db"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &SQLiteStore{
		dataDir: dataDir,
		logger:  logger.With("component", "vectordb"),
		locks:   make(map[string]*sync.RWMutex),
	}, nil
}

// lockFor returns the RWMutex guarding one asset's index file.
func (s *SQLiteStore) lockFor(assetID string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[assetID]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[assetID] = l
	}
	return l
}

func (s *SQLiteStore) assetDir(assetID string) string {
	return filepath.Join(s.dataDir, assetID)
}

func (s *SQLiteStore) indexPath(assetID string) string {
	return filepath.Join(s.assetDir(assetID), indexFileName)
}

// Exists reports whether the asset has a persisted index.
func (s *SQLiteStore) Exists(assetID string) bool {
	l := s.lockFor(assetID)
	l.RLock()
	defer l.RUnlock()
	_, err := os.Stat(s.indexPath(assetID))
	return err == nil
}

// Replace atomically swaps the asset's index for the given chunks.
// The new index is built in a temporary file first; the rename is the
// commit point. The asset's write lock is held for the whole build, so
// concurrent Replace calls for one asset serialize and never share a
// temp file.
func (s *SQLiteStore) Replace(ctx context.Context, assetID string, chunks []entities.Chunk) error {
	if err := os.MkdirAll(s.assetDir(assetID), 0o755); err != nil {
		return fmt.Errorf("creating asset directory: %w", err)
	}

	l := s.lockFor(assetID)
	l.Lock()
	defer l.Unlock()

	tmpPath := s.indexPath(assetID) + ".tmp"
	os.Remove(tmpPath) // Leftover from a crashed previous attempt

	if err := s.writeIndex(ctx, tmpPath, chunks); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.indexPath(assetID)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("swapping index for %s: %w", assetID, err)
	}

	s.logger.Info("index replaced", "asset_id", assetID, "chunks", len(chunks))
	return nil
}

// writeIndex builds a complete index file at path.
func (s *SQLiteStore) writeIndex(ctx context.Context, path string, chunks []entities.Chunk) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("opening index file: %w", err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE chunks (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT NOT NULL,
		page INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		embedding BLOB NOT NULL
	);
	CREATE INDEX idx_chunk_index ON chunks(chunk_index);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, asset_id, content, source, page, chunk_index, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		embeddingJSON, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("encoding embedding: %w", err)
		}
		_, err = stmt.ExecContext(ctx,
			chunk.ID, chunk.AssetID, chunk.Content, chunk.Source, chunk.Page, chunk.Index, embeddingJSON)
		if err != nil {
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}

	return tx.Commit()
}

// Search finds up to k passages whose cosine similarity to the query
// embedding strictly exceeds threshold, ordered by descending score.
// Brute force over the asset's chunks, as the per-asset corpus is small.
func (s *SQLiteStore) Search(ctx context.Context, assetID string, embedding []float32, k int, threshold float64) ([]entities.RetrievedPassage, error) {
	l := s.lockFor(assetID)
	l.RLock()
	defer l.RUnlock()

	chunks, err := s.readChunks(ctx, assetID)
	if err != nil {
		return nil, err
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

// All returns every chunk of the asset's index in insertion order.
func (s *SQLiteStore) All(ctx context.Context, assetID string) ([]entities.Chunk, error) {
	l := s.lockFor(assetID)
	l.RLock()
	defer l.RUnlock()

	return s.readChunks(ctx, assetID)
}

// readChunks loads the full chunk set of one asset. Caller holds the
// asset's read lock.
func (s *SQLiteStore) readChunks(ctx context.Context, assetID string) ([]entities.Chunk, error) {
	path := s.indexPath(assetID)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ports.ErrAssetNotFound, assetID)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening index for %s: %w", assetID, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT id, asset_id, content, source, page, chunk_index, embedding
		FROM chunks ORDER BY chunk_index
	`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks for %s: %w", assetID, err)
	}
	defer rows.Close()

	var chunks []entities.Chunk
	for rows.Next() {
		var chunk entities.Chunk
		var embeddingJSON []byte
		if err := rows.Scan(&chunk.ID, &chunk.AssetID, &chunk.Content, &chunk.Source,
			&chunk.Page, &chunk.Index, &embeddingJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if err := json.Unmarshal(embeddingJSON, &chunk.Embedding); err != nil {
			return nil, fmt.Errorf("decoding embedding for chunk %s: %w", chunk.ID, err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chunks for %s: %w", assetID, err)
	}

	return chunks, nil
}

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
