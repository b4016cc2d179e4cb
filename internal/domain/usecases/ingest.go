package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"studyrag/internal/domain/entities"
	"studyrag/internal/domain/ports"
	"studyrag/internal/log"
)

// assetIDPattern is the set of characters allowed in an asset ID.
// The ID becomes part of a storage path, so anything that could walk the
// filesystem is rejected.
var assetIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateAssetID rejects IDs that are empty, contain path separators,
// or could traverse out of the data directory.
func ValidateAssetID(assetID string) error {
	if assetID == "" || !assetIDPattern.MatchString(assetID) || strings.Contains(assetID, "..") {
		return fmt.Errorf("%w: %q", ports.ErrInvalidAssetID, assetID)
	}
	return nil
}

// IngestUseCase turns a source document into a searchable per-asset index.
// Single Responsibility: Only ingestion logic.
type IngestUseCase struct {
	parser   ports.DocumentParser
	embedder ports.EmbeddingService
	indexes  ports.VectorIndexStore
	splitter *Splitter
	logger   log.Logger
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
func NewIngestUseCase(
	parser ports.DocumentParser,
	embedder ports.EmbeddingService,
	indexes ports.VectorIndexStore,
	splitter *Splitter,
	logger log.Logger,
) *IngestUseCase {
	return &IngestUseCase{
		parser:   parser,
		embedder: embedder,
		indexes:  indexes,
		splitter: splitter,
		logger:   logger.With("component", "ingest"),
	}
}

// Ingest parses, chunks, embeds, and indexes one document under assetID.
// The asset's previous index, if any, is replaced atomically: a concurrent
// reader sees either the old index or the new one, never a mix.
// Returns the number of chunks written.
func (uc *IngestUseCase) Ingest(ctx context.Context, assetID string, data []byte, sourceName string) (int, error) {
	if err := ValidateAssetID(assetID); err != nil {
		return 0, err
	}

	pages, err := uc.parser.Parse(ctx, data, sourceName)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", sourceName, err)
	}

	chunks := uc.chunkPages(assetID, sourceName, pages)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %s yielded no text", ports.ErrEmptyAsset, sourceName)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embeddings, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}

	if err := uc.indexes.Replace(ctx, assetID, chunks); err != nil {
		return 0, fmt.Errorf("writing index for %s: %w", assetID, err)
	}

	uc.logger.Info("ingested document", "asset_id", assetID, "source", sourceName,
		"pages", len(pages), "chunks", len(chunks))
	return len(chunks), nil
}

// IngestFile reads a document from disk and ingests it. The asset ID is
// derived from the file name unless assetID is non-empty.
func (uc *IngestUseCase) IngestFile(ctx context.Context, path, assetID string) (string, int, error) {
	if assetID == "" {
		assetID = AssetIDFromPath(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return assetID, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	count, err := uc.Ingest(ctx, assetID, data, filepath.Base(path))
	return assetID, count, err
}

// ProcessDirectory ingests every supported document in dir.
// Backs POST /api/documents/process and the drop-folder watcher.
func (uc *IngestUseCase) ProcessDirectory(ctx context.Context, dir string) ([]entities.Asset, error) {
	docEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading documents dir %s: %w", dir, err)
	}

	supported := make(map[string]bool)
	for _, f := range uc.parser.SupportedFormats() {
		supported["."+f] = true
	}

	var assets []entities.Asset
	for _, entry := range docEntries {
		if entry.IsDir() || !supported[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		assetID, count, err := uc.IngestFile(ctx, path, "")
		if err != nil {
			uc.logger.Error("ingestion failed", "path", path, "error", err)
			return nil, err
		}
		assets = append(assets, entities.Asset{
			ID:         assetID,
			SourceName: entry.Name(),
			ChunkCount: count,
		})
	}
	return assets, nil
}

// chunkPages splits each page independently so every chunk carries its
// page number; overlap therefore never spans a page break.
func (uc *IngestUseCase) chunkPages(assetID, sourceName string, pages []entities.Page) []entities.Chunk {
	var chunks []entities.Chunk
	index := 0
	for _, page := range pages {
		for _, content := range uc.splitter.Split(page.Text) {
			if strings.TrimSpace(content) == "" {
				continue
			}
			chunks = append(chunks, entities.Chunk{
				ID:      chunkID(assetID, index),
				AssetID: assetID,
				Content: content,
				Source:  sourceName,
				Page:    page.Number,
				Index:   index,
			})
			index++
		}
	}
	return chunks
}

// AssetIDFromPath derives a filesystem-safe asset ID from a file name.
func AssetIDFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	id := strings.Trim(b.String(), ".")
	for strings.Contains(id, "..") {
		id = strings.ReplaceAll(id, "..", ".")
	}
	if id == "" {
		id = "asset"
	}
	return id
}

// chunkID creates a deterministic ID for a chunk, stable across
// re-ingestion of the same asset.
func chunkID(assetID string, index int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", assetID, index)))
	return hex.EncodeToString(hash[:8])
}
