package ports

import "errors"

// Sentinel errors shared across ports. Adapters return these so that
// usecases and the transport layer can classify failures with errors.Is().
var (
	// ErrAssetNotFound indicates the asset has no persisted vector index.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrUnknownThread indicates the chat thread ID is not registered.
	ErrUnknownThread = errors.New("unknown chat thread")

	// ErrEmptyAsset indicates the asset's index contains no chunks.
	ErrEmptyAsset = errors.New("asset has no indexed documents")

	// ErrInvalidAssetID indicates the asset ID fails validation
	// (empty, or contains path-traversal characters).
	ErrInvalidAssetID = errors.New("invalid asset id")

	// ErrValidation indicates a required request field is missing or empty.
	ErrValidation = errors.New("validation failed")
)
