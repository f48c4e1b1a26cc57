package core

import (
	"errors"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
)

// Pipeline error kinds. Callers classify with errors.Is.
var (
	ErrAcquisition            = goerr.New("document acquisition failed")
	ErrConversion             = goerr.New("document conversion failed")
	ErrEmbeddingCountMismatch = goerr.New("embedding count does not match chunk count")
	ErrEmbeddingDimension     = goerr.New("embedding dimension mismatch")
	ErrPersistence            = goerr.New("persistence failed")
	ErrExtractionFormat       = goerr.New("extraction output is not a valid object")
	ErrGraphPopulation        = goerr.New("graph population failed")
	ErrNotFound               = goerr.New("not found")
)

// Stage names used in logs, spans and error values.
const (
	StageDownload        = "download"
	StageConvert         = "convert"
	StagePersistDocument = "persist_document"
	StageChunk           = "chunk"
	StageEmbed           = "embed"
	StagePersistChunks   = "persist_chunks"
	StageExtract         = "extract"
	StagePopulateGraph   = "populate_graph"
	StagePersistExtract  = "persist_extraction"
	StageUpload          = "upload"
)

// StageError tags cause with kind so that errors.Is matches both, and attaches
// the document id and stage name as goerr values. A cause already carrying
// kind is not tagged twice.
func StageError(kind, cause error, documentID, stage string) error {
	var joined error
	switch {
	case cause == nil:
		joined = kind
	case errors.Is(cause, kind):
		joined = cause
	default:
		joined = fmt.Errorf("%w: %w", kind, cause)
	}
	return goerr.Wrap(joined, stage+" failed",
		goerr.V("document_id", documentID),
		goerr.V("stage", stage),
	)
}
