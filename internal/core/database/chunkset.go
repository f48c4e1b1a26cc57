package db

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/models"
)

// ErrInvalidChunkSet is returned before any write when a chunk set breaks
// ordering, ownership or dimensionality rules.
var ErrInvalidChunkSet = goerr.New("invalid chunk set")

// ValidateChunkSet checks that chunks belong to documentID, are indexed
// 0..N-1 in order and all carry an embedding of length dim.
func ValidateChunkSet(documentID string, chunks []models.DocumentChunk, dim int) error {
	for i, ch := range chunks {
		if ch.DocumentID != documentID {
			return goerr.Wrap(ErrInvalidChunkSet, "chunk belongs to another document",
				goerr.V("index", i), goerr.V("document_id", documentID), goerr.V("chunk_document_id", ch.DocumentID))
		}
		if ch.ChunkIndex != i {
			return goerr.Wrap(ErrInvalidChunkSet, "chunk indices must be contiguous from zero",
				goerr.V("position", i), goerr.V("chunk_index", ch.ChunkIndex))
		}
		if dim > 0 && len(ch.Embedding) != dim {
			return goerr.Wrap(ErrInvalidChunkSet, "embedding has wrong dimension",
				goerr.V("chunk_index", i), goerr.V("got", len(ch.Embedding)), goerr.V("want", dim))
		}
	}
	return nil
}
