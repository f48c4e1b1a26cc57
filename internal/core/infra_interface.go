package core

import (
	"context"
	"io"

	"github.com/markdave123-py/Docketgraph/internal/models"
)

// DbClient defines all persistence operations the pipeline needs.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateRawDocument(ctx context.Context, doc *models.RawDocument) error
	GetRawDocument(ctx context.Context, id string) (*models.RawDocument, error)

	// ReplaceDocumentChunks supersedes the document's chunk set in one
	// transaction. Chunks must be indexed 0..N-1 in order.
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	CountChunks(ctx context.Context, documentID string) (int, error)

	CreateExtraction(ctx context.Context, e *models.Extraction) error
	GetExtraction(ctx context.Context, id string) (*models.Extraction, error)
	ListExtractions(ctx context.Context, userID string, limit int) ([]models.Extraction, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DownloadToFile(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error)
	DeleteFile(ctx context.Context, bucket, key string) error
}

// SourceFile is a downloaded document's descriptive fields.
type SourceFile struct {
	FileName    string
	ContentType string
	SourceURL   string
	Size        int64
}

// DocumentSource fetches a document's bytes by file id from an external
// asset store, writing them to w.
type DocumentSource interface {
	Download(ctx context.Context, fileID string, w io.WriterAt) (*SourceFile, error)
}
