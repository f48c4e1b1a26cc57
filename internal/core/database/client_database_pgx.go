package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/Docketgraph/internal/config"
	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

type DatabaseClient struct {
	db  *sql.DB
	dim int
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, goerr.New("database client configuration is nil")
	}
	if cfg.Database.URL == "" {
		return nil, goerr.New("DATABASE_URL is empty")
	}

	dsn, err := withSSL(cfg.Database.URL, cfg.Database.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "open db")
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "ping db")
	}

	if err := EnsureBootstrapped(ctx, db, cfg.Embedding.Dim); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "bootstrap")
	}

	return &DatabaseClient{db: db, dim: cfg.Embedding.Dim}, nil
}

// withSSL pins the server CA when a certificate path is configured.
func withSSL(dsn, certPath string) (string, error) {
	if certPath == "" {
		return dsn, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", goerr.Wrap(err, "ssl cert not accessible", goerr.V("path", certPath))
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", goerr.Wrap(err, "invalid DATABASE_URL")
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// withTx runs fn in a transaction that is committed when fn succeeds and
// rolled back otherwise.
func (c *DatabaseClient) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "begin tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return goerr.Wrap(err, "commit tx")
	}
	return nil
}

func persistErr(err error, msg string, opts ...goerr.Option) error {
	return goerr.Wrap(fmt.Errorf("%w: %w", core.ErrPersistence, err), msg, opts...)
}

func notFound(what, id string) error {
	return goerr.Wrap(core.ErrNotFound, what+" not found", goerr.V("id", id))
}

// Raw documents

func (c *DatabaseClient) CreateRawDocument(ctx context.Context, doc *models.RawDocument) error {
	if doc == nil {
		return goerr.New("nil raw document")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	var layout any
	if len(doc.LayoutJSON) > 0 {
		layout = string(doc.LayoutJSON)
	}

	const q = `
		INSERT INTO raw_documents
			(id, file_name, source_url, doc_type, backend, page_count, layout_json, markdown, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7::jsonb, $8, $9)
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.FileName, doc.SourceURL, doc.DocType, doc.Backend, doc.PageCount, layout, doc.Markdown, doc.CreatedAt)
	if err != nil {
		return persistErr(err, "insert raw document", goerr.V("document_id", doc.ID))
	}
	return nil
}

func (c *DatabaseClient) GetRawDocument(ctx context.Context, id string) (*models.RawDocument, error) {
	const q = `
		SELECT id, file_name, COALESCE(source_url, ''), doc_type, backend, page_count, layout_json, markdown, created_at
		FROM raw_documents
		WHERE id = $1
	`
	var (
		d      models.RawDocument
		layout []byte
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.FileName, &d.SourceURL, &d.DocType, &d.Backend, &d.PageCount, &layout, &d.Markdown, &d.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("raw document", id)
	}
	if err != nil {
		return nil, persistErr(err, "get raw document", goerr.V("document_id", id))
	}
	if len(layout) > 0 {
		d.LayoutJSON = json.RawMessage(layout)
	}
	return &d, nil
}

// Chunks

// ReplaceDocumentChunks deletes the document's previous chunk set and
// inserts the new one in chunk_index order, all in one transaction.
func (c *DatabaseClient) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	if err := ValidateChunkSet(documentID, chunks, c.dim); err != nil {
		return persistErr(err, "reject chunk set", goerr.V("document_id", documentID))
	}

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID); err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}

		const q = `
			INSERT INTO document_chunks
				(id, document_id, chunk_index, text_content, metadata, embedding, token_count, created_at)
			VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)
		`
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now().UTC()
		for i := range chunks {
			ch := &chunks[i]
			if ch.ID == "" {
				ch.ID = uuid.NewString()
			}
			if ch.CreatedAt.IsZero() {
				ch.CreatedAt = now
			}
			meta, err := encodeMetadata(ch.Metadata)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx,
				ch.ID, ch.DocumentID, ch.ChunkIndex, ch.Text, meta, pgvector.NewVector(ch.Embedding), ch.TokenCount, ch.CreatedAt,
			); err != nil {
				return goerr.Wrap(err, "insert chunk", goerr.V("chunk_index", ch.ChunkIndex))
			}
		}
		return nil
	})
	if err != nil {
		return persistErr(err, "replace document chunks",
			goerr.V("document_id", documentID), goerr.V("chunks", len(chunks)))
	}
	return nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "", goerr.Wrap(err, "encode chunk metadata")
	}
	return string(raw), nil
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, chunk_index, text_content, metadata, embedding, token_count, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, persistErr(err, "query chunks", goerr.V("document_id", documentID))
	}
	defer rows.Close()

	out := []models.DocumentChunk{}
	for rows.Next() {
		var (
			ch   models.DocumentChunk
			meta []byte
			emb  pgvector.Vector
		)
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.Text, &meta, &emb, &ch.TokenCount, &ch.CreatedAt,
		); err != nil {
			return nil, persistErr(err, "scan chunk", goerr.V("document_id", documentID))
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ch.Metadata); err != nil {
				return nil, persistErr(err, "decode chunk metadata", goerr.V("chunk_id", ch.ID))
			}
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(err, "iterate chunks", goerr.V("document_id", documentID))
	}
	return out, nil
}

func (c *DatabaseClient) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&n)
	if err != nil {
		return 0, persistErr(err, "count chunks", goerr.V("document_id", documentID))
	}
	return n, nil
}

// Extractions

func (c *DatabaseClient) CreateExtraction(ctx context.Context, e *models.Extraction) error {
	if e == nil {
		return goerr.New("nil extraction")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Contacts == nil {
		e.Contacts = []models.Contact{}
	}
	e.ContactCount = len(e.Contacts)

	contacts, err := json.Marshal(e.Contacts)
	if err != nil {
		return goerr.Wrap(err, "encode contacts")
	}
	meta, err := json.Marshal(e.DocumentMetadata)
	if err != nil {
		return goerr.Wrap(err, "encode document metadata")
	}

	const q = `
		INSERT INTO extractions
			(id, user_id, file_name, storage_key, contacts, document_metadata, contact_count, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8)
	`
	_, err = c.db.ExecContext(ctx, q,
		e.ID, e.UserID, e.FileName, e.StorageKey, string(contacts), string(meta), e.ContactCount, e.CreatedAt)
	if err != nil {
		return persistErr(err, "insert extraction", goerr.V("extraction_id", e.ID))
	}
	return nil
}

const extractionColumns = `id, user_id, file_name, storage_key, contacts, document_metadata, contact_count, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExtraction(row rowScanner) (*models.Extraction, error) {
	var (
		e                  models.Extraction
		userID, storageKey sql.NullString
		contacts, meta     []byte
	)
	if err := row.Scan(&e.ID, &userID, &e.FileName, &storageKey, &contacts, &meta, &e.ContactCount, &e.CreatedAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		e.UserID = &userID.String
	}
	if storageKey.Valid {
		e.StorageKey = &storageKey.String
	}
	if err := json.Unmarshal(contacts, &e.Contacts); err != nil {
		return nil, goerr.Wrap(err, "decode contacts")
	}
	if err := json.Unmarshal(meta, &e.DocumentMetadata); err != nil {
		return nil, goerr.Wrap(err, "decode document metadata")
	}
	return &e, nil
}

func (c *DatabaseClient) GetExtraction(ctx context.Context, id string) (*models.Extraction, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+extractionColumns+` FROM extractions WHERE id = $1`, id)
	e, err := scanExtraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("extraction", id)
	}
	if err != nil {
		return nil, persistErr(err, "get extraction", goerr.V("extraction_id", id))
	}
	return e, nil
}

// ListExtractions returns the newest extractions first. An empty userID
// lists across all users.
func (c *DatabaseClient) ListExtractions(ctx context.Context, userID string, limit int) ([]models.Extraction, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + extractionColumns + ` FROM extractions`
	args := []any{}
	if userID != "" {
		q += ` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, userID, limit)
	} else {
		q += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, persistErr(err, "list extractions")
	}
	defer rows.Close()

	out := []models.Extraction{}
	for rows.Next() {
		e, err := scanExtraction(rows)
		if err != nil {
			return nil, persistErr(err, "scan extraction")
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr(err, "iterate extractions")
	}
	return out, nil
}
