package db

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

// MemoryClient is an in-process DbClient with the same ordering, replace
// and not-found behaviour as DatabaseClient. Used by tests and dry runs.
type MemoryClient struct {
	mu          sync.RWMutex
	dim         int
	docs        map[string]models.RawDocument
	chunks      map[string][]models.DocumentChunk
	extractions map[string]models.Extraction

	// FailReplace, when set, is returned by ReplaceDocumentChunks without
	// touching the stored set.
	FailReplace error
}

var _ core.DbClient = (*MemoryClient)(nil)

func NewMemoryClient(dim int) *MemoryClient {
	return &MemoryClient{
		dim:         dim,
		docs:        map[string]models.RawDocument{},
		chunks:      map[string][]models.DocumentChunk{},
		extractions: map[string]models.Extraction{},
	}
}

func (m *MemoryClient) Close() error { return nil }

func (m *MemoryClient) CreateRawDocument(ctx context.Context, doc *models.RawDocument) error {
	if doc == nil {
		return goerr.New("nil raw document")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, dup := m.docs[doc.ID]; dup {
		return persistErr(goerr.New("duplicate key"), "insert raw document", goerr.V("document_id", doc.ID))
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	cp := *doc
	cp.LayoutJSON = append(json.RawMessage(nil), doc.LayoutJSON...)
	m.docs[doc.ID] = cp
	return nil
}

func (m *MemoryClient) GetRawDocument(ctx context.Context, id string) (*models.RawDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, notFound("raw document", id)
	}
	return &d, nil
}

func (m *MemoryClient) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.DocumentChunk) error {
	if m.FailReplace != nil {
		return persistErr(m.FailReplace, "replace document chunks", goerr.V("document_id", documentID))
	}
	if err := ValidateChunkSet(documentID, chunks, m.dim); err != nil {
		return persistErr(err, "reject chunk set", goerr.V("document_id", documentID))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[documentID]; !ok {
		return persistErr(goerr.New("foreign key violation"), "replace document chunks", goerr.V("document_id", documentID))
	}

	now := time.Now().UTC()
	set := make([]models.DocumentChunk, len(chunks))
	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		if ch.CreatedAt.IsZero() {
			ch.CreatedAt = now
		}
		set[i] = *ch
		set[i].Embedding = append([]float32(nil), ch.Embedding...)
	}
	m.chunks[documentID] = set
	return nil
}

func (m *MemoryClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.DocumentChunk{}, m.chunks[documentID]...), nil
}

func (m *MemoryClient) CountChunks(ctx context.Context, documentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks[documentID]), nil
}

// DocumentCount reports how many raw documents have been written.
func (m *MemoryClient) DocumentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryClient) CreateExtraction(ctx context.Context, e *models.Extraction) error {
	if e == nil {
		return goerr.New("nil extraction")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.extractions[e.ID] = *e
	return nil
}

func (m *MemoryClient) GetExtraction(ctx context.Context, id string) (*models.Extraction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.extractions[id]
	if !ok {
		return nil, notFound("extraction", id)
	}
	return &e, nil
}

func (m *MemoryClient) ListExtractions(ctx context.Context, userID string, limit int) ([]models.Extraction, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Extraction{}
	for _, e := range m.extractions {
		if userID != "" && models.Deref(e.UserID) != userID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
