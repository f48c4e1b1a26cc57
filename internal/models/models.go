package models

import (
	"encoding/json"
	"time"
)

// RawDocument is one converted filing. It is written once, before chunking.
type RawDocument struct {
	ID         string          `db:"id" json:"id"`
	FileName   string          `db:"file_name" json:"file_name"`
	SourceURL  string          `db:"source_url" json:"source_url,omitempty"`
	DocType    string          `db:"doc_type" json:"doc_type"`
	Backend    string          `db:"backend" json:"backend"` // remote | local
	PageCount  int             `db:"page_count" json:"page_count"`
	LayoutJSON json.RawMessage `db:"layout_json" json:"layout_json,omitempty"`
	Markdown   string          `db:"markdown" json:"markdown"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// DocumentChunk represents one text chunk from a document.
type DocumentChunk struct {
	ID         string         `db:"id" json:"id"`
	DocumentID string         `db:"document_id" json:"document_id"`
	ChunkIndex int            `db:"chunk_index" json:"chunk_index"`
	Text       string         `db:"text_content" json:"text_content"`
	Metadata   map[string]any `db:"metadata" json:"metadata,omitempty"`
	Embedding  []float32      `db:"embedding" json:"embedding"` // pgvector column
	TokenCount int            `db:"token_count" json:"token_count"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Contact is one person found in a filing. Absent fields stay nil.
type Contact struct {
	Name    string  `json:"name"`
	Role    *string `json:"role"`
	Firm    *string `json:"firm"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

// DocumentMetadata is the filing-level part of an extraction.
type DocumentMetadata struct {
	CaseName    *string `json:"case_name"`
	CourtFileNo *string `json:"court_file_no"`
	FilingDate  *string `json:"filing_date"`
}

// Extraction is a user-facing record of one contact-extraction run.
type Extraction struct {
	ID               string           `db:"id" json:"id"`
	UserID           *string          `db:"user_id" json:"user_id,omitempty"`
	FileName         string           `db:"file_name" json:"file_name"`
	StorageKey       *string          `db:"storage_key" json:"storage_key,omitempty"`
	Contacts         []Contact        `db:"contacts" json:"contacts"`
	DocumentMetadata DocumentMetadata `db:"document_metadata" json:"document_metadata"`
	ContactCount     int              `db:"contact_count" json:"contact_count"`
	CreatedAt        time.Time        `db:"created_at" json:"created_at"`
}

// Job is one unit of background ingestion work.
type Job struct {
	FileID    string         `json:"file_id"`
	SourceURL string         `json:"file_url,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Str returns a pointer to s, or nil when s is empty.
func Str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
