// Package conversion turns raw document bytes into layout JSON and markdown.
package conversion

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Input points at a scratch copy of the document. Path is owned by the caller.
type Input struct {
	FileID      string
	SourceURL   string
	FileName    string
	ContentType string
	Path        string
}

// Result is a successful conversion.
type Result struct {
	LayoutJSON        json.RawMessage
	Markdown          string
	PageCount         int
	ProcessingSeconds float64
	Backend           string
}

// Backend converts one document. Implementations are safe for concurrent use.
type Backend interface {
	Name() string
	Convert(ctx context.Context, in Input) (*Result, error)
}

func (in Input) read() ([]byte, error) {
	return os.ReadFile(in.Path)
}

// IsPDF reports whether the input looks like a PDF by content type or name.
func (in Input) IsPDF() bool {
	if strings.Contains(strings.ToLower(in.ContentType), "pdf") {
		return true
	}
	name := in.FileName
	if name == "" {
		name = in.Path
	}
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// DocType is the short type stored on RawDocument.
func (in Input) DocType() string {
	if in.IsPDF() {
		return "pdf"
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(in.FileName)), ".")
	if ext == "" {
		return "unknown"
	}
	return ext
}
