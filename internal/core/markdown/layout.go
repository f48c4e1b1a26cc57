// Package markdown turns structured document layouts into normalized markdown.
package markdown

import (
	"strconv"
	"strings"
)

// Layout is the structured conversion output: text blocks, tables and an
// optional body listing them in reading order through "$ref" pointers such
// as "#/texts/3" or "#/tables/0".
type Layout struct {
	SchemaName string          `json:"schema_name,omitempty"`
	Name       string          `json:"name,omitempty"`
	Body       *Node           `json:"body,omitempty"`
	Groups     []Node          `json:"groups,omitempty"`
	Texts      []TextItem      `json:"texts"`
	Tables     []TableItem     `json:"tables"`
	Pages      map[string]Page `json:"pages,omitempty"`
}

type Ref struct {
	Ref string `json:"$ref"`
}

// Node is a body or group entry whose children are references.
type Node struct {
	SelfRef  string `json:"self_ref,omitempty"`
	Label    string `json:"label,omitempty"`
	Children []Ref  `json:"children"`
}

type TextItem struct {
	SelfRef string `json:"self_ref,omitempty"`
	Label   string `json:"label"`
	Text    string `json:"text"`
	Level   int    `json:"level,omitempty"`
	Page    int    `json:"page_no,omitempty"`
}

type TableItem struct {
	SelfRef string    `json:"self_ref,omitempty"`
	Label   string    `json:"label,omitempty"`
	Data    TableData `json:"data"`
}

type TableData struct {
	NumRows int         `json:"num_rows"`
	NumCols int         `json:"num_cols"`
	Cells   []TableCell `json:"table_cells"`
}

// TableCell offsets are optional; a nil start means the producer did not
// report a position for the cell.
type TableCell struct {
	Text     string `json:"text"`
	StartRow *int   `json:"start_row_offset_idx,omitempty"`
	EndRow   *int   `json:"end_row_offset_idx,omitempty"`
	StartCol *int   `json:"start_col_offset_idx,omitempty"`
	EndCol   *int   `json:"end_col_offset_idx,omitempty"`
}

type Page struct {
	PageNo int `json:"page_no"`
}

// Text labels with special rendering.
const (
	LabelTitle         = "title"
	LabelSectionHeader = "section_header"
	LabelListItem      = "list_item"
	LabelPageHeader    = "page_header"
	LabelPageFooter    = "page_footer"
	LabelCode          = "code"
	LabelParagraph     = "paragraph"
)

type refKind int

const (
	refUnknown refKind = iota
	refText
	refTable
	refGroup
)

// parseRef splits "#/texts/4" into (refText, 4).
func parseRef(ref string) (refKind, int) {
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	if len(parts) != 2 {
		return refUnknown, 0
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 {
		return refUnknown, 0
	}
	switch parts[0] {
	case "texts":
		return refText, idx
	case "tables":
		return refTable, idx
	case "groups":
		return refGroup, idx
	}
	return refUnknown, 0
}

// TextRef and TableRef build body references.
func TextRef(i int) Ref  { return Ref{Ref: "#/texts/" + strconv.Itoa(i)} }
func TableRef(i int) Ref { return Ref{Ref: "#/tables/" + strconv.Itoa(i)} }
