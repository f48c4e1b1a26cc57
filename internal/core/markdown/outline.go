package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Outline summarizes the block structure of rendered markdown.
type Outline struct {
	Headings   []string `json:"headings,omitempty"`
	Tables     int      `json:"tables"`
	TableCols  []int    `json:"table_cols,omitempty"`
	Paragraphs int      `json:"paragraphs"`
}

var parser = goldmark.New(goldmark.WithExtensions(extension.Table)).Parser()

// BuildOutline parses md with GFM tables enabled and counts its blocks.
func BuildOutline(md string) Outline {
	src := []byte(md)
	doc := parser.Parse(text.NewReader(src))

	var o Outline
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading:
			o.Headings = append(o.Headings, lineText(n, src))
			return ast.WalkSkipChildren, nil
		case ast.KindParagraph:
			o.Paragraphs++
		case extast.KindTable:
			o.Tables++
			if t, ok := n.(*extast.Table); ok {
				o.TableCols = append(o.TableCols, len(t.Alignments))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return o
}

func lineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return string(bytes.TrimSpace(buf.Bytes()))
}
