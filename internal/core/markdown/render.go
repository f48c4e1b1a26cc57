package markdown

import (
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var ErrInvalidLayout = goerr.New("invalid layout json")

// Bounds for one rendered table.
const (
	maxTableDim   = 4096
	maxTableSlots = 1 << 18
)

// Render converts layout JSON into post-processed markdown.
func Render(layoutJSON []byte) (string, error) {
	var l Layout
	if err := json.Unmarshal(layoutJSON, &l); err != nil {
		return "", goerr.Wrap(ErrInvalidLayout, err.Error())
	}
	return RenderLayout(&l)
}

// RenderLayout walks the body in reading order when it is present, and
// otherwise emits every text block followed by every table. A table with
// impossible dimensions fails the whole layout with ErrInvalidLayout.
func RenderLayout(l *Layout) (string, error) {
	var (
		blocks []string
		err    error
	)
	emit := func(s string) {
		if s != "" {
			blocks = append(blocks, s)
		}
	}
	emitTable := func(idx int, d TableData) {
		if err != nil {
			return
		}
		var s string
		if s, err = renderTable(d); err != nil {
			err = goerr.Wrap(err, "render table", goerr.V("table", idx))
			return
		}
		emit(s)
	}

	if l.Body != nil && len(l.Body.Children) > 0 {
		visited := map[int]bool{}
		var walk func(children []Ref)
		walk = func(children []Ref) {
			for _, c := range children {
				kind, idx := parseRef(c.Ref)
				switch kind {
				case refText:
					if idx < len(l.Texts) {
						emit(renderText(l.Texts[idx]))
					}
				case refTable:
					if idx < len(l.Tables) {
						emitTable(idx, l.Tables[idx].Data)
					}
				case refGroup:
					if idx < len(l.Groups) && !visited[idx] {
						visited[idx] = true
						walk(l.Groups[idx].Children)
					}
				}
			}
		}
		walk(l.Body.Children)
	} else {
		for _, t := range l.Texts {
			emit(renderText(t))
		}
		for i, t := range l.Tables {
			emitTable(i, t.Data)
		}
	}
	if err != nil {
		return "", err
	}

	return PostProcess(strings.Join(blocks, "\n\n")), nil
}

func renderText(t TextItem) string {
	text := strings.TrimSpace(t.Text)
	if text == "" {
		return ""
	}
	switch t.Label {
	case LabelPageHeader, LabelPageFooter:
		return ""
	case LabelTitle:
		return "# " + text
	case LabelSectionHeader:
		level := t.Level + 1
		if level < 2 {
			level = 2
		}
		if level > 6 {
			level = 6
		}
		return strings.Repeat("#", level) + " " + text
	case LabelListItem:
		return "- " + text
	case LabelCode:
		return "```\n" + text + "\n```"
	default:
		return text
	}
}

type cellPos struct {
	r0, r1, c0, c1 int
}

// renderTable lays cells onto a dense grid. Spanned cells repeat their text
// in every covered slot. A cell without offsets takes the slot after the
// previous cell in row-major order, which is best effort for irregular
// merges. The grid is sized by the cells; declared dimensions only guide
// placement of cells without offsets.
func renderTable(d TableData) (string, error) {
	if d.NumRows < 0 || d.NumCols < 0 || d.NumRows > maxTableDim || d.NumCols > maxTableDim {
		return "", goerr.Wrap(ErrInvalidLayout, "table dimensions out of range",
			goerr.V("num_rows", d.NumRows), goerr.V("num_cols", d.NumCols))
	}
	wrapCols := d.NumCols
	rows, cols := 0, 0
	positions := make([]cellPos, len(d.Cells))

	prevR, prevC := 0, -1
	for i, c := range d.Cells {
		var p cellPos
		if c.StartRow != nil && c.StartCol != nil {
			p.r0, p.c0 = *c.StartRow, *c.StartCol
			p.r1, p.c1 = p.r0+1, p.c0+1
			if c.EndRow != nil && *c.EndRow > p.r0 {
				p.r1 = *c.EndRow
			}
			if c.EndCol != nil && *c.EndCol > p.c0 {
				p.c1 = *c.EndCol
			}
		} else {
			r, col := prevR, prevC+1
			if wrapCols > 0 && col >= wrapCols {
				r, col = r+1, 0
			}
			p = cellPos{r0: r, r1: r + 1, c0: col, c1: col + 1}
		}
		if p.r0 < 0 || p.c0 < 0 || p.r1 > maxTableDim || p.c1 > maxTableDim {
			return "", goerr.Wrap(ErrInvalidLayout, "table cell out of range",
				goerr.V("cell", i), goerr.V("row", p.r0), goerr.V("col", p.c0),
				goerr.V("end_row", p.r1), goerr.V("end_col", p.c1))
		}
		positions[i] = p
		prevR, prevC = p.r0, p.c1-1

		if p.r1 > rows {
			rows = p.r1
		}
		if p.c1 > cols {
			cols = p.c1
		}
	}
	if rows == 0 || cols == 0 {
		return "", nil
	}
	if rows*cols > maxTableSlots {
		return "", goerr.Wrap(ErrInvalidLayout, "table too large", goerr.V("rows", rows), goerr.V("cols", cols))
	}

	grid := make([][]string, rows)
	for r := range grid {
		grid[r] = make([]string, cols)
	}
	for i, c := range d.Cells {
		text := cellText(c.Text)
		p := positions[i]
		for r := p.r0; r < p.r1; r++ {
			for col := p.c0; col < p.c1; col++ {
				grid[r][col] = text
			}
		}
	}

	var b strings.Builder
	for r, row := range grid {
		writeRow(&b, row)
		if r == 0 {
			sep := make([]string, cols)
			for i := range sep {
				sep[i] = "---"
			}
			writeRow(&b, sep)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(c)
		b.WriteString(" |")
	}
	b.WriteString("\n")
}

var cellReplacer = strings.NewReplacer("\r\n", "<br>", "\n", "<br>", "\r", "<br>", "|", `\|`)

func cellText(s string) string {
	return cellReplacer.Replace(strings.TrimSpace(s))
}
