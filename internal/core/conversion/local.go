package conversion

import (
	"context"
	"encoding/json"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/markdown"
)

const BackendLocal = "local"

// LocalBackend converts in-process. PDFs are read page by page with
// ledongthuc/pdf; anything else, or a PDF without a text layer, goes
// through docconv.
type LocalBackend struct {
	useReadability bool
}

func NewLocalBackend(useReadability bool) *LocalBackend {
	return &LocalBackend{useReadability: useReadability}
}

func (b *LocalBackend) Name() string { return BackendLocal }

func (b *LocalBackend) Convert(ctx context.Context, in Input) (*Result, error) {
	started := time.Now()

	var (
		layout *markdown.Layout
		err    error
	)
	if in.IsPDF() {
		layout, err = pdfLayout(ctx, in.Path)
		if err == nil && len(layout.Texts) == 0 {
			layout = nil
		}
	}
	if layout == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, b.fail(in, ctxErr, "context done before docconv")
		}
		layout, err = b.docconvLayout(in)
	}
	if err != nil {
		return nil, b.fail(in, err, "local conversion")
	}
	layout.Name = in.FileName

	raw, err := json.Marshal(layout)
	if err != nil {
		return nil, b.fail(in, err, "encode layout")
	}
	md, err := markdown.RenderLayout(layout)
	if err != nil {
		return nil, b.fail(in, err, "render layout")
	}
	return &Result{
		LayoutJSON:        raw,
		Markdown:          md,
		PageCount:         len(layout.Pages),
		ProcessingSeconds: time.Since(started).Seconds(),
		Backend:           BackendLocal,
	}, nil
}

func (b *LocalBackend) fail(in Input, err error, msg string) error {
	return goerr.Wrap(core.ErrConversion, msg,
		goerr.V("backend", BackendLocal),
		goerr.V("file_id", in.FileID),
		goerr.V("cause", errString(err)),
	)
}

func pdfLayout(ctx context.Context, path string) (*markdown.Layout, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "open pdf")
	}
	defer f.Close()

	l := newLayout()
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		l.Pages[strconv.Itoa(i)] = markdown.Page{PageNo: i}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		l.addParagraphs(text, i)
	}
	return l.Layout, nil
}

func (b *LocalBackend) docconvLayout(in Input) (*markdown.Layout, error) {
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, goerr.Wrap(err, "open scratch file")
	}
	defer f.Close()

	mime := in.ContentType
	if mime == "" || mime == "application/octet-stream" {
		name := in.FileName
		if name == "" {
			name = in.Path
		}
		mime = docconv.MimeTypeByExtension(name)
	}

	res, err := docconv.Convert(f, mime, b.useReadability)
	if err != nil {
		return nil, goerr.Wrap(err, "docconv", goerr.V("mime", mime))
	}
	if strings.TrimSpace(res.Body) == "" {
		return nil, goerr.New("docconv extracted no text", goerr.V("mime", mime))
	}

	l := newLayout()
	l.addParagraphs(res.Body, 0)
	return l.Layout, nil
}

type layoutBuilder struct {
	*markdown.Layout
}

func newLayout() *layoutBuilder {
	return &layoutBuilder{&markdown.Layout{
		SchemaName: "DoclingDocument",
		Body:       &markdown.Node{SelfRef: "#/body"},
		Pages:      map[string]markdown.Page{},
	}}
}

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

func (l *layoutBuilder) addParagraphs(text string, page int) {
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		idx := len(l.Texts)
		ref := markdown.TextRef(idx)
		l.Texts = append(l.Texts, markdown.TextItem{
			SelfRef: ref.Ref,
			Label:   markdown.LabelParagraph,
			Text:    p,
			Page:    page,
		})
		l.Body.Children = append(l.Body.Children, ref)
	}
}
