package ingestion_engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/conversion"
	"github.com/markdave123-py/Docketgraph/internal/core/markdown"
	"github.com/markdave123-py/Docketgraph/internal/logging"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

// NewDocumentIngestor constructs the ingestor with a bounded job queue.
func NewDocumentIngestor(deps Deps, cfg *IngestConfig) *DocumentIngestor {
	if cfg == nil {
		cfg = &IngestConfig{}
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 64
	}
	return &DocumentIngestor{
		db:        deps.DB,
		source:    deps.Source,
		objects:   deps.Objects,
		converter: deps.Converter,
		embedder:  deps.Embedder,
		extractor: deps.Extractor,
		graph:     deps.Graph,
		inst:      deps.Instruments,
		cfg:       cfg,
		jobs:      make(chan models.Job, queue),
		done:      make(chan struct{}),
	}
}

// scratchFile creates a temp file carrying fileName's extension. The
// returned cleanup closes and removes it and is safe to call more than once.
func (i *DocumentIngestor) scratchFile(fileName string) (*os.File, func(), error) {
	f, err := os.CreateTemp(i.cfg.ScratchDir, "docket-*"+filepath.Ext(fileName))
	if err != nil {
		return nil, nil, goerr.Wrap(err, "create scratch file")
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}
	return f, cleanup, nil
}

// ProcessDocument runs the whole pipeline for one file. The document id is
// returned once the RawDocument row exists, even when a later stage fails,
// so the caller can re-chunk it.
func (i *DocumentIngestor) ProcessDocument(ctx context.Context, job models.Job) (docID string, err error) {
	id := uuid.NewString()
	logger := logging.From(ctx).With("document_id", id, "file_id", job.FileID)
	ctx = logging.With(ctx, logger)
	defer func() { i.inst.DocumentDone(ctx, "ingest", err) }()

	if i.source == nil {
		return "", core.StageError(core.ErrAcquisition, goerr.New("no document source configured"), id, core.StageDownload)
	}

	// The file name is unknown until the source answers; conversion sniffs
	// the type from Input.FileName, not the scratch path.
	scratch, cleanup, err := i.scratchFile("")
	if err != nil {
		return "", core.StageError(core.ErrAcquisition, err, id, core.StageDownload)
	}
	defer cleanup()

	sctx, timer := i.inst.Stage(ctx, core.StageDownload, id)
	info, err := i.source.Download(sctx, job.FileID, scratch)
	timer.End(err)
	if err != nil {
		return "", core.StageError(core.ErrAcquisition, err, id, core.StageDownload)
	}
	if err := scratch.Close(); err != nil {
		return "", core.StageError(core.ErrAcquisition, err, id, core.StageDownload)
	}

	in := conversion.Input{
		FileID:      job.FileID,
		SourceURL:   job.SourceURL,
		FileName:    info.FileName,
		ContentType: info.ContentType,
		Path:        scratch.Name(),
	}
	if in.SourceURL == "" {
		in.SourceURL = info.SourceURL
	}
	if in.FileName == "" {
		in.FileName = job.FileID
	}

	sctx, timer = i.inst.Stage(ctx, core.StageConvert, id)
	res, err := i.converter.Convert(sctx, in)
	timer.End(err)
	if err != nil {
		return "", core.StageError(core.ErrConversion, err, id, core.StageConvert)
	}
	logger.Info("document converted", "backend", res.Backend, "pages", res.PageCount, "seconds", res.ProcessingSeconds)

	doc := &models.RawDocument{
		ID:         id,
		FileName:   in.FileName,
		SourceURL:  in.SourceURL,
		DocType:    in.DocType(),
		Backend:    res.Backend,
		PageCount:  res.PageCount,
		LayoutJSON: res.LayoutJSON,
		Markdown:   res.Markdown,
	}
	sctx, timer = i.inst.Stage(ctx, core.StagePersistDocument, id)
	err = i.db.CreateRawDocument(sctx, doc)
	timer.End(err)
	if err != nil {
		return "", core.StageError(core.ErrPersistence, err, id, core.StagePersistDocument)
	}

	n, err := i.chunkAndStore(ctx, id, doc.Markdown, job.Metadata)
	if err != nil {
		return id, err
	}
	logger.Info("document ingested", "chunks", n, "backend", res.Backend)

	if i.cfg.ExtractAfterIngest && i.extractor != nil {
		if _, err := i.extractAndLink(ctx, id, extractTarget{fileName: doc.FileName, markdown: doc.Markdown}); err != nil {
			logging.LogError(ctx, err, "post-ingest extraction failed")
		}
	}
	return id, nil
}

// RechunkDocument re-splits stored markdown with the current settings and
// supersedes the document's chunk set.
func (i *DocumentIngestor) RechunkDocument(ctx context.Context, docID string) (n int, err error) {
	ctx = logging.With(ctx, logging.From(ctx).With("document_id", docID))
	defer func() { i.inst.DocumentDone(ctx, "rechunk", err) }()

	doc, err := i.db.GetRawDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	return i.chunkAndStore(ctx, docID, doc.Markdown, nil)
}

// chunkAndStore splits, embeds and atomically replaces the chunk set. No
// transaction is open while the embedding service is called.
func (i *DocumentIngestor) chunkAndStore(ctx context.Context, docID, md string, jobMeta map[string]any) (int, error) {
	logger := logging.From(ctx)

	_, timer := i.inst.Stage(ctx, core.StageChunk, docID)
	windows := Split(md, i.cfg.ChunkSize, i.cfg.Overlap)
	timer.End(nil)
	outline := markdown.BuildOutline(md)
	logger.Debug("document chunked",
		"chunks", len(windows),
		"headings", len(outline.Headings),
		"tables", outline.Tables,
	)

	texts := make([]string, len(windows))
	for k, w := range windows {
		texts[k] = w.Text
	}

	sctx, timer := i.inst.Stage(ctx, core.StageEmbed, docID)
	vecs, err := i.embedTexts(sctx, texts)
	timer.End(err)
	if err != nil {
		return 0, goerr.Wrap(err, "embed failed", goerr.V("document_id", docID), goerr.V("stage", core.StageEmbed))
	}
	if len(vecs) != len(windows) {
		return 0, goerr.Wrap(core.ErrEmbeddingCountMismatch, "embed failed",
			goerr.V("document_id", docID),
			goerr.V("stage", core.StageEmbed),
			goerr.V("chunks", len(windows)),
			goerr.V("vectors", len(vecs)),
		)
	}
	for k, v := range vecs {
		if i.cfg.EmbedDim > 0 && len(v) != i.cfg.EmbedDim {
			return 0, goerr.Wrap(core.ErrEmbeddingDimension, "embed failed",
				goerr.V("document_id", docID),
				goerr.V("stage", core.StageEmbed),
				goerr.V("chunk_index", k),
				goerr.V("got", len(v)),
				goerr.V("want", i.cfg.EmbedDim),
			)
		}
	}

	chunks := make([]models.DocumentChunk, len(windows))
	for k, w := range windows {
		chunks[k] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			ChunkIndex: w.Index,
			Text:       w.Text,
			Metadata:   chunkMetadata(w, jobMeta),
			Embedding:  vecs[k],
			TokenCount: w.TokenCnt,
		}
	}

	sctx, timer = i.inst.Stage(ctx, core.StagePersistChunks, docID)
	err = i.db.ReplaceDocumentChunks(sctx, docID, chunks)
	timer.End(err)
	if err != nil {
		return 0, core.StageError(core.ErrPersistence, err, docID, core.StagePersistChunks)
	}
	return len(chunks), nil
}

// embedTexts skips the provider for an empty document.
func (i *DocumentIngestor) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return i.embedder.EmbedTexts(ctx, texts)
}

func chunkMetadata(w Window, jobMeta map[string]any) map[string]any {
	meta := map[string]any{
		"char_start": w.Start,
		"char_end":   w.End,
	}
	o := markdown.BuildOutline(w.Text)
	if len(o.Headings) > 0 {
		meta["headings"] = o.Headings
	}
	if o.Tables > 0 {
		meta["tables"] = o.Tables
	}
	if len(jobMeta) > 0 {
		meta["source"] = jobMeta
	}
	return meta
}
