package ingestion_engine

import (
	"context"
	"io"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/conversion"
	"github.com/markdave123-py/Docketgraph/internal/core/graph"
	"github.com/markdave123-py/Docketgraph/internal/logging"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

// ExtractRequest is a user-supplied file for contact extraction without a
// durable RawDocument.
type ExtractRequest struct {
	FileName    string
	ContentType string
	Body        io.Reader
	UserID      *string
	SkipGraph   bool
	SkipUpload  bool
}

// ExtractOutcome is the stored extraction plus what happened in the graph.
// A graph failure leaves the extraction in place and is reported here.
type ExtractOutcome struct {
	Extraction *models.Extraction `json:"extraction"`
	Graph      *graph.Counts      `json:"graph,omitempty"`
	GraphError string             `json:"graph_error,omitempty"`
}

type extractTarget struct {
	extractionID string
	fileName     string
	markdown     string
	userID       *string
	storageKey   *string
	skipGraph    bool
}

// ExtractOnly converts the uploaded file, extracts contacts, optionally
// keeps a copy in object storage, stores the Extraction and merges it into
// the graph.
func (i *DocumentIngestor) ExtractOnly(ctx context.Context, req ExtractRequest) (out *ExtractOutcome, err error) {
	if i.extractor == nil {
		return nil, goerr.New("extraction is not configured")
	}
	extID := uuid.NewString()
	ctx = logging.With(ctx, logging.From(ctx).With("extraction_id", extID, "file_name", req.FileName))
	defer func() { i.inst.DocumentDone(ctx, "extract", err) }()

	scratch, cleanup, err := i.scratchFile(req.FileName)
	if err != nil {
		return nil, core.StageError(core.ErrAcquisition, err, extID, core.StageDownload)
	}
	defer cleanup()
	if _, err := io.Copy(scratch, req.Body); err != nil {
		return nil, core.StageError(core.ErrAcquisition, err, extID, core.StageDownload)
	}
	if err := scratch.Close(); err != nil {
		return nil, core.StageError(core.ErrAcquisition, err, extID, core.StageDownload)
	}

	in := conversion.Input{
		FileID:      extID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		Path:        scratch.Name(),
	}
	sctx, timer := i.inst.Stage(ctx, core.StageConvert, extID)
	res, err := i.converter.Convert(sctx, in)
	timer.End(err)
	if err != nil {
		return nil, core.StageError(core.ErrConversion, err, extID, core.StageConvert)
	}

	var storageKey *string
	if !req.SkipUpload {
		storageKey = i.upload(ctx, extID, in)
	}

	return i.extractAndLink(ctx, extID, extractTarget{
		extractionID: extID,
		fileName:     req.FileName,
		markdown:     res.Markdown,
		userID:       req.UserID,
		storageKey:   storageKey,
		skipGraph:    req.SkipGraph,
	})
}

// upload copies the source file to object storage. A failed upload is
// logged and the extraction proceeds without a storage key.
func (i *DocumentIngestor) upload(ctx context.Context, extID string, in conversion.Input) *string {
	if i.objects == nil || i.cfg.UploadBucket == "" {
		return nil
	}
	f, err := os.Open(in.Path)
	if err != nil {
		logging.LogError(ctx, err, "open scratch for upload")
		return nil
	}
	defer f.Close()

	key := i.cfg.UploadPrefix + extID + "/" + path.Base("/"+in.FileName)
	sctx, timer := i.inst.Stage(ctx, core.StageUpload, extID)
	_, err = i.objects.UploadFile(sctx, i.cfg.UploadBucket, key, f, in.ContentType)
	timer.End(err)
	if err != nil {
		logging.LogError(ctx, goerr.Wrap(err, "upload extraction input", goerr.V("key", key)), "upload failed")
		return nil
	}
	return &key
}

// extractAndLink runs the model, stores the Extraction and populates the
// graph. Graph failures are reported on the outcome, never returned.
func (i *DocumentIngestor) extractAndLink(ctx context.Context, ref string, t extractTarget) (*ExtractOutcome, error) {
	if t.extractionID == "" {
		t.extractionID = uuid.NewString()
	}
	logger := logging.From(ctx)

	sctx, timer := i.inst.Stage(ctx, core.StageExtract, ref)
	res, err := i.extractor.Extract(sctx, t.markdown)
	timer.End(err)
	if err != nil {
		return nil, goerr.Wrap(err, "extract failed", goerr.V("ref", ref), goerr.V("stage", core.StageExtract))
	}

	e := &models.Extraction{
		ID:               t.extractionID,
		UserID:           t.userID,
		FileName:         t.fileName,
		StorageKey:       t.storageKey,
		Contacts:         res.Contacts,
		DocumentMetadata: res.Metadata,
	}
	sctx, timer = i.inst.Stage(ctx, core.StagePersistExtract, ref)
	err = i.db.CreateExtraction(sctx, e)
	timer.End(err)
	if err != nil {
		return nil, core.StageError(core.ErrPersistence, err, ref, core.StagePersistExtract)
	}
	logger.Info("extraction stored", "extraction_id", e.ID, "contacts", e.ContactCount)

	out := &ExtractOutcome{Extraction: e}
	if i.graph == nil || t.skipGraph {
		return out, nil
	}

	sctx, timer = i.inst.Stage(ctx, core.StagePopulateGraph, ref)
	counts, err := i.graph.Populate(sctx, e.ID, e.Contacts, e.DocumentMetadata, e.FileName)
	timer.End(err)
	out.Graph = &counts
	if err != nil {
		logging.LogError(ctx, err, "graph population failed")
		out.GraphError = err.Error()
		return out, nil
	}
	logger.Info("graph populated", "nodes_merged", counts.NodesMerged, "edges_merged", counts.EdgesMerged)
	return out, nil
}
