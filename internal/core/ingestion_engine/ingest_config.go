package ingestion_engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Docketgraph/internal/config"
	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/conversion"
	"github.com/markdave123-py/Docketgraph/internal/core/extraction"
	"github.com/markdave123-py/Docketgraph/internal/core/graph"
	"github.com/markdave123-py/Docketgraph/internal/models"
	"github.com/markdave123-py/Docketgraph/internal/observability"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize, Overlap: rune window size and overlap for the chunker.
// EmbedDim:           required length of every embedding vector.
// QueueSize:          capacity of the background job channel.
// JobTimeout:         upper bound for one background document.
// ExtractAfterIngest: run contact extraction and graph population after chunks are stored.
// UploadBucket:       when set, extract-only inputs are copied to object storage.
// ScratchDir:         directory for per-document scratch files ("" = os.TempDir).
type IngestConfig struct {
	ChunkSize          int
	Overlap            int
	EmbedDim           int
	QueueSize          int
	JobTimeout         time.Duration
	ExtractAfterIngest bool
	UploadBucket       string
	UploadPrefix       string
	ScratchDir         string
}

// ConfigFrom maps the application configuration onto the pipeline knobs.
func ConfigFrom(cfg *config.Config) *IngestConfig {
	return &IngestConfig{
		ChunkSize:          cfg.Chunking.Size,
		Overlap:            cfg.Chunking.Overlap,
		EmbedDim:           cfg.Embedding.Dim,
		QueueSize:          cfg.Workers.QueueSize,
		JobTimeout:         cfg.Workers.JobTimeout.Duration,
		ExtractAfterIngest: cfg.Extraction.AfterIngest,
		UploadBucket:       cfg.Storage.BucketName,
		UploadPrefix:       "extractions/",
	}
}

// Converter is satisfied by conversion.Selector.
type Converter interface {
	Convert(ctx context.Context, in conversion.Input) (*conversion.Result, error)
}

// EntityExtractor is satisfied by extraction.Extractor.
type EntityExtractor interface {
	Extract(ctx context.Context, md string) (*extraction.Result, error)
}

// GraphPopulator is satisfied by graph.Populator.
type GraphPopulator interface {
	Populate(ctx context.Context, extractionID string, contacts []models.Contact, meta models.DocumentMetadata, fileName string) (graph.Counts, error)
}

// Deps are the collaborators of the pipeline. Objects, Extractor, Graph and
// Instruments are optional.
type Deps struct {
	DB          core.DbClient
	Source      core.DocumentSource
	Objects     core.ObjectClient
	Converter   Converter
	Embedder    core.EmbeddingProvider
	Extractor   EntityExtractor
	Graph       GraphPopulator
	Instruments *observability.Instruments
}

// DocumentIngestor orchestrates download, conversion, chunking, embedding
// and persistence for one document at a time, and runs a bounded pool of
// background workers over a job queue.
type DocumentIngestor struct {
	db        core.DbClient
	source    core.DocumentSource
	objects   core.ObjectClient
	converter Converter
	embedder  core.EmbeddingProvider
	extractor EntityExtractor
	graph     GraphPopulator
	inst      *observability.Instruments
	cfg       *IngestConfig

	jobs    chan models.Job
	done    chan struct{}
	senders sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	group   *errgroup.Group
}
