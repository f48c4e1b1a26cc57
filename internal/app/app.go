package app

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/config"
	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/conversion"
	db "github.com/markdave123-py/Docketgraph/internal/core/database"
	"github.com/markdave123-py/Docketgraph/internal/core/extraction"
	"github.com/markdave123-py/Docketgraph/internal/core/graph"
	"github.com/markdave123-py/Docketgraph/internal/core/ingestion_engine"
	"github.com/markdave123-py/Docketgraph/internal/core/llm"
	objectclient "github.com/markdave123-py/Docketgraph/internal/core/object-client"
	"github.com/markdave123-py/Docketgraph/internal/core/source"
	"github.com/markdave123-py/Docketgraph/internal/logging"
	"github.com/markdave123-py/Docketgraph/internal/observability"
)

// Options adjust wiring for CLI commands.
//
// MemoryGraph: populate an in-process graph instead of AGE (dry runs).
// NoGraph:     skip graph population entirely.
// NoSource:    do not build the document source (commands that never download).
type Options struct {
	MemoryGraph bool
	NoGraph     bool
	NoSource    bool
}

type App struct {
	Config   *config.Config
	DB       core.DbClient
	Objects  core.ObjectClient
	Ingestor *ingestion_engine.DocumentIngestor
	Graph    graph.Store
	Server   *Server

	closers []func(context.Context) error
}

// NewApp connects every backing service and builds the pipeline. On error,
// whatever was already opened is released.
func NewApp(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	logger := logging.From(ctx)

	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	inst, shutdownTelemetry, err := observability.Init(appCtx, cfg.Telemetry.Enabled, cfg.Telemetry.ServiceName)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, shutdownTelemetry)

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	a.DB = dbClient
	a.closers = append(a.closers, func(context.Context) error { return dbClient.Close() })
	logger.Info("database initialized and ready")

	if cfg.Storage.BucketName != "" {
		objClient, err := objectclient.NewS3Client(appCtx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		a.Objects = objClient
		logger.Info("object client initialized", "bucket", objClient.Bucket())
	}

	var src core.DocumentSource
	if !opts.NoSource {
		if src, err = source.New(cfg.Source, a.Objects, cfg.Storage.BucketName); err != nil {
			return nil, err
		}
	}

	var remote *conversion.RemoteBackend
	if cfg.Conversion.Backend == conversion.BackendRemote {
		remote = conversion.NewRemoteBackend(conversion.RemoteConfig{
			URL:         cfg.Conversion.RemoteURL,
			Token:       cfg.Conversion.RemoteToken,
			Timeout:     cfg.Conversion.Timeout.Duration,
			RPS:         cfg.Conversion.RPS,
			MaxInFlight: cfg.Conversion.MaxInFlight,
		})
	}
	converter := conversion.RemoteOrLocal(remote, conversion.NewLocalBackend(false))
	logger.Info("conversion backends", "order", converter.Backends())

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.Embedding.APIKey, cfg.Embedding.Model)
	if err != nil {
		return nil, goerr.Wrap(err, "couldn't initialize the embedder")
	}
	a.closers = append(a.closers, func(context.Context) error { return geminiEmbedder.Close() })
	embedder := llm.NewLimitedEmbedder(geminiEmbedder,
		cfg.Embedding.Timeout.Duration, cfg.Embedding.RPS, cfg.Embedding.MaxInFlight)

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.Embedding.APIKey, cfg.Extraction.Model,
		llm.WithResponseSchema(llm.ContactSchema()))
	if err != nil {
		return nil, goerr.Wrap(err, "couldn't initialize the llm")
	}
	a.closers = append(a.closers, func(context.Context) error { return llmProvider.Close() })
	extractor := extraction.NewExtractor(llmProvider, cfg.Extraction.MaxInputChars)

	deps := ingestion_engine.Deps{
		DB:          dbClient,
		Source:      src,
		Objects:     a.Objects,
		Converter:   converter,
		Embedder:    embedder,
		Extractor:   extractor,
		Instruments: inst,
	}
	if store, err := a.openGraph(appCtx, opts); err != nil {
		return nil, err
	} else if store != nil {
		a.Graph = store
		deps.Graph = graph.NewPopulator(store, graph.ResolverFor(cfg.Graph.Identity))
	}

	a.Ingestor = ingestion_engine.NewDocumentIngestor(deps, ingestion_engine.ConfigFrom(cfg))
	a.Server = NewServer(cfg, dbClient, a.Ingestor)
	return a, nil
}

func (a *App) openGraph(ctx context.Context, opts Options) (graph.Store, error) {
	switch {
	case opts.NoGraph:
		return nil, nil
	case opts.MemoryGraph:
		return graph.NewMemoryStore(), nil
	case !a.Config.Graph.Enabled:
		logging.From(ctx).Info("graph population disabled")
		return nil, nil
	}

	store, err := graph.NewAGEStore(ctx, a.Config.GraphURL(), a.Config.Graph.Name, a.Config.Graph.MaxConns)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { store.Close(); return nil })
	if err := store.EnsureGraph(ctx); err != nil {
		return nil, err
	}
	logging.From(ctx).Info("graph ready", "graph", a.Config.Graph.Name)
	return store, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
