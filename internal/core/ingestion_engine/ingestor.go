package ingestion_engine

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/Docketgraph/internal/logging"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

// Ingestor is what the HTTP and CLI layers drive.
type Ingestor interface {
	Enqueue(ctx context.Context, job models.Job) error
	ProcessDocument(ctx context.Context, job models.Job) (string, error)
	RechunkDocument(ctx context.Context, docID string) (int, error)
	ExtractOnly(ctx context.Context, req ExtractRequest) (*ExtractOutcome, error)
}

var _ Ingestor = (*DocumentIngestor)(nil)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = goerr.New("ingestor is closed")

// Start runs numWorkers goroutines reading from the job queue. Workers stop
// when ctx is done or when the queue is closed and drained.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for w := 1; w <= numWorkers; w++ {
		g.Go(func() error {
			i.worker(gctx, w)
			return nil
		})
	}
	i.mu.Lock()
	i.group = g
	i.mu.Unlock()
	logging.From(ctx).Info("ingestion workers started", "workers", numWorkers, "queue", cap(i.jobs))
}

func (i *DocumentIngestor) worker(ctx context.Context, id int) {
	logger := logging.From(ctx).With("worker", id)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker shutting down", "reason", ctx.Err())
			return
		case job, ok := <-i.jobs:
			if !ok {
				logger.Debug("queue closed, worker exiting")
				return
			}
			i.runJob(logging.With(ctx, logger), job)
		}
	}
}

// runJob bounds one document by the job timeout. Failures are logged with
// their stage and document id and go no further.
func (i *DocumentIngestor) runJob(ctx context.Context, job models.Job) {
	defer func() {
		if r := recover(); r != nil {
			logging.From(ctx).Error("panic in ingestion job", "panic", r, "file_id", job.FileID)
		}
	}()
	if i.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.JobTimeout)
		defer cancel()
	}
	docID, err := i.ProcessDocument(ctx, job)
	if err != nil {
		logging.LogError(ctx, err, "document ingestion failed")
		return
	}
	logging.From(ctx).Info("document ready", "document_id", docID, "file_id", job.FileID)
}

// Enqueue blocks until the job is queued, ctx is done or the ingestor is
// closed. The lock is not held while waiting for queue space.
func (i *DocumentIngestor) Enqueue(ctx context.Context, job models.Job) error {
	i.mu.RLock()
	if i.closed {
		i.mu.RUnlock()
		return ErrClosed
	}
	i.senders.Add(1)
	i.mu.RUnlock()
	defer i.senders.Done()

	select {
	case i.jobs <- job:
		return nil
	case <-i.done:
		return ErrClosed
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "enqueue", goerr.V("file_id", job.FileID))
	}
}

// Close stops accepting jobs. Blocked Enqueue calls return ErrClosed and
// jobs already queued are still processed.
func (i *DocumentIngestor) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	close(i.done)
	i.mu.Unlock()

	i.senders.Wait()
	close(i.jobs)
}

// Wait blocks until every worker has returned.
func (i *DocumentIngestor) Wait() error {
	i.mu.RLock()
	g := i.group
	i.mu.RUnlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}
