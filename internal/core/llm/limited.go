package llm

import (
	"context"
	"time"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/throttle"
)

// LimitedEmbedder shares one embedding service between concurrent documents.
// Every call gets its own timeout and waits for a rate token and a slot.
type LimitedEmbedder struct {
	inner   core.EmbeddingProvider
	timeout time.Duration
	gate    *throttle.Gate
}

func NewLimitedEmbedder(inner core.EmbeddingProvider, timeout time.Duration, rps float64, maxInFlight int64) *LimitedEmbedder {
	return &LimitedEmbedder{
		inner:   inner,
		timeout: timeout,
		gate:    throttle.NewGate(rps, maxInFlight),
	}
}

func (l *LimitedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	release, err := l.gate.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return l.inner.EmbedTexts(ctx, texts)
}

var _ core.EmbeddingProvider = (*LimitedEmbedder)(nil)
