package llm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Docketgraph/internal/core/llm"
)

type stubEmbedder struct {
	calls int
	delay time.Duration
}

func (s *stubEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestLimitedEmbedderEmptyInputSkipsService(t *testing.T) {
	inner := &stubEmbedder{}
	l := llm.NewLimitedEmbedder(inner, time.Second, 1, 1)

	out, err := l.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Zero(t, inner.calls)
}

func TestLimitedEmbedderPassesThrough(t *testing.T) {
	inner := &stubEmbedder{}
	l := llm.NewLimitedEmbedder(inner, time.Second, 0, 2)

	out, err := l.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0}, {1}, {2}}, out)
	assert.Equal(t, 1, inner.calls)
}

func TestLimitedEmbedderTimesOut(t *testing.T) {
	inner := &stubEmbedder{delay: time.Second}
	l := llm.NewLimitedEmbedder(inner, 10*time.Millisecond, 0, 0)

	_, err := l.EmbedTexts(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
