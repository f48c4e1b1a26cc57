package ingestion_engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCoversInput(t *testing.T) {
	text := strings.Repeat("Court File No. CV-123 — Jane Doé, Monitor.\n", 40)

	for _, tc := range []struct{ size, overlap int }{
		{100, 20}, {100, 0}, {7, 6}, {1, 0}, {5000, 100},
	} {
		ws := Split(text, tc.size, tc.overlap)
		require.NotEmpty(t, ws)
		assert.Equal(t, text, Reassemble(ws, tc.overlap), "size=%d overlap=%d", tc.size, tc.overlap)

		for i, w := range ws {
			assert.Equal(t, i, w.Index)
			assert.LessOrEqual(t, len([]rune(w.Text)), tc.size)
			if i > 0 {
				assert.Equal(t, tc.overlap, ws[i-1].End-w.Start)
			}
		}
		assert.Equal(t, len([]rune(text)), ws[len(ws)-1].End)
	}
}

func TestSplitIsDeterministic(t *testing.T) {
	text := strings.Repeat("abcdefghij", 13)
	assert.Equal(t, Split(text, 30, 10), Split(text, 30, 10))
}

func TestSplitEmpty(t *testing.T) {
	assert.Empty(t, Split("", 100, 10))
	assert.Equal(t, "", Reassemble(nil, 10))
}

func TestSplitShortText(t *testing.T) {
	ws := Split("short", 100, 10)
	require.Len(t, ws, 1)
	assert.Equal(t, "short", ws[0].Text)
	assert.Equal(t, 2, ws[0].TokenCnt)
}

func TestSplitMultibyteRunes(t *testing.T) {
	text := "ééééé"
	ws := Split(text, 2, 1)
	require.Len(t, ws, 4)
	assert.Equal(t, "éé", ws[0].Text)
	assert.Equal(t, text, Reassemble(ws, 1))
}

func TestSplitBadOverlapFallsBackToNone(t *testing.T) {
	ws := Split("abcdef", 2, 2)
	require.Len(t, ws, 3)
	assert.Equal(t, "abcdef", Reassemble(ws, 0))
}
