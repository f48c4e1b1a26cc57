package ingestion_engine

import "strings"

// Window is one chunk of a document's markdown. Start and End are rune
// offsets into the source text.
type Window struct {
	Index    int
	Start    int
	End      int
	Text     string
	TokenCnt int
}

// Split cuts text into fixed windows of chunkSize runes, each starting
// chunkSize-overlap runes after the previous one. Every window after the
// first repeats exactly overlap runes of its predecessor, the last window
// ends at the end of text, and empty text yields no windows.
func Split(text string, chunkSize, overlap int) []Window {
	runes := []rune(text)
	n := len(runes)
	if n == 0 || chunkSize <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	stride := chunkSize - overlap

	var out []Window
	for start := 0; ; start += stride {
		end := start + chunkSize
		if end > n {
			end = n
		}
		s := string(runes[start:end])
		out = append(out, Window{
			Index:    len(out),
			Start:    start,
			End:      end,
			Text:     s,
			TokenCnt: approxTokens(s),
		})
		if end == n {
			return out
		}
	}
}

// Reassemble drops the declared overlap from every window after the first
// and concatenates the rest.
func Reassemble(windows []Window, overlap int) string {
	var b strings.Builder
	for i, w := range windows {
		if i == 0 {
			b.WriteString(w.Text)
			continue
		}
		r := []rune(w.Text)
		if overlap < len(r) {
			b.WriteString(string(r[overlap:]))
		}
	}
	return b.String()
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
