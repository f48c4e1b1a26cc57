package extraction_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/extraction"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

type fakeLLM struct {
	out    string
	err    error
	system string
	user   string
}

func (f *fakeLLM) Generate(ctx context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.out, f.err
}

func TestExtractParsesContactsAndMetadata(t *testing.T) {
	llm := &fakeLLM{out: "```json\n" + `{
		"contacts": [
			{"name": "Jane Doe", "role": "Monitor", "firm": "Acme LLP", "email": "jane@x.com", "phone": "N/A"},
			{"name": "", "role": "Counsel", "firm": null}
		],
		"document_metadata": {"case_name": "Re Acme", "court_file_no": "CV-123", "filing_date": "null"}
	}` + "\n```"}

	res, err := extraction.NewExtractor(llm, 0).Extract(context.Background(), "# Service List")
	require.NoError(t, err)

	require.Len(t, res.Contacts, 2)
	jane := res.Contacts[0]
	assert.Equal(t, "Jane Doe", jane.Name)
	assert.Equal(t, "Monitor", models.Deref(jane.Role))
	assert.Equal(t, "Acme LLP", models.Deref(jane.Firm))
	assert.Equal(t, "jane@x.com", models.Deref(jane.Email))
	assert.Nil(t, jane.Phone)
	assert.Nil(t, jane.Address)

	assert.Equal(t, "", res.Contacts[1].Name)
	assert.Nil(t, res.Contacts[1].Firm)

	assert.Equal(t, "Re Acme", models.Deref(res.Metadata.CaseName))
	assert.Equal(t, "CV-123", models.Deref(res.Metadata.CourtFileNo))
	assert.Nil(t, res.Metadata.FilingDate)

	assert.Equal(t, "# Service List", llm.user)
	assert.NotEmpty(t, llm.system)
}

func TestExtractRejectsNonObjects(t *testing.T) {
	for _, out := range []string{
		"I could not find any contacts.",
		`[{"name": "Jane"}]`,
		`{"contacts": "Jane Doe"}`,
		`{"contacts": [`,
		"",
	} {
		_, err := extraction.NewExtractor(&fakeLLM{out: out}, 0).Extract(context.Background(), "x")
		assert.ErrorIs(t, err, core.ErrExtractionFormat, "output %q", out)
	}
}

func TestExtractPropagatesModelErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	_, err := extraction.NewExtractor(&fakeLLM{err: boom}, 0).Extract(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, core.ErrExtractionFormat))
}

func TestExtractEmptyObject(t *testing.T) {
	res, err := extraction.Parse(`{}`)
	require.NoError(t, err)
	assert.Empty(t, res.Contacts)
	assert.Nil(t, res.Metadata.CourtFileNo)
}

func TestExtractTruncatesAtLineBoundary(t *testing.T) {
	llm := &fakeLLM{out: `{}`}
	md := strings.Repeat("0123456789\n", 10)

	_, err := extraction.NewExtractor(llm, 25).Extract(context.Background(), md)
	require.NoError(t, err)
	assert.Equal(t, "0123456789\n0123456789", llm.user)
}
