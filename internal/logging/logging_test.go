package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Docketgraph/internal/logging"
)

type credentials struct {
	User  string
	Token string `masq:"secret"`
}

func TestJSONHandlerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Format: "json", Writer: &buf})

	logger.Info("connecting", "creds", credentials{User: "svc", Token: "s3cr3t"})

	assert.Contains(t, buf.String(), "svc")
	assert.NotContains(t, buf.String(), "s3cr3t")
}

func TestJSONHandlerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Format: "json", Level: "warn", Writer: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromFallsBackToDefault(t *testing.T) {
	assert.Equal(t, logging.Default(), logging.From(context.Background()))

	var buf bytes.Buffer
	l := logging.New(logging.Options{Format: "json", Writer: &buf})
	ctx := logging.With(context.Background(), l)
	assert.Same(t, l, logging.From(ctx))
}

func TestLogErrorIncludesGoerrValues(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New(logging.Options{Format: "json", Writer: &buf})
	ctx := logging.With(context.Background(), l)

	logging.LogError(ctx, goerr.New("boom", goerr.V("document_id", "doc-1")), "stage failed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "stage failed", rec["msg"])
	assert.Contains(t, buf.String(), "doc-1")
}
