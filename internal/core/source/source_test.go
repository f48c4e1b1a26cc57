package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/Docketgraph/internal/config"
	"github.com/markdave123-py/Docketgraph/internal/core"
)

func scratch(t *testing.T) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "dl-*")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func directusServer(t *testing.T, assetFailures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var assetCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/files/abc", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"data":{"filename_download":"motion.pdf","type":"application/pdf","filesize":7}}`)
	})
	mux.HandleFunc("/assets/abc", func(w http.ResponseWriter, r *http.Request) {
		if assetCalls.Add(1) <= assetFailures {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, "%PDF-1.")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &assetCalls
}

func TestDirectusDownload(t *testing.T) {
	srv, _ := directusServer(t, 0)
	src := NewDirectusSource(DirectusConfig{BaseURL: srv.URL + "/", Token: "tok"})
	f := scratch(t)

	info, err := src.Download(context.Background(), "abc", f)
	require.NoError(t, err)
	assert.Equal(t, "motion.pdf", info.FileName)
	assert.Equal(t, "application/pdf", info.ContentType)
	assert.Equal(t, int64(7), info.Size)
	assert.Equal(t, srv.URL+"/assets/abc", info.SourceURL)

	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.", string(got))
}

func TestDirectusRetriesServerErrors(t *testing.T) {
	srv, calls := directusServer(t, 1)
	src := NewDirectusSource(DirectusConfig{BaseURL: srv.URL, Token: "tok", MaxRetries: 1})

	_, err := src.Download(context.Background(), "abc", scratch(t))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDirectusFailures(t *testing.T) {
	srv, calls := directusServer(t, 100)

	_, err := NewDirectusSource(DirectusConfig{BaseURL: srv.URL, Token: "wrong", MaxRetries: 2}).
		Download(context.Background(), "abc", scratch(t))
	assert.ErrorIs(t, err, core.ErrAcquisition)
	assert.Zero(t, calls.Load(), "401 is not retried and stops before the asset call")

	_, err = NewDirectusSource(DirectusConfig{BaseURL: srv.URL, Token: "tok"}).
		Download(context.Background(), "missing", scratch(t))
	assert.ErrorIs(t, err, core.ErrAcquisition)

	_, err = NewDirectusSource(DirectusConfig{BaseURL: srv.URL, Token: "tok"}).
		Download(context.Background(), "abc", scratch(t))
	assert.ErrorIs(t, err, core.ErrAcquisition)
	assert.Contains(t, err.Error(), "502")
}

type fakeObjects struct {
	data map[string][]byte
}

func (f *fakeObjects) UploadFile(ctx context.Context, bucket, key string, r io.Reader, contentType string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.data[bucket+"/"+key] = b
	return "https://example/" + key, nil
}

func (f *fakeObjects) DownloadToFile(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	b, ok := f.data[bucket+"/"+key]
	if !ok {
		return 0, os.ErrNotExist
	}
	n, err := w.WriteAt(b, 0)
	return int64(n), err
}

func (f *fakeObjects) DeleteFile(ctx context.Context, bucket, key string) error {
	delete(f.data, bucket+"/"+key)
	return nil
}

func TestS3Source(t *testing.T) {
	objects := &fakeObjects{data: map[string][]byte{"b/filings/x.docx": []byte("docx")}}
	src := NewS3Source(objects, "b", "filings/")
	f := scratch(t)

	info, err := src.Download(context.Background(), "x.docx", f)
	require.NoError(t, err)
	assert.Equal(t, "x.docx", info.FileName)
	assert.Equal(t, "s3://b/filings/x.docx", info.SourceURL)
	assert.Equal(t, int64(4), info.Size)

	got, _ := os.ReadFile(filepath.Clean(f.Name()))
	assert.True(t, bytes.Equal([]byte("docx"), got))

	_, err = src.Download(context.Background(), "nope.pdf", f)
	assert.ErrorIs(t, err, core.ErrAcquisition)
}

func TestNewPicksKind(t *testing.T) {
	s, err := New(config.SourceConfig{Kind: KindDirectus, BaseURL: "http://x"}, nil, "")
	require.NoError(t, err)
	assert.IsType(t, &DirectusSource{}, s)

	_, err = New(config.SourceConfig{Kind: KindS3}, nil, "b")
	assert.Error(t, err)

	s, err = New(config.SourceConfig{Kind: KindS3}, &fakeObjects{}, "b")
	require.NoError(t, err)
	assert.IsType(t, &S3Source{}, s)

	_, err = New(config.SourceConfig{Kind: "ftp"}, nil, "")
	assert.Error(t, err)
}
