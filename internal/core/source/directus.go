// Package source fetches document bytes from the external asset store.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/throttle"
	"github.com/markdave123-py/Docketgraph/internal/logging"
)

const (
	KindDirectus = "directus"
	KindS3       = "s3"
)

type DirectusConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RPS        float64
	MaxRetries int
	HTTPClient *http.Client
}

// DirectusSource reads file metadata from /files/{id} and bytes from
// /assets/{id}.
type DirectusSource struct {
	base       string
	token      string
	maxRetries int
	client     *http.Client
	gate       *throttle.Gate
}

var _ core.DocumentSource = (*DirectusSource)(nil)

func NewDirectusSource(cfg DirectusConfig) *DirectusSource {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &DirectusSource{
		base:       strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		maxRetries: retries,
		client:     client,
		gate:       throttle.NewGate(cfg.RPS, 0),
	}
}

type fileInfo struct {
	Data struct {
		FilenameDownload string `json:"filename_download"`
		Type             string `json:"type"`
		Filesize         int64  `json:"filesize"`
	} `json:"data"`
}

// statusError is a non-2xx reply; 5xx and 429 are retried.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("directus returned %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

func (s *DirectusSource) Download(ctx context.Context, fileID string, w io.WriterAt) (*core.SourceFile, error) {
	if fileID == "" {
		return nil, goerr.Wrap(core.ErrAcquisition, "empty file id")
	}
	fail := func(err error, msg string) error {
		return goerr.Wrap(fmt.Errorf("%w: %w", core.ErrAcquisition, err), msg, goerr.V("file_id", fileID))
	}
	id := url.PathEscape(fileID)

	var info fileInfo
	err := s.withRetry(ctx, func() error {
		return s.get(ctx, "/files/"+id+"?fields=filename_download,type,filesize", func(body io.Reader) error {
			return json.NewDecoder(body).Decode(&info)
		})
	})
	if err != nil {
		return nil, fail(err, "fetch file metadata")
	}

	var written int64
	err = s.withRetry(ctx, func() error {
		return s.get(ctx, "/assets/"+id, func(body io.Reader) error {
			n, err := io.Copy(io.NewOffsetWriter(w, 0), body)
			written = n
			return err
		})
	})
	if err != nil {
		return nil, fail(err, "download asset")
	}

	name := info.Data.FilenameDownload
	if name == "" {
		name = fileID
	}
	logging.From(ctx).Debug("asset downloaded", "file_id", fileID, "bytes", written, "type", info.Data.Type)
	return &core.SourceFile{
		FileName:    name,
		ContentType: info.Data.Type,
		SourceURL:   s.base + "/assets/" + id,
		Size:        written,
	}, nil
}

func (s *DirectusSource) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var se *statusError
		if errors.As(lastErr, &se) && !se.retryable() {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if attempt == s.maxRetries {
			break
		}
		backoff := time.Duration(1<<uint(attempt)) * 200 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return lastErr
}

func (s *DirectusSource) get(ctx context.Context, path string, read func(io.Reader) error) error {
	release, err := s.gate.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+path, nil)
	if err != nil {
		return err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	return read(resp.Body)
}
