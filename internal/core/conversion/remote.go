package conversion

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/core/markdown"
	"github.com/markdave123-py/Docketgraph/internal/core/throttle"
)

const BackendRemote = "remote"

// RemoteConfig describes the accelerated conversion function.
type RemoteConfig struct {
	URL         string
	Token       string
	Timeout     time.Duration
	RPS         float64
	MaxInFlight int64
	HTTPClient  *http.Client
}

// RemoteBackend posts the document to a remote GPU conversion function.
type RemoteBackend struct {
	url     string
	token   string
	timeout time.Duration
	client  *http.Client
	gate    *throttle.Gate
}

func NewRemoteBackend(cfg RemoteConfig) *RemoteBackend {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RemoteBackend{
		url:     cfg.URL,
		token:   cfg.Token,
		timeout: timeout,
		client:  client,
		gate:    throttle.NewGate(cfg.RPS, cfg.MaxInFlight),
	}
}

func (b *RemoteBackend) Name() string { return BackendRemote }

type remoteRequest struct {
	FileID        string `json:"file_id"`
	SourceURL     string `json:"source_url,omitempty"`
	FileName      string `json:"file_name,omitempty"`
	ContentBase64 string `json:"content_base64"`
}

type remoteResponse struct {
	Success        bool            `json:"success"`
	DocJSON        json.RawMessage `json:"doc_json,omitempty"`
	Markdown       string          `json:"markdown,omitempty"`
	ProcessingTime float64         `json:"processing_time,omitempty"`
	PageCount      int             `json:"page_count,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Convert is bounded by the configured timeout, which covers waiting for a
// slot as well as the call itself.
func (b *RemoteBackend) Convert(ctx context.Context, in Input) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	fail := func(err error, msg string) error {
		return goerr.Wrap(core.ErrConversion, msg,
			goerr.V("backend", BackendRemote),
			goerr.V("file_id", in.FileID),
			goerr.V("cause", errString(err)),
		)
	}

	data, err := in.read()
	if err != nil {
		return nil, fail(err, "read scratch file")
	}

	release, err := b.gate.Acquire(ctx)
	if err != nil {
		return nil, fail(err, "wait for remote slot")
	}
	defer release()

	body, err := json.Marshal(remoteRequest{
		FileID:        in.FileID,
		SourceURL:     in.SourceURL,
		FileName:      in.FileName,
		ContentBase64: base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fail(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, fail(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	started := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fail(err, "remote call")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, goerr.Wrap(core.ErrConversion, "remote returned error status",
			goerr.V("backend", BackendRemote),
			goerr.V("file_id", in.FileID),
			goerr.V("status", resp.StatusCode),
		)
	}

	var out remoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fail(err, "malformed response")
	}
	if !out.Success {
		return nil, fail(goerr.New(out.Error), "remote reported failure")
	}

	res := &Result{
		PageCount:         out.PageCount,
		ProcessingSeconds: out.ProcessingTime,
		Backend:           BackendRemote,
	}
	if res.ProcessingSeconds == 0 {
		res.ProcessingSeconds = time.Since(started).Seconds()
	}

	switch {
	case hasLayout(out.DocJSON):
		var l markdown.Layout
		if err := json.Unmarshal(out.DocJSON, &l); err != nil {
			return nil, fail(err, "malformed doc_json")
		}
		md, err := markdown.RenderLayout(&l)
		if err != nil {
			return nil, fail(err, "unrenderable doc_json")
		}
		res.LayoutJSON = out.DocJSON
		res.Markdown = md
		if res.PageCount == 0 {
			res.PageCount = len(l.Pages)
		}
	case out.Markdown != "":
		res.Markdown = markdown.PostProcess(out.Markdown)
	default:
		return nil, fail(nil, "remote returned neither layout nor markdown")
	}
	return res, nil
}

func hasLayout(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
