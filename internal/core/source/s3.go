package source

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/config"
	"github.com/markdave123-py/Docketgraph/internal/core"
)

// S3Source treats the file id as an object key under an optional prefix.
type S3Source struct {
	objects core.ObjectClient
	bucket  string
	prefix  string
}

var _ core.DocumentSource = (*S3Source)(nil)

func NewS3Source(objects core.ObjectClient, bucket, prefix string) *S3Source {
	return &S3Source{objects: objects, bucket: bucket, prefix: prefix}
}

func (s *S3Source) key(fileID string) string {
	if s.prefix == "" {
		return fileID
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + strings.TrimPrefix(fileID, "/")
}

func (s *S3Source) Download(ctx context.Context, fileID string, w io.WriterAt) (*core.SourceFile, error) {
	if fileID == "" {
		return nil, goerr.Wrap(core.ErrAcquisition, "empty file id")
	}
	key := s.key(fileID)
	n, err := s.objects.DownloadToFile(ctx, s.bucket, key, w)
	if err != nil {
		return nil, goerr.Wrap(fmt.Errorf("%w: %w", core.ErrAcquisition, err), "download object",
			goerr.V("file_id", fileID), goerr.V("key", key))
	}
	name := path.Base(key)
	return &core.SourceFile{
		FileName:    name,
		ContentType: mime.TypeByExtension(path.Ext(name)),
		SourceURL:   fmt.Sprintf("s3://%s/%s", s.bucket, key),
		Size:        n,
	}, nil
}

// New builds the configured document source. objects may be nil unless the
// kind is s3.
func New(cfg config.SourceConfig, objects core.ObjectClient, bucket string) (core.DocumentSource, error) {
	switch cfg.Kind {
	case KindDirectus, "":
		if cfg.BaseURL == "" {
			return nil, goerr.New("DIRECTUS_URL is empty")
		}
		return NewDirectusSource(DirectusConfig{
			BaseURL:    cfg.BaseURL,
			Token:      cfg.Token,
			Timeout:    cfg.Timeout.Duration,
			RPS:        cfg.RPS,
			MaxRetries: 2,
		}), nil
	case KindS3:
		if objects == nil {
			return nil, goerr.New("s3 source needs an object client")
		}
		return NewS3Source(objects, bucket, cfg.Prefix), nil
	default:
		return nil, goerr.New("unknown source kind", goerr.V("kind", cfg.Kind))
	}
}
