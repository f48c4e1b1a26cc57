package objectclient

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/m-mizutani/goerr/v2"

	"github.com/markdave123-py/Docketgraph/internal/config"
	"github.com/markdave123-py/Docketgraph/internal/core"
	"github.com/markdave123-py/Docketgraph/internal/logging"
)

// API is the subset of the S3 client the uploader, downloader and delete
// call need.
type API interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Client struct {
	client API
	region string
	bucket string
}

var _ core.ObjectClient = (*S3Client)(nil)

// NewS3Client uses static credentials when both keys are set and the
// default AWS credential chain otherwise.
func NewS3Client(ctx context.Context, cfg config.StorageConfig) (*S3Client, error) {
	if cfg.AwsRegion == "" {
		return nil, goerr.New("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, goerr.New("S3 bucket name not set")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "load aws config")
	}

	logging.From(ctx).Info("s3 client ready", "region", cfg.AwsRegion, "bucket", cfg.BucketName)
	return NewWithAPI(s3.NewFromConfig(awsCfg), cfg.AwsRegion, cfg.BucketName), nil
}

func NewWithAPI(api API, region, bucket string) *S3Client {
	return &S3Client{client: api, region: region, bucket: bucket}
}

// Bucket is the configured default bucket.
func (c *S3Client) Bucket() string { return c.bucket }

func (c *S3Client) orDefault(bucket string) string {
	if bucket == "" {
		return c.bucket
	}
	return bucket
}

// UploadFile streams data to S3 and returns the object URL.
func (c *S3Client) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	bucket = c.orDefault(bucket)
	uploader := manager.NewUploader(c.client)

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", goerr.Wrap(err, "s3 upload failed", goerr.V("bucket", bucket), goerr.V("key", key))
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.region, key), nil
}

// DownloadToFile writes the object into w using concurrent ranged GETs.
func (c *S3Client) DownloadToFile(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	bucket = c.orDefault(bucket)
	downloader := manager.NewDownloader(c.client)

	n, err := downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, goerr.Wrap(err, "s3 download failed", goerr.V("bucket", bucket), goerr.V("key", key))
	}
	return n, nil
}

func (c *S3Client) DeleteFile(ctx context.Context, bucket, key string) error {
	bucket = c.orDefault(bucket)
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return goerr.Wrap(err, "s3 delete failed", goerr.V("bucket", bucket), goerr.V("key", key))
	}
	return nil
}
