package publish

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/shardex/internal/config"
)

// DefaultConcurrency is the number of chunk uploads in flight
const DefaultConcurrency = 4

const contentType = "application/x-ndjson"

// ErrNotConfigured is returned by New when the endpoint or bucket is missing
var ErrNotConfigured = errors.New("publish endpoint and bucket are required")

// bucketAPI is the subset of *minio.Client the publisher uses
type bucketAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher uploads chunk files and their index to an S3-compatible bucket
type Publisher struct {
	client      bucketAPI
	bucket      string
	prefix      string
	region      string
	concurrency int
	retry       RetryConfig
	logger      *zap.Logger
}

// Option configures a Publisher
type Option func(*Publisher)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithConcurrency sets how many chunk uploads run at once
func WithConcurrency(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithRetry sets the upload retry policy
func WithRetry(cfg RetryConfig) Option {
	return func(p *Publisher) {
		p.retry = cfg
	}
}

// New creates a Publisher backed by a minio client
func New(cfg config.PublishConfig, opts ...Option) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return newPublisher(client, cfg, opts...), nil
}

func newPublisher(client bucketAPI, cfg config.PublishConfig, opts ...Option) *Publisher {
	p := &Publisher{
		client:      client,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		region:      cfg.Region,
		concurrency: DefaultConcurrency,
		retry:       DefaultRetryConfig(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns the object name for a local file
func (p *Publisher) Key(localPath string) string {
	return path.Join(p.prefix, filepath.Base(localPath))
}

// Publish uploads every chunk and then the index. The index goes last so
// that a visible index implies its chunks are already in place.
func (p *Publisher) Publish(ctx context.Context, chunkPaths []string, indexPath string) error {
	if err := p.ensureBucket(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, chunk := range chunkPaths {
		g.Go(func() error {
			_, err := p.put(gctx, chunk)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	info, err := p.put(ctx, indexPath)
	if err != nil {
		return err
	}

	p.logger.Info("published run",
		zap.String("bucket", p.bucket),
		zap.String("index", info.Key),
		zap.Int("chunks", len(chunkPaths)))
	return nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", p.bucket, err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", p.bucket, err)
	}
	return nil
}

func (p *Publisher) put(ctx context.Context, localPath string) (minio.UploadInfo, error) {
	key := p.Key(localPath)
	info, err := retryWithBackoff(ctx, p.retry, func() (minio.UploadInfo, error) {
		return p.client.FPutObject(ctx, p.bucket, key, localPath, minio.PutObjectOptions{
			ContentType: contentType,
		})
	})
	if err != nil {
		return info, fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	p.logger.Debug("uploaded object",
		zap.String("key", key),
		zap.String("size", humanize.Bytes(uint64(info.Size))))
	return info, nil
}
