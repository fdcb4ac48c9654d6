package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roach88/cubist/internal/cube"
)

// ErrObjectNotFound is returned by ObjectClient.Download for missing keys.
var ErrObjectNotFound = errors.New("object not found")

// ObjectClient defines the object storage operations ObjectStore needs.
type ObjectClient interface {
	// Upload stores data under bucket/key in a single request.
	Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error

	// Download returns the object's bytes, or ErrObjectNotFound.
	Download(ctx context.Context, bucket, key string) ([]byte, error)

	// List returns object keys with the given prefix.
	List(ctx context.Context, bucket, prefix string) ([]string, error)

	// EnsureBucket ensures the bucket exists.
	EnsureBucket(ctx context.Context, bucket string) error
}

// S3Config holds S3/MinIO configuration.
type S3Config struct {
	// Endpoint is the S3/MinIO endpoint (e.g., "localhost:9000").
	Endpoint string

	AccessKey string
	SecretKey string

	// UseSSL enables SSL for the connection.
	UseSSL bool

	// Region is the S3 region (optional for MinIO).
	Region string

	Bucket string

	// Prefix is prepended to every object key, e.g. "cubist/collisions".
	Prefix string
}

// MinIOClient implements ObjectClient using the MinIO SDK.
type MinIOClient struct {
	client *minio.Client
	logger *slog.Logger
}

// NewMinIOClient creates a new MinIO S3 client.
func NewMinIOClient(cfg S3Config, logger *slog.Logger) (*MinIOClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOClient{
		client: client,
		logger: logger.With("component", "s3-client"),
	}, nil
}

// Upload uploads data to the specified bucket and key.
func (c *MinIOClient) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, contentType string) error {
	info, err := c.client.PutObject(ctx, bucket, key, data, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload object: %w", err)
	}

	c.logger.Debug("object uploaded",
		"bucket", bucket,
		"key", key,
		"size", info.Size,
	)
	return nil
}

// Download reads a whole object.
func (c *MinIOClient) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

// List returns every object key under prefix.
func (c *MinIOClient) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for info := range c.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list objects: %w", info.Err)
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

// EnsureBucket ensures the bucket exists, creating it if necessary.
func (c *MinIOClient) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket exists: %w", err)
	}
	if exists {
		return nil
	}

	if err := c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}

	c.logger.Info("bucket created", "bucket", bucket)
	return nil
}

var _ ObjectClient = (*MinIOClient)(nil)

// ObjectStore keeps one Parquet object per key in a bucket. A single
// PutObject replaces the object atomically, so readers see the old or the
// new artifact.
type ObjectStore struct {
	client ObjectClient
	bucket string
	prefix string
}

// NewObjectStore ensures the bucket exists and returns the store.
func NewObjectStore(ctx context.Context, client ObjectClient, bucket, prefix string) (*ObjectStore, error) {
	if bucket == "" {
		return nil, cube.NewConfigError("object store bucket is required")
	}
	if err := client.EnsureBucket(ctx, bucket); err != nil {
		return nil, err
	}
	return &ObjectStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *ObjectStore) objectKey(key string) string {
	return path.Join(s.prefix, key+parquetExt)
}

// Put uploads the encoded artifact.
func (s *ObjectStore) Put(ctx context.Context, a *cube.Artifact) error {
	if err := checkKey(a.Key); err != nil {
		return err
	}
	data, err := EncodeParquet(a)
	if err != nil {
		return fmt.Errorf("put %s: %w", a.Key, err)
	}
	if err := ctx.Err(); err != nil {
		return cube.NewPartialWriteError(a.Key, err)
	}
	err = s.client.Upload(ctx, s.bucket, s.objectKey(a.Key), bytes.NewReader(data), int64(len(data)), "application/vnd.apache.parquet")
	if err != nil {
		return cube.NewPartialWriteError(a.Key, err)
	}
	return nil
}

// Get downloads and verifies the artifact under key.
func (s *ObjectStore) Get(ctx context.Context, key string) (*cube.Artifact, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, err := s.client.Download(ctx, s.bucket, s.objectKey(key))
	if errors.Is(err, ErrObjectNotFound) {
		return nil, cube.NewNotFoundError(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	a, err := DecodeParquet(data)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	if a.Key != key {
		return nil, fmt.Errorf("get %s: object holds artifact %q", key, a.Key)
	}
	return a, nil
}

// Keys lists stored keys under the prefix.
func (s *ObjectStore) Keys(ctx context.Context) ([]string, error) {
	prefix := ""
	if s.prefix != "" {
		prefix = s.prefix + "/"
	}
	objects, err := s.client.List(ctx, s.bucket, prefix)
	if err != nil {
		return nil, err
	}
	keys := []string{}
	for _, o := range objects {
		name := strings.TrimPrefix(o, prefix)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, parquetExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, parquetExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op; the MinIO client holds no resources.
func (s *ObjectStore) Close() error {
	return nil
}

var _ Store = (*ObjectStore)(nil)
