package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config describes an S3-compatible endpoint.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// S3Store implements ObjectStore with minio-go.
type S3Store struct {
	client *minio.Client
	region string
}

// NewS3Store creates an S3/MinIO-backed store. Endpoint may be a host:port or a URL.
func NewS3Store(cfg Config) (*S3Store, error) {
	if cfg.Endpoint == "" {
		return nil, wrapError(CodeEndpointUnreachable, false, errors.New("endpoint is required"))
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, wrapError(CodeAuthInvalid, false, errors.New("credentials are required"))
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, wrapError(CodeEndpointUnreachable, false, errors.New("invalid endpoint URL"))
		}
		endpoint = u.Host
		useSSL = useSSL || u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, wrapError(CodeEndpointUnreachable, true, fmt.Errorf("failed to create minio client: %w", err))
	}
	return &S3Store{client: client, region: cfg.Region}, nil
}

func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
	if bucket == "" {
		return wrapError(CodeBucketNotFound, false, errors.New("bucket name is required"))
	}
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return classifyMinioError(err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return classifyMinioError(err)
	}
	return nil
}

func (s *S3Store) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	if bucket == "" || key == "" {
		return wrapError(CodeWriteFailed, false, errors.New("bucket and key are required"))
	}
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return classifyMinioError(err)
	}
	return nil
}

func (s *S3Store) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, wrapError(CodeObjectNotFound, false, errors.New("bucket and key are required"))
	}
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyMinioError(err)
	}
	return data, nil
}

func (s *S3Store) ListPrefix(ctx context.Context, bucket, prefix string) ([]string, error) {
	if bucket == "" {
		return nil, wrapError(CodeBucketNotFound, false, errors.New("bucket is required"))
	}
	var keys []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, classifyMinioError(obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// classifyMinioError maps minio-go errors to coded errors. The message is kept
// out of the wrapped error text for auth failures since it may echo key ids.
func classifyMinioError(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapError(CodeTimeout, true, err)
	}

	switch minio.ToErrorResponse(err).Code {
	case "NoSuchBucket":
		return wrapError(CodeBucketNotFound, false, err)
	case "NoSuchKey":
		return wrapError(CodeObjectNotFound, false, err)
	case "AccessDenied":
		return wrapError(CodePermissionDenied, false, err)
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return wrapError(CodeAuthInvalid, false, errors.New("credentials rejected"))
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return wrapError(CodeTimeout, true, err)
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return wrapError(CodeEndpointUnreachable, true, err)
	}
	return wrapError(CodeReadFailed, true, err)
}
