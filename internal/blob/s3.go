package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/config"
)

// s3API is the subset of *s3.Client used for reads and deletes.
type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// uploader is the subset of *manager.Uploader used for writes.
type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store stores objects in an S3 bucket (or an S3-compatible endpoint).
type S3Store struct {
	client   s3API
	uploader uploader
	bucket   string
	prefix   string
	baseURL  string
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewS3Store builds a client from cfg. Static credentials are used when an
// access key is configured, otherwise the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg config.BlobConfig, logger *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey.Value(), "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	logger.Info("using s3 blob store",
		zap.String("bucket", cfg.Bucket),
		zap.String("region", cfg.Region),
		zap.String("endpoint", cfg.Endpoint))

	return newS3Store(client, manager.NewUploader(client), cfg.Bucket, cfg.Prefix, baseURL, logger), nil
}

func newS3Store(client s3API, up uploader, bucket, prefix, baseURL string, logger *zap.Logger) *S3Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{
		client:   client,
		uploader: up,
		bucket:   bucket,
		prefix:   prefix,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}
}

// Put implements Store. Large bodies are sent as multipart uploads.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	ctx, span := s.tracer.Start(ctx, "blob.s3.Put", trace.WithAttributes(
		attribute.String("blob.key", key),
		attribute.Int64("blob.size", size)))
	defer span.End()

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.prefix + key),
		Body:        r,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.uploader.Upload(ctx, in); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return Object{}, fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.logger.Debug("object uploaded", zap.String("key", key), zap.Int64("size", size))
	return Object{Key: key, ContentType: contentType, Size: size, URL: s.URL(key)}, nil
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	ctx, span := s.tracer.Start(ctx, "blob.s3.Get", trace.WithAttributes(attribute.String("blob.key", key)))
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "get failed")
		return nil, "", fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, aws.ToString(out.ContentType), nil
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	ctx, span := s.tracer.Start(ctx, "blob.s3.Delete", trace.WithAttributes(attribute.String("blob.key", key)))
	defer span.End()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// URL implements Store.
func (s *S3Store) URL(key string) string {
	return s.baseURL + "/" + s.prefix + key
}
