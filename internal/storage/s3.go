package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"docsign/internal/config"
	"docsign/internal/docsign"
)

// S3Store stores objects in an S3 bucket (or any S3-compatible endpoint).
// Public URLs are presigned GETs when a presign TTL is configured, otherwise
// they are formed from the public base URL or the bucket's virtual-host URL.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	presigner  *s3.PresignClient
	bucket     string
	prefix     string
	region     string
	baseURL    string
	presignTTL time.Duration
	maxSize    int64
}

// NewS3Store builds an S3Store from configuration. A custom endpoint
// switches the client to path-style addressing; without credentials in the
// environment, the static "test" credentials LocalStack accepts are used.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires bucket to be set")
	}
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.S3Endpoint != "" && os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		presigner:  s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		prefix:     cfg.S3Prefix,
		region:     region,
		baseURL:    cfg.PublicBaseURL,
		presignTTL: cfg.S3PresignTTL.Duration,
		maxSize:    cfg.MaxObjectSize,
	}, nil
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

// Put uploads the object with the multipart-capable upload manager.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s.maxSize > 0 && size > s.maxSize {
		return fmt.Errorf("%w: %d > %d bytes", docsign.ErrObjectTooLarge, size, s.maxSize)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          r,
		ContentLength: aws.Int64(size),
		CacheControl:  aws.String("max-age=3600"),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return classifyS3Error("uploading object", err)
	}
	return nil
}

// Get downloads the object into w.
func (s *S3Store) Get(ctx context.Context, key string, w io.Writer) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return classifyS3Error("getting object", err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading object body: %w", err)
	}
	return nil
}

// Stat issues a HEAD request for the object.
func (s *S3Store) Stat(ctx context.Context, key string) (*docsign.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, classifyS3Error("stat object", err)
	}
	return &docsign.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// PublicURL returns a retrievable reference for the object.
func (s *S3Store) PublicURL(ctx context.Context, key string) (string, error) {
	full := s.objectKey(key)
	if s.presignTTL > 0 {
		req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(full),
		}, s3.WithPresignExpires(s.presignTTL))
		if err != nil {
			return "", fmt.Errorf("failed to presign get object: %w", err)
		}
		return req.URL, nil
	}
	if s.baseURL != "" {
		return publicURL(s.baseURL, full), nil
	}
	return publicURL(fmt.Sprintf("https://%s.s3.%s.amazonaws.com", s.bucket, s.region), full), nil
}

// Delete removes the object. S3 treats deleting a missing key as success.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return classifyS3Error("deleting object", err)
	}
	return nil
}

// classifyS3Error maps S3 error codes onto the object store sentinels.
func classifyS3Error(op string, err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return fmt.Errorf("%s: %w", op, docsign.ErrObjectNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "EntityTooLarge":
			return fmt.Errorf("%s: %w: %v", op, docsign.ErrObjectTooLarge, err)
		case "AccessDenied", "Forbidden", "AllAccessDisabled":
			return fmt.Errorf("%s: %w: %v", op, docsign.ErrPermissionDenied, err)
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%s: %w", op, docsign.ErrObjectNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Compile-time check that S3Store implements docsign.ObjectStore
var _ docsign.ObjectStore = (*S3Store)(nil)
