package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// DefaultPresignExpiry bounds how long a presigned artifact URL stays valid.
const DefaultPresignExpiry = 15 * time.Minute

// S3Options configures an S3Storage.
type S3Options struct {
	Bucket string
	Region string

	// Endpoint overrides the service endpoint, e.g. for MinIO.
	Endpoint     string
	UsePathStyle bool

	// Prefix is prepended to every object key.
	Prefix        string
	PresignExpiry time.Duration
}

// S3Storage implements BlobStorage using AWS S3.
type S3Storage struct {
	client            *s3.Client
	presignClient     *s3.PresignClient
	bucket            string
	prefix            string
	presignExpiration time.Duration
}

// NewS3Storage creates a new S3 storage client using the SDK's default
// credential chain.
func NewS3Storage(ctx context.Context, opts S3Options) (*S3Storage, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name cannot be empty")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("S3 region cannot be empty")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	expiry := opts.PresignExpiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}

	return &S3Storage{
		client:            client,
		presignClient:     s3.NewPresignClient(client),
		bucket:            opts.Bucket,
		prefix:            strings.Trim(opts.Prefix, "/"),
		presignExpiration: expiry,
	}, nil
}

// Upload stores data from the reader at the specified path.
func (s *S3Storage) Upload(ctx context.Context, p string, reader io.Reader) error {
	key, err := s.key(p)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(ContentType(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	return nil
}

// Download retrieves data from the specified path.
func (s *S3Storage) Download(ctx context.Context, p string) (io.ReadCloser, error) {
	key, err := s.key(p)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFoundError(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	return result.Body, nil
}

// Delete removes the data at the specified path.
func (s *S3Storage) Delete(ctx context.Context, p string) error {
	key, err := s.key(p)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFoundError(err) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to delete from S3: %w", err)
	}

	return nil
}

// Exists checks if data exists at the specified path.
func (s *S3Storage) Exists(ctx context.Context, p string) (bool, error) {
	key, err := s.key(p)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check S3 object existence: %w", err)
	}

	return true, nil
}

// List pages through the objects under prefix and returns their paths
// relative to the storage prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.join(prefix)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})

	var out []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list S3 objects: %w", err)
		}
		for _, obj := range page.Contents {
			out = append(out, s.strip(aws.ToString(obj.Key)))
		}
	}
	sort.Strings(out)
	return out, nil
}

// GetURL returns a presigned URL for accessing the data at the specified path.
func (s *S3Storage) GetURL(ctx context.Context, p string) (string, error) {
	key, err := s.key(p)
	if err != nil {
		return "", err
	}

	exists, err := s.Exists(ctx, p)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrFileNotFound
	}

	presignResult, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.presignExpiration
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return presignResult.URL, nil
}

// key validates p and maps it to an object key.
func (s *S3Storage) key(p string) (string, error) {
	if err := validatePath(p); err != nil {
		return "", err
	}
	return s.join(path.Clean(strings.ReplaceAll(p, "\\", "/"))), nil
}

func (s *S3Storage) join(p string) string {
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

func (s *S3Storage) strip(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+"/")
}

// validatePath rejects empty, absolute and parent-relative paths.
func validatePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}

	p = strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("%w: absolute paths not allowed", ErrInvalidPath)
	}

	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: path traversal detected", ErrInvalidPath)
	}

	return nil
}

// isS3NotFoundError checks if an error is an S3 "not found" error.
func isS3NotFoundError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}
