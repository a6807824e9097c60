// Package storage keeps replay artifacts: baseline, replay and diff
// screenshots and the error captures taken when a step fails.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// BlobStorage defines the interface for storing and retrieving artifacts.
type BlobStorage interface {
	// Upload stores data from the reader at the specified path.
	Upload(ctx context.Context, path string, reader io.Reader) error

	// Download retrieves data from the specified path.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the data at the specified path.
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the specified path.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths stored under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// GetURL returns a URL for accessing the data at the specified path.
	// For local storage, this returns the file path on disk.
	GetURL(ctx context.Context, path string) (string, error)
}

// Config selects and configures a BlobStorage backend.
type Config struct {
	Type    string
	BaseDir string

	Bucket        string
	Region        string
	Endpoint      string
	Prefix        string
	UsePathStyle  bool
	PresignExpiry time.Duration
}

// New creates a BlobStorage implementation based on configuration.
func New(ctx context.Context, cfg Config) (BlobStorage, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "local":
		if cfg.BaseDir == "" {
			return nil, fmt.Errorf("base_dir is required for local storage")
		}
		return NewLocalStorage(cfg.BaseDir)

	case "s3":
		s3Storage, err := NewS3Storage(ctx, S3Options{
			Bucket:        cfg.Bucket,
			Region:        cfg.Region,
			Endpoint:      cfg.Endpoint,
			Prefix:        cfg.Prefix,
			UsePathStyle:  cfg.UsePathStyle,
			PresignExpiry: cfg.PresignExpiry,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		return s3Storage, nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// ArtifactPath builds the storage path of a replay artifact. Every segment
// is reduced to its base name so story and flow names cannot escape the
// artifact root.
func ArtifactPath(storyName, flowName, file string) string {
	return path.Join(segment(storyName), segment(flowName), segment(file))
}

// ArtifactDir is the directory holding every artifact of one flow.
func ArtifactDir(storyName, flowName string) string {
	return path.Join(segment(storyName), segment(flowName))
}

func segment(s string) string {
	s = strings.ReplaceAll(s, "\\", "/")
	s = path.Base(path.Clean("/" + s))
	if s == "/" || s == "." || s == "" {
		return "_"
	}
	return s
}

// ContentType guesses the MIME type of an artifact from its extension.
func ContentType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
