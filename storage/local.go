package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrFileNotFound is returned when a requested artifact does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidPath is returned when a path is invalid or contains path traversal.
	ErrInvalidPath = errors.New("invalid path")
)

// LocalStorage implements BlobStorage using the local filesystem.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates a new local filesystem storage.
// The baseDir will be created if it doesn't exist.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: base directory cannot be empty", ErrInvalidPath)
	}
	baseDir = filepath.Clean(baseDir)
	if baseDir == "." {
		return nil, fmt.Errorf("%w: base directory cannot be the working directory", ErrInvalidPath)
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{
		baseDir: baseDir,
	}, nil
}

// Upload writes the artifact to a temporary file next to its destination and
// renames it into place, so readers never observe a partial screenshot.
func (s *LocalStorage) Upload(ctx context.Context, path string, reader io.Reader) error {
	fullPath, err := s.validateAndJoinPath(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// Download retrieves data from the specified path.
func (s *LocalStorage) Download(ctx context.Context, path string) (io.ReadCloser, error) {
	fullPath, err := s.validateAndJoinPath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes the data at the specified path.
func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	fullPath, err := s.validateAndJoinPath(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrFileNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// Exists checks if data exists at the specified path.
func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := s.validateAndJoinPath(path)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return true, nil
}

// List walks the base directory and returns the slash-separated paths of
// regular files under prefix.
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// GetURL returns the on-disk path of the file.
func (s *LocalStorage) GetURL(ctx context.Context, path string) (string, error) {
	fullPath, err := s.validateAndJoinPath(path)
	if err != nil {
		return "", err
	}

	exists, err := s.Exists(ctx, path)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrFileNotFound
	}

	return fullPath, nil
}

// validateAndJoinPath joins path with the base directory and rejects any
// result that would land outside it.
func (s *LocalStorage) validateAndJoinPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: path cannot be empty", ErrInvalidPath)
	}

	fullPath := filepath.Join(s.baseDir, filepath.Clean(path))

	relPath, err := filepath.Rel(s.baseDir, fullPath)
	if err != nil || relPath == "." || strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("%w: path traversal detected", ErrInvalidPath)
	}

	return fullPath, nil
}
