package certificate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"feria/pkg/requestcontext"
)

// FileStore keeps certificates in a local directory.
type FileStore struct {
	root string
	log  *slog.Logger
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &FileStore{root: filepath.Clean(root), log: log}, nil
}

// Save writes content to a new file and returns its path (root joined with the name).
func (s *FileStore) Save(ctx context.Context, taxID string, content []byte, filename string) (string, error) {
	return saveExclusive(ctx, taxID, filename, requestcontext.Now(ctx), func(ctx context.Context, name string) (string, error) {
		path := filepath.Join(s.root, name)
		if err := writeExclusive(path, content); err != nil {
			return "", err
		}
		s.log.DebugContext(ctx, "stored certificate",
			slog.String("path", path),
			slog.Int("size", len(content)))
		return path, nil
	})
}

func writeExclusive(path string, content []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("failed to create certificate file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("failed to write certificate file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to close certificate file: %w", err)
	}
	return nil
}

// Remove deletes a file written by Save. A missing file is not an error.
func (s *FileStore) Remove(ctx context.Context, path string) error {
	if !s.owns(path) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove certificate file: %w", err)
	}
	s.log.DebugContext(ctx, "removed certificate", slog.String("path", path))
	return nil
}

func (s *FileStore) owns(path string) bool {
	rel, err := filepath.Rel(s.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}
