package certificate

import (
	"context"
	"fmt"
	"log/slog"

	"feria/internal/platform/config"
)

// Store is implemented by every certificate backend.
type Store interface {
	Save(ctx context.Context, taxID string, content []byte, filename string) (string, error)
	Remove(ctx context.Context, location string) error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*S3Store)(nil)
	_ Store = (*GCSStore)(nil)
)

// New creates the backend selected by cfg.Backend.
func New(ctx context.Context, cfg config.Upload, log *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		return NewFileStore(cfg.Dir, log)
	case config.BackendS3:
		return NewS3Store(S3Config{
			Bucket:    cfg.Bucket,
			Prefix:    cfg.Prefix,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		}, log)
	case config.BackendGCS:
		return NewGCSStore(ctx, cfg.Bucket, cfg.Prefix, cfg.GCSCredentialsJSON, log)
	default:
		return nil, fmt.Errorf("unsupported certificate backend %q", cfg.Backend)
	}
}
