package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"feria/pkg/requestcontext"
)

// GCSStore keeps certificates in a Google Cloud Storage bucket.
// Save returns the object name.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	log    *slog.Logger
}

// NewGCSStore creates a client from explicit credentials JSON when given,
// falling back to application default credentials.
func NewGCSStore(ctx context.Context, bucket, prefix, credentialsJSON string, log *slog.Logger) (*GCSStore, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &GCSStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}, nil
}

func (s *GCSStore) object(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Save writes with a does-not-exist precondition so a taken name fails with
// 412 and the next candidate is tried.
func (s *GCSStore) Save(ctx context.Context, taxID string, content []byte, filename string) (string, error) {
	contentType := mimetype.Detect(content).String()
	return saveExclusive(ctx, taxID, filename, requestcontext.Now(ctx), func(ctx context.Context, name string) (string, error) {
		objectName := s.object(name)
		w := s.client.Bucket(s.bucket).Object(objectName).
			If(storage.Conditions{DoesNotExist: true}).
			NewWriter(ctx)
		w.ContentType = contentType

		if _, err := w.Write(content); err != nil {
			_ = w.Close()
			return "", classifyGCSError(err, "write")
		}
		if err := w.Close(); err != nil {
			return "", classifyGCSError(err, "close")
		}
		s.log.DebugContext(ctx, "stored certificate in GCS",
			slog.String("bucket", s.bucket),
			slog.String("object", objectName),
			slog.String("content_type", contentType))
		return objectName, nil
	})
}

// Remove deletes the object; a missing object is not an error.
func (s *GCSStore) Remove(ctx context.Context, objectName string) error {
	if s.prefix != "" && !strings.HasPrefix(objectName, s.prefix+"/") {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, objectName)
	}
	err := s.client.Bucket(s.bucket).Object(objectName).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete certificate object: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func classifyGCSError(err error, op string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return ErrExists
	}
	return fmt.Errorf("failed to %s certificate object: %w", op, err)
}
