package certificate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/gabriel-vasile/mimetype"

	"feria/pkg/requestcontext"
)

// S3Store keeps certificates in an S3 (or S3 compatible) bucket.
// Save returns the object key.
type S3Store struct {
	client s3iface.S3API
	bucket string
	prefix string
	log    *slog.Logger
}

// S3Config holds connection settings for an S3 bucket.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// NewS3Store builds an S3 client from cfg. Without static keys the default
// AWS credential chain applies.
func NewS3Store(cfg S3Config, log *slog.Logger) (*S3Store, error) {
	awsCfg := aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	sess, err := session.NewSession(&awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return NewS3StoreWithClient(s3.New(sess), cfg.Bucket, cfg.Prefix, log), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client s3iface.S3API, bucket, prefix string, log *slog.Logger) *S3Store {
	if log == nil {
		log = slog.Default()
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		log:    log,
	}
}

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Save checks for an existing object before each put. S3 has no exclusive
// create here, so two writers racing on the same key between check and put
// can still collide; the timestamp plus tax id uniqueness keeps that window small.
func (s *S3Store) Save(ctx context.Context, taxID string, content []byte, filename string) (string, error) {
	contentType := mimetype.Detect(content).String()
	return saveExclusive(ctx, taxID, filename, requestcontext.Now(ctx), func(ctx context.Context, name string) (string, error) {
		key := s.key(name)

		_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		switch {
		case err == nil:
			return "", ErrExists
		case !isS3NotFound(err):
			return "", fmt.Errorf("failed to check certificate object: %w", err)
		}

		_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(content),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return "", fmt.Errorf("failed to put certificate object: %w", err)
		}
		s.log.DebugContext(ctx, "stored certificate in S3",
			slog.String("bucket", s.bucket),
			slog.String("key", key),
			slog.String("content_type", contentType))
		return key, nil
	})
}

// Remove deletes the object. Deleting a missing key succeeds in S3.
func (s *S3Store) Remove(ctx context.Context, key string) error {
	if s.prefix != "" && !strings.HasPrefix(key, s.prefix+"/") {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, key)
	}
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isS3NotFound(err) {
		return fmt.Errorf("failed to delete certificate object: %w", err)
	}
	return nil
}

func isS3NotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
