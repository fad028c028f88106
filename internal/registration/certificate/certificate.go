// Package certificate stores the food-handling certificate attached to a
// registration. Backends write each artifact under a fresh name and never
// overwrite an existing one, so a failed registration can delete exactly the
// artifact it wrote.
package certificate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	timestampLayout = "20060102_150405"
	// maxAttempts bounds the suffix search when several artifacts for the same
	// tax id land in the same second.
	maxAttempts = 100
	// maxTaxIDLen and maxExtLen keep every candidate name well under the
	// 255 byte file name limit of common filesystems.
	maxTaxIDLen = 64
	maxExtLen   = 16
	hashLen     = 8
)

var (
	// ErrExists is returned by a backend's exclusive create when the name is taken.
	ErrExists = errors.New("certificate object already exists")
	// ErrOutsideRoot is returned when asked to remove a path the store does not own.
	ErrOutsideRoot = errors.New("certificate path outside storage root")
	// ErrNoFreeName means every candidate name was taken.
	ErrNoFreeName = errors.New("no free certificate name")
)

// ObjectName builds the artifact name {taxID}_{YYYYMMDD_HHMMSS}{ext}.
// The tax id is sanitized and ext comes from the uploaded file name. Tax ids
// longer than maxTaxIDLen are cut and suffixed with a short hash of the full
// value, so distinct long ids still map to distinct names.
func ObjectName(taxID, filename string, at time.Time) string {
	return candidateName(taxID, filename, at, 0)
}

func candidateName(taxID, filename string, at time.Time, attempt int) string {
	base := taxIDComponent(taxID) + "_" + at.Format(timestampLayout)
	if attempt > 0 {
		base = fmt.Sprintf("%s_%d", base, attempt)
	}
	return base + Extension(filename)
}

func taxIDComponent(taxID string) string {
	clean := SanitizeTaxID(taxID)
	if len(clean) <= maxTaxIDLen {
		return clean
	}
	sum := sha256.Sum256([]byte(taxID))
	return clean[:maxTaxIDLen-hashLen-1] + "-" + hex.EncodeToString(sum[:])[:hashLen]
}

// SanitizeTaxID maps every character outside [A-Za-z0-9_-] to '_', so the
// result is always a single path component.
func SanitizeTaxID(taxID string) string {
	var b strings.Builder
	b.Grow(len(taxID))
	for _, r := range taxID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Extension returns the sanitized extension of the client supplied file name.
func Extension(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	ext := filepath.Ext(base)
	if ext == "" || ext == "." {
		return ""
	}
	ext = SanitizeTaxID(ext[1:])
	if len(ext) > maxExtLen {
		ext = ext[:maxExtLen]
	}
	return "." + ext
}

// createFunc writes content under name exclusively. It returns ErrExists when
// the name is taken and the stored location otherwise.
type createFunc func(ctx context.Context, name string) (string, error)

// saveExclusive tries candidate names in order until create succeeds.
func saveExclusive(ctx context.Context, taxID, filename string, at time.Time, create createFunc) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		location, err := create(ctx, candidateName(taxID, filename, at, attempt))
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return location, nil
	}
	return "", fmt.Errorf("%w for tax id %q after %d attempts", ErrNoFreeName, taxID, maxAttempts)
}
