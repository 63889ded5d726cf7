// Package blob stores voice notes and feedback screenshots in object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/config"
	"github.com/stephdmurray-sys/nomee-sub001/internal/sanitize"
)

const instrumentationName = "github.com/stephdmurray-sys/nomee-sub001/internal/blob"

// Key prefixes by object kind.
const (
	KindImport = "imports"
	KindVoice  = "voice"
)

var (
	// ErrNotFound is returned when the key does not exist.
	ErrNotFound = errors.New("blob: object not found")

	// ErrTooLarge is returned when an object exceeds the configured size.
	ErrTooLarge = errors.New("blob: object too large")
)

// Object describes a stored object.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	URL         string
}

// Store is object storage.
type Store interface {
	// Put writes r under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)

	// Get opens key for reading. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns the externally visible URL for key.
	URL(key string) string
}

// NewKey builds "<kind>/<scope>/<uuid>-<sanitized filename>". scope is
// usually an owner or contribution id.
func NewKey(kind, scope, filename string) (string, error) {
	key := strings.ToLower(kind + "/" + scope + "/" + uuid.NewString() + "-" + sanitize.Filename(filename))
	if err := sanitize.ValidateObjectKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// NewFromConfig builds the configured Store.
func NewFromConfig(ctx context.Context, cfg config.BlobConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Type {
	case "memory", "":
		logger.Info("using in-memory blob store")
		return NewMemoryStore(cfg.PublicBaseURL), nil
	case "s3":
		s, err := NewS3Store(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("s3 blob store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob type %q", cfg.Type)
	}
}

// ReadAll reads key fully, refusing objects larger than limit bytes.
func ReadAll(ctx context.Context, s Store, key string, limit int64) ([]byte, string, error) {
	rc, contentType, err := s.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", key, err)
	}
	if int64(len(data)) > limit {
		return nil, "", ErrTooLarge
	}
	return data, contentType, nil
}
