package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	appConfig "alistmirror/config"
	"alistmirror/internal/models"
)

// ErrAppendUnsupported is returned by Create when a non zero offset is asked
// of a store that can only write whole objects.
var ErrAppendUnsupported = errors.New("storage: append not supported")

// Store is the destination of a mirror. Names are slash separated and
// relative to the store root.
type Store interface {
	EnsureDir(ctx context.Context, dir string) error
	// Size returns the current size of name and whether it exists.
	Size(ctx context.Context, name string) (int64, bool, error)
	// Create opens name for writing. Offset 0 truncates, a positive offset
	// appends to an object of exactly that size.
	Create(ctx context.Context, name string, offset int64) (io.WriteCloser, error)
	SupportsAppend() bool
	Stat(ctx context.Context) (*models.StoreInfo, error)
	Describe() string
}

// Open picks a store for destination: s3://bucket/prefix or a local directory.
func Open(ctx context.Context, destination string, cfg appConfig.S3Config) (Store, error) {
	if strings.HasPrefix(destination, "s3://") {
		bucket, prefix, err := ParseS3URL(destination)
		if err != nil {
			return nil, err
		}
		return NewS3Store(ctx, cfg, bucket, prefix)
	}
	return NewLocalStore(destination)
}

func ParseS3URL(destination string) (string, string, error) {
	rest := strings.TrimPrefix(destination, "s3://")
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid s3 destination %q: missing bucket", destination)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}
