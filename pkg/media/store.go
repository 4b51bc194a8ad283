package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/platinummonkey/thoughtnest/pkg/config"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
)

// ErrStorageDisabled is returned by the store used when no backend is
// configured.
var ErrStorageDisabled = errors.New("object storage is not configured")

// ObjectStore puts objects into a bucket and returns their public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

// NewObjectStore builds the backend selected by cfg.Backend.
func NewObjectStore(ctx context.Context, cfg config.ObjectStoreConfig, logger *observability.Logger) (ObjectStore, error) {
	switch cfg.Backend {
	case config.ObjectStoreS3:
		return NewS3Store(ctx, cfg)
	case config.ObjectStoreMinio:
		return NewMinioStore(ctx, cfg)
	case config.ObjectStoreNone, "":
		if logger != nil {
			logger.Warn("object storage not configured, image uploads will fail")
		}
		return disabledStore{}, nil
	default:
		return nil, fmt.Errorf("unknown object store backend: %s", cfg.Backend)
	}
}

type disabledStore struct{}

func (disabledStore) Put(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", ErrStorageDisabled
}

func (disabledStore) Delete(context.Context, string) error {
	return ErrStorageDisabled
}

func (disabledStore) HealthCheck(context.Context) error {
	return nil
}

// objectURL joins base and key with exactly one slash.
func objectURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
