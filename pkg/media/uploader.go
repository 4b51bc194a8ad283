package media

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
)

const (
	keyPrefix       = "articles/"
	maxFilenameLen  = 100
	defaultFilename = "image"
)

// Uploader validates article images and writes them to an ObjectStore.
type Uploader struct {
	store    ObjectStore
	maxBytes int64
	metrics  *observability.Metrics
	newID    func() string
}

// NewUploader creates an Uploader. maxBytes <= 0 disables the size check;
// metrics may be nil.
func NewUploader(store ObjectStore, maxBytes int64, metrics *observability.Metrics) *Uploader {
	return &Uploader{
		store:    store,
		maxBytes: maxBytes,
		metrics:  metrics,
		newID:    uuid.NewString,
	}
}

// Store uploads an image and returns its public URL. Non-image content and
// oversized bodies are validation failures; store errors are upstream
// failures.
func (u *Uploader) Store(ctx context.Context, filename string, body io.Reader, size int64, contentType string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		u.record("rejected", 0)
		return "", apperr.Validation("Only image files are allowed", map[string]string{"image": "must be an image"})
	}
	if size == 0 {
		u.record("rejected", 0)
		return "", apperr.Validation("Image file is empty", map[string]string{"image": "is required"})
	}
	if u.maxBytes > 0 && size > u.maxBytes {
		u.record("rejected", 0)
		return "", apperr.Validation("Image file is too large", map[string]string{"image": "exceeds the upload limit"})
	}

	key := keyPrefix + u.newID() + "-" + SanitizeFilename(filename)

	url, err := u.store.Put(ctx, key, body, size, contentType)
	if err != nil {
		observability.FromContext(ctx).WithError(err).WithField("key", key).Error("image upload failed")
		u.record("failed", 0)
		return "", apperr.Upstream("Failed to upload image", err)
	}

	u.record("stored", size)
	return url, nil
}

func (u *Uploader) record(outcome string, size int64) {
	if u.metrics == nil {
		return
	}
	u.metrics.UploadsTotal.WithLabelValues(outcome).Inc()
	if size > 0 {
		u.metrics.UploadBytes.Observe(float64(size))
	}
}

// SanitizeFilename keeps the base name of filename restricted to letters,
// digits, dot, dash and underscore.
func SanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	name := strings.Trim(b.String(), "._")
	if name == "" {
		return defaultFilename
	}
	if len(name) > maxFilenameLen {
		name = name[len(name)-maxFilenameLen:]
	}
	return name
}
