package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/platinummonkey/thoughtnest/pkg/apperr"
	"github.com/platinummonkey/thoughtnest/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	puts    map[string]string
	putErr  error
	lastCT  string
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{puts: make(map[string]string)}
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	f.puts[key] = string(data)
	f.lastCT = contentType
	return "https://cdn.example.com/" + key, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStore) HealthCheck(context.Context) error { return nil }

func TestUploader_Store(t *testing.T) {
	store := newFakeStore()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	u := NewUploader(store, 1024, metrics)
	u.newID = func() string { return "0000-1111" }

	url, err := u.Store(context.Background(), "my photo.png", strings.NewReader("PNGDATA"), 7, "image/png")
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/articles/0000-1111-my_photo.png", url)
	assert.Equal(t, "PNGDATA", store.puts["articles/0000-1111-my_photo.png"])
	assert.Equal(t, "image/png", store.lastCT)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.UploadsTotal.WithLabelValues("stored")))
}

func TestUploader_Rejects(t *testing.T) {
	tests := []struct {
		name        string
		size        int64
		contentType string
		message     string
	}{
		{"not an image", 10, "application/pdf", "Only image files are allowed"},
		{"missing content type", 10, "", "Only image files are allowed"},
		{"empty", 0, "image/jpeg", "Image file is empty"},
		{"too large", 2048, "image/jpeg", "Image file is too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			u := NewUploader(store, 1024, nil)

			_, err := u.Store(context.Background(), "a.jpg", strings.NewReader("x"), tt.size, tt.contentType)
			require.Error(t, err)

			var appErr *apperr.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, apperr.KindValidationFailed, appErr.Kind)
			assert.Equal(t, tt.message, appErr.Message)
			assert.Empty(t, store.puts)
		})
	}
}

func TestUploader_StoreFailureIsUpstream(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New("connection reset")
	u := NewUploader(store, 0, nil)

	_, err := u.Store(context.Background(), "a.jpg", strings.NewReader("x"), 1, "image/jpeg")
	assert.True(t, apperr.Is(err, apperr.KindUpstreamFailure))
	assert.ErrorContains(t, err, "connection reset")
}

func TestUploader_DisabledStore(t *testing.T) {
	store, err := NewObjectStore(context.Background(), configNone(), nil)
	require.NoError(t, err)

	_, err = NewUploader(store, 0, nil).Store(context.Background(), "a.jpg", strings.NewReader("x"), 1, "image/jpeg")
	assert.True(t, apperr.Is(err, apperr.KindUpstreamFailure))
	assert.ErrorIs(t, err, ErrStorageDisabled)
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"photo.png":              "photo.png",
		"my photo (1).JPG":       "my_photo__1_.JPG",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\cat.gif`:    "cat.gif",
		"":                       "image",
		"...":                    "image",
		"ünïcode.png":            "n_code.png",
		strings.Repeat("a", 150): strings.Repeat("a", 100),
	}

	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
}
