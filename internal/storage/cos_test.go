package storage

import (
	"bytes"
	"context"
	"encoding/xml"
	"hash/crc64"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engine-gc/pkg/config"
	apperrors "github.com/engine-gc/pkg/errors"
)

func TestNewCOSStorage_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  COSConfig
		want string
	}{
		{"MissingBucket", COSConfig{Region: "ap-guangzhou", SecretID: "id", SecretKey: "key"}, "bucket and region are required"},
		{"MissingRegion", COSConfig{Bucket: "b", SecretID: "id", SecretKey: "key"}, "bucket and region are required"},
		{"MissingCredentials", COSConfig{Bucket: "b", Region: "ap-guangzhou"}, "credentials are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage, err := NewCOSStorage(&tt.cfg)
			assert.Nil(t, storage)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCOSStorage_GetURL(t *testing.T) {
	storage, err := NewCOSStorage(&COSConfig{
		Bucket:    "gc-runs-1250000000",
		Region:    "ap-guangzhou",
		SecretID:  "test-id",
		SecretKey: "test-key",
	})
	require.NoError(t, err)

	assert.Equal(t,
		"https://gc-runs-1250000000.cos.ap-guangzhou.myqcloud.com/runs/sim-1/report.json",
		storage.GetURL("runs/sim-1/report.json"))
}

func TestNewStorage_COS(t *testing.T) {
	storage, err := NewStorage(&config.StorageConfig{
		Type:      "cos",
		Bucket:    "test-bucket",
		Region:    "ap-guangzhou",
		SecretID:  "test-id",
		SecretKey: "test-key",
		Scheme:    "http",
	})
	require.NoError(t, err)
	cs, ok := storage.(*COSStorage)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(cs.GetURL("k"), "http://test-bucket.cos.ap-guangzhou."))
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.StorageConfig
		want string
	}{
		{"NilConfig", nil, "storage config is nil"},
		{"InvalidStorageType", &config.StorageConfig{Type: "s3"}, "unsupported storage type"},
		{"EmptyTypeIsLocal", &config.StorageConfig{}, "local storage path is required"},
		{"COSMissingBucket", &config.StorageConfig{Type: "cos", Region: "r", SecretID: "i", SecretKey: "k"}, "COS bucket is required"},
		{"COSMissingRegion", &config.StorageConfig{Type: "cos", Bucket: "b", SecretID: "i", SecretKey: "k"}, "COS region is required"},
		{"COSMissingCredentials", &config.StorageConfig{Type: "cos", Bucket: "b", Region: "r"}, "COS credentials are required"},
		{"LocalMissingPath", &config.StorageConfig{Type: "local"}, "local storage path is required"},
		{"PrefixEscapes", &config.StorageConfig{Type: "local", LocalPath: "/tmp/s", Prefix: "../up"}, "must not contain"},
		{"ValidCOS", &config.StorageConfig{Type: "cos", Bucket: "b", Region: "r", SecretID: "i", SecretKey: "k"}, ""},
		{"ValidLocal", &config.StorageConfig{Type: "local", LocalPath: "/tmp/storage", Prefix: "gcsim"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.cfg)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.IsConfigError(err))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

// fakeBucket is an in-memory stand-in for a COS bucket endpoint.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut bool
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.TrimPrefix(r.URL.Path, "/")

	switch r.Method {
	case http.MethodPut:
		if b.failPut {
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		b.objects[key] = body
		b.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("x-cos-hash-crc64ecma", crc(body))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		if key == "" {
			b.list(w, r.URL.Query().Get("prefix"))
			return
		}
		body, ok := b.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("x-cos-hash-crc64ecma", crc(body))
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(body)
		}
	case http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type listResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Prefix      string
	IsTruncated bool
	Contents    []struct{ Key string }
}

func (b *fakeBucket) list(w http.ResponseWriter, prefix string) {
	res := listResult{Prefix: prefix}
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			res.Contents = append(res.Contents, struct{ Key string }{key})
		}
	}
	w.Header().Set("Content-Type", "application/xml")
	xml.NewEncoder(w).Encode(res)
}

func crc(body []byte) string {
	return strconv.FormatUint(crc64.Checksum(body, crc64.MakeTable(crc64.ECMA)), 10)
}

func newFakeCOS(t *testing.T) (*COSStorage, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return newCOSStorage(u, u, "test-id", "test-key"), bucket
}

func TestCOSStorage_RoundTrip(t *testing.T) {
	storage, bucket := newFakeCOS(t)
	ctx := context.Background()

	require.NoError(t, storage.Upload(ctx, "runs/sim-1/report.json", bytes.NewReader([]byte(`{"ok":true}`))))
	assert.Equal(t, "application/json", bucket.types["runs/sim-1/report.json"])

	ok, err := storage.Exists(ctx, "runs/sim-1/report.json")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := storage.Download(ctx, "runs/sim-1/report.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	require.NoError(t, storage.Delete(ctx, "runs/sim-1/report.json"))
	ok, err = storage.Exists(ctx, "runs/sim-1/report.json")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = storage.Download(ctx, "runs/sim-1/report.json")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCOSStorage_List(t *testing.T) {
	storage, bucket := newFakeCOS(t)
	bucket.objects["runs/sim-2/report.json"] = []byte("{}")
	bucket.objects["runs/sim-1/heap.json.zst"] = nil
	bucket.objects["runs/sim-1/report.json"] = []byte("{}")

	keys, err := storage.List(context.Background(), "runs/sim-1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/sim-1/heap.json.zst", "runs/sim-1/report.json"}, keys)

	keys, err = storage.List(context.Background(), "other/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCOSStorage_UploadError(t *testing.T) {
	storage, bucket := newFakeCOS(t)
	bucket.failPut = true

	err := storage.Upload(context.Background(), "runs/x.json", bytes.NewReader([]byte("{}")))
	assert.True(t, apperrors.IsUploadError(err))
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a/report.json":      "application/json",
		"a/report.yml":       "application/yaml",
		"a/report.json.gz":   "application/gzip",
		"a/heap.json.zst":    "application/zstd",
		"scripts/edge.gcs":   "text/plain; charset=utf-8",
		"a/blob":             "application/octet-stream",
		"a/report.json.lock": "application/octet-stream",
	}
	for key, want := range tests {
		assert.Equal(t, want, ContentType(key), key)
	}
}
