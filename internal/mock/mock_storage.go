package mock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockStorage stands in for an object store in archive tests. It satisfies
// storage.Storage; the assertion lives in the storage package to keep the
// import graph acyclic.
type MockStorage struct {
	mock.Mock
}

// value returns result i of a call, or T's zero value when it is nil.
func value[T any](args mock.Arguments, i int) T {
	v, _ := args.Get(i).(T)
	return v
}

func (m *MockStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	return m.Called(ctx, key, reader).Error(0)
}

func (m *MockStorage) UploadFile(ctx context.Context, key string, localPath string) error {
	return m.Called(ctx, key, localPath).Error(0)
}

func (m *MockStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	return value[io.ReadCloser](args, 0), args.Error(1)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockStorage) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	return value[[]string](args, 0), args.Error(1)
}

// GetURL returns the configured string, or applies a configured
// func(string) string to key.
func (m *MockStorage) GetURL(key string) string {
	args := m.Called(key)
	if fn, ok := args.Get(0).(func(string) string); ok {
		return fn(key)
	}
	return args.String(0)
}

func (m *MockStorage) ExpectUpload(key string, err error) *mock.Call {
	return m.On("Upload", mock.Anything, key, mock.Anything).Return(err)
}

func (m *MockStorage) ExpectUploadFile(key, localPath string, err error) *mock.Call {
	return m.On("UploadFile", mock.Anything, key, localPath).Return(err)
}

func (m *MockStorage) ExpectDelete(key string, err error) *mock.Call {
	return m.On("Delete", mock.Anything, key).Return(err)
}

// ExpectList makes List under prefix return keys.
func (m *MockStorage) ExpectList(prefix string, keys []string, err error) *mock.Call {
	return m.On("List", mock.Anything, prefix).Return(keys, err)
}

// ExpectURL makes GetURL return base + "/" + key for any key.
func (m *MockStorage) ExpectURL(base string) *mock.Call {
	return m.On("GetURL", mock.Anything).Return(func(key string) string {
		return base + "/" + key
	})
}
