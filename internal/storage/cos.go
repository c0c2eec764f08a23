package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/tencentyun/cos-go-sdk-v5"

	apperrors "github.com/engine-gc/pkg/errors"
)

// COSConfig locates a bucket. Domain defaults to myqcloud.com and Scheme
// to https.
type COSConfig struct {
	Bucket    string
	Region    string
	SecretID  string
	SecretKey string
	Domain    string
	Scheme    string
}

func (c *COSConfig) endpoints() (bucket, service *url.URL, err error) {
	domain, scheme := c.Domain, c.Scheme
	if domain == "" {
		domain = "myqcloud.com"
	}
	if scheme == "" {
		scheme = "https"
	}
	if bucket, err = url.Parse(fmt.Sprintf("%s://%s.cos.%s.%s", scheme, c.Bucket, c.Region, domain)); err != nil {
		return nil, nil, err
	}
	service, err = url.Parse(fmt.Sprintf("%s://cos.%s.%s", scheme, c.Region, domain))
	return bucket, service, err
}

// COSStorage stores artifacts in a Tencent Cloud COS bucket.
type COSStorage struct {
	client *cos.Client
	base   string
}

// NewCOSStorage checks cfg and builds a signed client. No request is made.
func NewCOSStorage(cfg *COSConfig) (*COSStorage, error) {
	switch {
	case cfg.Bucket == "" || cfg.Region == "":
		return nil, apperrors.New(apperrors.CodeConfigError, "bucket and region are required for COS storage")
	case cfg.SecretID == "" || cfg.SecretKey == "":
		return nil, apperrors.New(apperrors.CodeConfigError, "credentials are required for COS storage")
	}
	bucket, service, err := cfg.endpoints()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "COS endpoint", err)
	}
	return newCOSStorage(bucket, service, cfg.SecretID, cfg.SecretKey), nil
}

func newCOSStorage(bucket, service *url.URL, secretID, secretKey string) *COSStorage {
	auth := &cos.AuthorizationTransport{SecretID: secretID, SecretKey: secretKey}
	client := cos.NewClient(&cos.BaseURL{BucketURL: bucket, ServiceURL: service}, &http.Client{Transport: auth})
	return &COSStorage{client: client, base: strings.TrimSuffix(bucket.String(), "/")}
}

// cosErr classifies an SDK error. Missing objects become NOT_FOUND.
func cosErr(op, key string, err error) error {
	if cos.IsNotFoundError(err) {
		return apperrors.Newf(apperrors.CodeNotFound, "object not found: %s", key)
	}
	return fmt.Errorf("COS %s %s: %w", op, key, err)
}

func (s *COSStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: ContentType(key)},
	}
	if _, err := s.client.Object.Put(ctx, key, reader, opt); err != nil {
		return apperrors.Wrap(apperrors.CodeUploadError, "upload "+key+" to COS", err)
	}
	return nil
}

func (s *COSStorage) UploadFile(ctx context.Context, key string, localPath string) error {
	return uploadFile(ctx, s, key, localPath)
}

func (s *COSStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.Object.Get(ctx, key, nil)
	if err != nil {
		return nil, cosErr("get", key, err)
	}
	return resp.Body, nil
}

func (s *COSStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Object.Delete(ctx, key, nil); err != nil && !cos.IsNotFoundError(err) {
		return cosErr("delete", key, err)
	}
	return nil
}

func (s *COSStorage) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.Object.IsExist(ctx, key)
	if err != nil {
		return false, cosErr("head", key, err)
	}
	return ok, nil
}

// List pages through the bucket listing for prefix.
func (s *COSStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	opt := &cos.BucketGetOptions{Prefix: prefix, MaxKeys: 1000}
	for {
		res, _, err := s.client.Bucket.Get(ctx, opt)
		if err != nil {
			return nil, cosErr("list", prefix, err)
		}
		for _, obj := range res.Contents {
			keys = append(keys, obj.Key)
		}
		if !res.IsTruncated || res.NextMarker == "" {
			break
		}
		opt.Marker = res.NextMarker
	}
	sort.Strings(keys)
	return keys, nil
}

// GetURL returns the object's address in the bucket. It is public only if
// the bucket allows anonymous reads.
func (s *COSStorage) GetURL(key string) string {
	return s.base + "/" + key
}
