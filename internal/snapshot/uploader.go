// Package snapshot copies database snapshots to and from S3-compatible
// storage. Without a configured bucket every operation is local only.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/habitstore/internal/config"
)

// ErrNotConfigured is returned when S3 snapshot storage is not configured.
var ErrNotConfigured = errors.New("snapshot storage not configured")

// DefaultURLExpiry is how long a pre-signed download link stays valid.
const DefaultURLExpiry = 15 * time.Minute

// contentType marks uploaded objects as SQLite databases.
const contentType = "application/vnd.sqlite3"

// Uploader pushes snapshot files off-site.
type Uploader interface {
	// Upload stores the file at filePath under name.
	Upload(ctx context.Context, name string, filePath string) error

	// PresignedURL returns a time-limited download link for the snapshot called name.
	PresignedURL(ctx context.Context, name string) (url string, expiry time.Time, err error)
}

// Remote is an Uploader that can also enumerate and fetch snapshots back.
type Remote interface {
	Uploader

	// List returns the names of uploaded snapshots, oldest first.
	List(ctx context.Context) ([]string, error)

	// Download writes the snapshot called name to destPath.
	Download(ctx context.Context, name, destPath string) error
}

// s3Client is the slice of *minio.Client the remote uses.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string) error
	FGetObject(ctx context.Context, bucket, objectName, filePath string) error
	ListObjectKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) FPutObject(ctx context.Context, bucket, objectName, filePath string) error {
	_, err := m.client.FPutObject(ctx, bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (m *minioClient) FGetObject(ctx context.Context, bucket, objectName, filePath string) error {
	return m.client.FGetObject(ctx, bucket, objectName, filePath, minio.GetObjectOptions{})
}

func (m *minioClient) ListObjectKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (m *minioClient) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	return m.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
}

// S3Remote keeps snapshots under {prefix}/snapshots/ in one bucket.
type S3Remote struct {
	client    s3Client
	bucket    string
	prefix    string
	urlExpiry time.Duration
	now       func() time.Time
}

func (r *S3Remote) Upload(ctx context.Context, name string, filePath string) error {
	if err := r.client.FPutObject(ctx, r.bucket, r.objectKey(name), filePath); err != nil {
		return fmt.Errorf("upload snapshot %s: %w", name, err)
	}
	return nil
}

func (r *S3Remote) PresignedURL(ctx context.Context, name string) (string, time.Time, error) {
	presigned, err := r.client.PresignedGetObject(ctx, r.bucket, r.objectKey(name), r.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign snapshot %s: %w", name, err)
	}
	return presigned.String(), r.now().Add(r.urlExpiry), nil
}

// List ignores objects that are not .db files. Snapshot names start with a
// ULID, so lexical order is creation order.
func (r *S3Remote) List(ctx context.Context) ([]string, error) {
	dir := r.objectKey("") + "/"
	keys, err := r.client.ListObjectKeys(ctx, r.bucket, dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var names []string
	for _, k := range keys {
		name := strings.TrimPrefix(k, dir)
		if name == "" || strings.Contains(name, "/") || path.Ext(name) != ".db" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *S3Remote) Download(ctx context.Context, name, destPath string) error {
	if err := r.client.FGetObject(ctx, r.bucket, r.objectKey(name), destPath); err != nil {
		return fmt.Errorf("download snapshot %s: %w", name, err)
	}
	return nil
}

func (r *S3Remote) objectKey(name string) string {
	if name == "" {
		return path.Join(r.prefix, "snapshots")
	}
	return path.Join(r.prefix, "snapshots", path.Base(name))
}

// NoopUploader stands in when no bucket is configured. Uploads succeed
// without doing anything; every read reports ErrNotConfigured.
type NoopUploader struct{}

func (NoopUploader) Upload(context.Context, string, string) error { return nil }

func (NoopUploader) PresignedURL(context.Context, string) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

func (NoopUploader) List(context.Context) ([]string, error) { return nil, ErrNotConfigured }

func (NoopUploader) Download(context.Context, string, string) error { return ErrNotConfigured }

// NewRemote returns NoopUploader when the bucket is empty, S3Remote otherwise.
func NewRemote(cfg config.SnapshotStorageConfig) (Remote, error) {
	if cfg.Bucket == "" {
		return NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}
	endpoint := stripScheme(cfg.Endpoint, &useSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Remote{
		client:    &minioClient{client: client},
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		urlExpiry: DefaultURLExpiry,
		now:       time.Now,
	}, nil
}

// stripScheme removes an http:// or https:// prefix from endpoint and lets it
// decide useSSL. A bare host leaves useSSL unchanged.
func stripScheme(endpoint string, useSSL *bool) string {
	if host, ok := strings.CutPrefix(endpoint, "https://"); ok {
		*useSSL = true
		return host
	}
	if host, ok := strings.CutPrefix(endpoint, "http://"); ok {
		*useSSL = false
		return host
	}
	return endpoint
}
