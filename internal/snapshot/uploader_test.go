package snapshot

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hyperengineering/habitstore/internal/config"
)

// fakeBucket is an in-memory s3Client keyed by object name.
type fakeBucket struct {
	objects map[string][]byte
	bucket  string
	err     error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: make(map[string][]byte)}
}

func (f *fakeBucket) FPutObject(ctx context.Context, bucket, objectName, filePath string) error {
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	f.bucket = bucket
	f.objects[objectName] = data
	return nil
}

func (f *fakeBucket) FGetObject(ctx context.Context, bucket, objectName, filePath string) error {
	if f.err != nil {
		return f.err
	}
	data, ok := f.objects[objectName]
	if !ok {
		return errors.New("NoSuchKey")
	}
	return os.WriteFile(filePath, data, 0o644)
}

func (f *fakeBucket) ListObjectKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var keys []string
	for k := range f.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeBucket) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	if f.err != nil {
		return nil, f.err
	}
	return url.Parse("https://s3.example.com/" + bucket + "/" + objectName + "?X-Amz-Expires=" + expiry.String())
}

var fixedNow = time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)

func newTestRemote(client s3Client, prefix string) *S3Remote {
	return &S3Remote{
		client:    client,
		bucket:    "habits",
		prefix:    prefix,
		urlExpiry: DefaultURLExpiry,
		now:       func() time.Time { return fixedNow },
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestNoopUploader(t *testing.T) {
	u := NoopUploader{}
	ctx := context.Background()

	if err := u.Upload(ctx, "habits-01.db", "/nowhere"); err != nil {
		t.Errorf("Upload() = %v, want nil", err)
	}
	if _, _, err := u.PresignedURL(ctx, "habits-01.db"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("PresignedURL() = %v, want ErrNotConfigured", err)
	}
	if _, err := u.List(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("List() = %v, want ErrNotConfigured", err)
	}
	if err := u.Download(ctx, "habits-01.db", "/nowhere"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Download() = %v, want ErrNotConfigured", err)
	}
}

func TestNewRemote_EmptyBucketIsNoop(t *testing.T) {
	r, err := NewRemote(config.SnapshotStorageConfig{Endpoint: "localhost:9000"})
	if err != nil {
		t.Fatalf("NewRemote() error = %v", err)
	}
	if _, ok := r.(NoopUploader); !ok {
		t.Errorf("expected NoopUploader, got %T", r)
	}
}

func TestNewRemote_WithBucket(t *testing.T) {
	useSSL := false
	r, err := NewRemote(config.SnapshotStorageConfig{
		Bucket:    "habits",
		Endpoint:  "https://minio.local:9000",
		Region:    "us-east-1",
		Prefix:    "alice",
		UseSSL:    &useSSL,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	if err != nil {
		t.Fatalf("NewRemote() error = %v", err)
	}
	s3r, ok := r.(*S3Remote)
	if !ok {
		t.Fatalf("expected *S3Remote, got %T", r)
	}
	if s3r.bucket != "habits" || s3r.prefix != "alice" || s3r.urlExpiry != DefaultURLExpiry {
		t.Errorf("remote = %+v", s3r)
	}
}

func TestS3Remote_UploadThenDownload(t *testing.T) {
	// Given: a remote over an empty bucket
	bucket := newFakeBucket()
	r := newTestRemote(bucket, "alice")
	src := writeFile(t, "habits-01J.db", "sqlite bytes")

	// When: the snapshot is uploaded and fetched back
	if err := r.Upload(context.Background(), "habits-01J.db", src); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	dest := filepath.Join(t.TempDir(), "restored.db")
	if err := r.Download(context.Background(), "habits-01J.db", dest); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	// Then: the object key is namespaced and the bytes survive
	if _, ok := bucket.objects["alice/snapshots/habits-01J.db"]; !ok {
		t.Errorf("object keys = %v", bucket.objects)
	}
	if bucket.bucket != "habits" {
		t.Errorf("bucket = %q, want habits", bucket.bucket)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(got) != "sqlite bytes" {
		t.Errorf("restored = %q", got)
	}
}

func TestS3Remote_ErrorsAreWrapped(t *testing.T) {
	cause := errors.New("network timeout")
	bucket := newFakeBucket()
	bucket.err = cause
	r := newTestRemote(bucket, "")
	ctx := context.Background()

	if err := r.Upload(ctx, "habits-01J.db", "/nowhere"); !errors.Is(err, cause) {
		t.Errorf("Upload() = %v, want wrapped cause", err)
	}
	if err := r.Download(ctx, "habits-01J.db", "/nowhere"); !errors.Is(err, cause) {
		t.Errorf("Download() = %v, want wrapped cause", err)
	}
	if _, err := r.List(ctx); !errors.Is(err, cause) {
		t.Errorf("List() = %v, want wrapped cause", err)
	}
	if _, _, err := r.PresignedURL(ctx, "habits-01J.db"); !errors.Is(err, cause) {
		t.Errorf("PresignedURL() = %v, want wrapped cause", err)
	}
}

func TestS3Remote_ListFiltersAndSorts(t *testing.T) {
	bucket := newFakeBucket()
	bucket.objects = map[string][]byte{
		"alice/snapshots/habits-02.db":         nil,
		"alice/snapshots/habits-01.db":         nil,
		"alice/snapshots/notes.txt":            nil,
		"alice/snapshots/archive/habits-00.db": nil,
		"bob/snapshots/habits-03.db":           nil,
	}
	r := newTestRemote(bucket, "alice")

	got, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"habits-01.db", "habits-02.db"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestS3Remote_PresignedURL(t *testing.T) {
	r := newTestRemote(newFakeBucket(), "")

	link, expiry, err := r.PresignedURL(context.Background(), "habits-01J.db")
	if err != nil {
		t.Fatalf("PresignedURL() error = %v", err)
	}
	if want := "https://s3.example.com/habits/snapshots/habits-01J.db?X-Amz-Expires=15m0s"; link != want {
		t.Errorf("url = %q, want %q", link, want)
	}
	if want := fixedNow.Add(DefaultURLExpiry); !expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", expiry, want)
	}
}

func TestStripScheme(t *testing.T) {
	tests := []struct {
		endpoint string
		wantHost string
		wantSSL  bool
	}{
		{"s3.example.com", "s3.example.com", true},
		{"minio:9000", "minio:9000", true},
		{"https://s3.example.com", "s3.example.com", true},
		{"http://minio:9000", "minio:9000", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			ssl := true
			if got := stripScheme(tt.endpoint, &ssl); got != tt.wantHost {
				t.Errorf("host = %q, want %q", got, tt.wantHost)
			}
			if ssl != tt.wantSSL {
				t.Errorf("ssl = %v, want %v", ssl, tt.wantSSL)
			}
		})
	}
}

func TestS3Remote_ObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		name   string
		want   string
	}{
		{"habitstore", "habits-01J.db", "habitstore/snapshots/habits-01J.db"},
		{"", "habits-01J.db", "snapshots/habits-01J.db"},
		{"team/alice", "/tmp/backups/habits-01J.db", "team/alice/snapshots/habits-01J.db"},
	}

	for _, tt := range tests {
		r := &S3Remote{prefix: tt.prefix}
		if got := r.objectKey(tt.name); got != tt.want {
			t.Errorf("objectKey(%q, %q) = %q, want %q", tt.prefix, tt.name, got, tt.want)
		}
	}
}
