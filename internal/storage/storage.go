// Package storage uploads local files to an S3-compatible bucket so that
// remote providers can fetch them by URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/genforge/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrUploadFailed = errors.New("storage: upload failed")

// Uploader puts a local file into object storage and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
	Ping(ctx context.Context) error
}

// MinioUploader implements Uploader with minio-go.
type MinioUploader struct {
	client        *minio.Client
	bucket        string
	prefix        string
	publicBaseURL string
	now           func() time.Time
}

var _ Uploader = (*MinioUploader)(nil)

// NewMinioUploader creates a client for the configured endpoint. It does not contact the server.
func NewMinioUploader(cfg config.StorageConfig) (*MinioUploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioUploader{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        strings.Trim(cfg.Prefix, "/"),
		publicBaseURL: cfg.PublicBaseURL,
		now:           time.Now,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (u *MinioUploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.bucket, err)
	}
	slog.Info("storage bucket created", "bucket", u.bucket)
	return nil
}

// Ping checks that the bucket is reachable.
func (u *MinioUploader) Ping(ctx context.Context) error {
	_, err := u.client.BucketExists(ctx, u.bucket)
	return err
}

func (u *MinioUploader) Upload(ctx context.Context, localPath string) (string, error) {
	key := ObjectKey(u.prefix, filepath.Base(localPath), u.now())
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(localPath)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := u.client.FPutObject(ctx, u.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUploadFailed, filepath.Base(localPath), err)
	}

	return PublicURL(u.publicBaseURL, u.client.EndpointURL().String(), u.bucket, key), nil
}

// ObjectKey builds {prefix}/{yyyy}/{mm}/{dd}/{HHMMSS}_{short id}_{name}.
func ObjectKey(prefix, name string, now time.Time) string {
	now = now.UTC()
	ext := strings.ToLower(path.Ext(name))
	base := strings.TrimSuffix(name, path.Ext(name))
	file := fmt.Sprintf("%s_%s_%s%s", now.Format("150405"), uuid.NewString()[:8], base, ext)
	return path.Join(prefix, now.Format("2006/01/02"), file)
}

// PublicURL returns publicBase/key when a public base is configured, otherwise endpoint/bucket/key.
func PublicURL(publicBase, endpoint, bucket, key string) string {
	if publicBase != "" {
		return strings.TrimRight(publicBase, "/") + "/" + key
	}
	return strings.TrimRight(endpoint, "/") + "/" + bucket + "/" + key
}
