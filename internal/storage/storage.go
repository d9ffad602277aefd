// Package storage mirrors alert snapshots to an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"forestwatch/internal/pipeline"
	"forestwatch/pkg/log"
)

// Config holds the object storage connection settings
type Config struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Prefix    string
}

// ErrDisabled is returned by New when mirroring is switched off
var ErrDisabled = errors.New("object storage disabled")

// objectStore is the subset of *minio.Client the mirror uses
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// Mirror uploads each alert snapshot and records the object key on the artifact
type Mirror struct {
	client objectStore
	bucket string
	prefix string
	logger log.Logger
}

// New connects to the object store
func New(cfg Config, logger log.Logger) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("object storage endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return newMirror(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newMirror(client objectStore, bucket, prefix string, logger log.Logger) *Mirror {
	return &Mirror{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// EnsureBucket creates the bucket if it does not exist yet
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", m.bucket, err)
	}
	m.logger.Infof(ctx, "[Storage] Created bucket %s", m.bucket)
	return nil
}

// ObjectKey returns the key a snapshot is stored under
func (m *Mirror) ObjectKey(artifact *pipeline.AlertArtifact) string {
	return path.Join(m.prefix, artifact.CameraID, filepath.Base(artifact.ImagePath))
}

// Upload copies the snapshot file to the bucket
func (m *Mirror) Upload(ctx context.Context, artifact *pipeline.AlertArtifact) (string, error) {
	key := m.ObjectKey(artifact)
	_, err := m.client.FPutObject(ctx, m.bucket, key, artifact.ImagePath, minio.PutObjectOptions{
		ContentType: "image/jpeg",
		UserMetadata: map[string]string{
			"alert-id":   artifact.ID,
			"camera-id":  artifact.CameraID,
			"email-sent": fmt.Sprintf("%t", artifact.EmailSent),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}

// Open streams a mirrored snapshot back
func (m *Mirror) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return obj, nil
}

// OnAlert implements pipeline.AlertHandler. It must run before the alert is
// recorded so the stored record carries the object key.
func (m *Mirror) OnAlert(ctx context.Context, artifact *pipeline.AlertArtifact) {
	key, err := m.Upload(ctx, artifact)
	if err != nil {
		m.logger.Errorf(ctx, "[Storage] %v", err)
		return
	}
	artifact.ObjectKey = key
	m.logger.Debugf(ctx, "[Storage] Mirrored %s to %s/%s", artifact.ImagePath, m.bucket, key)
}

var _ pipeline.AlertHandler = (*Mirror)(nil)
