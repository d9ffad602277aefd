package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forestwatch/internal/pipeline"
	"forestwatch/pkg/log"
)

type fakeStore struct {
	buckets map[string]bool
	puts    map[string]string
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{buckets: map[string]bool{}, puts: map[string]string{}}
}

func (f *fakeStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeStore) MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeStore) FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	f.puts[bucket+"/"+object] = filePath
	return minio.UploadInfo{Bucket: bucket, Key: object}, nil
}

func (f *fakeStore) GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error) {
	return nil, errors.New("not implemented")
}

func TestEnsureBucketCreatesOnce(t *testing.T) {
	store := newFakeStore()
	m := newMirror(store, "snapshots", "", log.NewNop())

	require.NoError(t, m.EnsureBucket(context.Background()))
	assert.True(t, store.buckets["snapshots"])
	require.NoError(t, m.EnsureBucket(context.Background()))
}

func TestOnAlertSetsObjectKey(t *testing.T) {
	store := newFakeStore()
	m := newMirror(store, "snapshots", "forest", log.NewNop())
	a := &pipeline.AlertArtifact{ID: "a1", CameraID: "cam0", ImagePath: "alerts/alert_person_1700000000.jpg"}

	m.OnAlert(context.Background(), a)

	assert.Equal(t, "forest/cam0/alert_person_1700000000.jpg", a.ObjectKey)
	assert.Equal(t, "alerts/alert_person_1700000000.jpg", store.puts["snapshots/forest/cam0/alert_person_1700000000.jpg"])
}

func TestOnAlertUploadFailureLeavesKeyEmpty(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New("connection refused")
	m := newMirror(store, "snapshots", "", log.NewNop())
	a := &pipeline.AlertArtifact{ID: "a1", CameraID: "cam0", ImagePath: "alerts/x.jpg"}

	m.OnAlert(context.Background(), a)

	assert.Empty(t, a.ObjectKey)
}

func TestNewDisabled(t *testing.T) {
	_, err := New(Config{}, log.NewNop())
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = New(Config{Enabled: true}, log.NewNop())
	assert.Error(t, err)
}
