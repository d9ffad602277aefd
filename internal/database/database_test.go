package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forestwatch/internal/pipeline"
	"forestwatch/pkg/log"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func artifact(id, camera string, at time.Time, sent bool) *pipeline.AlertArtifact {
	return &pipeline.AlertArtifact{
		ID:         id,
		CameraID:   camera,
		Label:      "person",
		Confidence: 0.98,
		Box:        pipeline.PixelBox{X: 10, Y: 20, W: 30, H: 40},
		ImagePath:  "alerts/alert_person_" + id + ".jpg",
		EmailSent:  sent,
		CreatedAt:  at,
	}
}

func TestSaveAndGetAlert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveAlert(ctx, RecordFromArtifact(artifact("a1", "cam0", at, true))))

	rec, err := db.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "cam0", rec.CameraID)
	assert.True(t, rec.EmailSent)
	assert.InDelta(t, 0.98, rec.Confidence, 0.0001)
	assert.True(t, at.Equal(rec.CreatedAt))

	got := rec.Artifact()
	assert.Equal(t, pipeline.PixelBox{X: 10, Y: 20, W: 30, H: 40}, got.Box)
}

func TestGetAlertNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetAlert(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAlertUpdatesDelivery(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	a := artifact("a1", "cam0", time.Now(), false)

	require.NoError(t, db.SaveAlert(ctx, RecordFromArtifact(a)))
	a.EmailSent = true
	require.NoError(t, db.SaveAlert(ctx, RecordFromArtifact(a)))
	require.NoError(t, db.SetObjectKey(ctx, "a1", "cam0/a1.jpg"))

	rec, err := db.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, rec.EmailSent)
	assert.Equal(t, "cam0/a1.jpg", rec.ObjectKey)

	assert.ErrorIs(t, db.SetObjectKey(ctx, "nope", "x"), ErrNotFound)
}

func TestListAlerts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveAlert(ctx, RecordFromArtifact(artifact("a1", "cam0", base, true))))
	require.NoError(t, db.SaveAlert(ctx, RecordFromArtifact(artifact("a2", "cam1", base.Add(time.Minute), false))))
	require.NoError(t, db.SaveAlert(ctx, RecordFromArtifact(artifact("a3", "cam0", base.Add(2*time.Minute), true))))

	all, err := db.ListAlerts(ctx, "", nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a3", all[0].ID, "newest first")

	cam0, err := db.ListAlerts(ctx, "cam0", nil, 0)
	require.NoError(t, err)
	assert.Len(t, cam0, 2)

	since := base.Add(30 * time.Second)
	recent, err := db.ListAlerts(ctx, "", &since, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "a3", recent[0].ID)

	sent, failed, err := db.CountAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sent)
	assert.Equal(t, int64(1), failed)
}

func TestDeleteOldAlerts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.SaveAlert(ctx, RecordFromArtifact(artifact("old", "cam0", now.Add(-48*time.Hour), true))))
	require.NoError(t, db.SaveAlert(ctx, RecordFromArtifact(artifact("new", "cam0", now, true))))

	n, err := db.DeleteOldAlerts(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetAlert(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecorderStoresFailedAttempts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	rec := NewRecorder(db, log.NewNop())

	bus := pipeline.NewEventBus()
	bus.Subscribe(rec)
	bus.Publish(ctx, artifact("f1", "cam0", time.Now(), false))

	stored, err := db.GetAlert(ctx, "f1")
	require.NoError(t, err)
	assert.False(t, stored.EmailSent)
}
