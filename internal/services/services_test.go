package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forestwatch/internal/alert"
	"forestwatch/internal/auth"
	"forestwatch/internal/database"
	"forestwatch/internal/pipeline"
)

func openDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func storeAlert(t *testing.T, db *database.Database, a *pipeline.AlertArtifact) {
	t.Helper()
	require.NoError(t, db.SaveAlert(context.Background(), database.RecordFromArtifact(a)))
}

type fakeMirror struct {
	objects map[string][]byte
}

func (m *fakeMirror) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestAlertServiceListAndGet(t *testing.T) {
	db := openDB(t)
	svc := NewAlertService(db, nil)
	ctx := context.Background()
	now := time.Now()

	storeAlert(t, db, &pipeline.AlertArtifact{ID: "a1", CameraID: "cam0", Label: "person", ImagePath: "x.jpg", CreatedAt: now})
	storeAlert(t, db, &pipeline.AlertArtifact{ID: "a2", CameraID: "cam1", Label: "person", ImagePath: "y.jpg", CreatedAt: now.Add(time.Second), EmailSent: true})

	list, err := svc.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "a2", list.Alerts[0].ID)

	list, err = svc.List(ctx, "cam0", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Count)

	a, err := svc.Get(ctx, "a2")
	require.NoError(t, err)
	assert.True(t, a.EmailSent)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAlertServiceOpenImage(t *testing.T) {
	db := openDB(t)
	dir := t.TempDir()
	local := filepath.Join(dir, "alert_person_1.jpg")
	require.NoError(t, os.WriteFile(local, []byte("local"), 0644))

	mirror := &fakeMirror{objects: map[string][]byte{"cam0/alert_person_2.jpg": []byte("remote")}}
	svc := NewAlertService(db, mirror)
	ctx := context.Background()

	storeAlert(t, db, &pipeline.AlertArtifact{ID: "local", CameraID: "cam0", ImagePath: local, CreatedAt: time.Now()})
	storeAlert(t, db, &pipeline.AlertArtifact{ID: "remote", CameraID: "cam0", ImagePath: filepath.Join(dir, "gone.jpg"),
		ObjectKey: "cam0/alert_person_2.jpg", CreatedAt: time.Now()})
	storeAlert(t, db, &pipeline.AlertArtifact{ID: "lost", CameraID: "cam0", ImagePath: filepath.Join(dir, "gone.jpg"), CreatedAt: time.Now()})

	for id, want := range map[string]string{"local": "local", "remote": "remote"} {
		rc, err := svc.OpenImage(ctx, id)
		require.NoError(t, err, id)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}

	_, err := svc.OpenImage(ctx, "lost")
	assert.ErrorIs(t, err, ErrNotFound)
}

type staticStatus struct{}

func (staticStatus) Status() alert.Status    { return alert.Status{Holding: true, AlertsSent: 3} }
func (staticStatus) FramesProcessed() uint64 { return 42 }
func (staticStatus) ClientCount() int        { return 2 }

func TestSystemStatus(t *testing.T) {
	db := openDB(t)
	alerts := NewAlertService(db, nil)
	storeAlert(t, db, &pipeline.AlertArtifact{ID: "a1", CameraID: "cam0", ImagePath: "x", CreatedAt: time.Now()})

	svc := NewSystemService(StatusSources{
		Controller: staticStatus{},
		Frames:     staticStatus{},
		Clients:    staticStatus{},
		Alerts:     alerts,
		Notifier:   "email+telegram",
		GPIOLine:   "GPIO27",
	})

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), status.FramesProcessed)
	assert.True(t, status.Alert.Holding)
	assert.Equal(t, 2, status.WSClients)
	assert.Equal(t, int64(1), status.AlertsStored)
	assert.Equal(t, int64(1), status.AlertsFailed)
	assert.Equal(t, "email+telegram", status.Notifier)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyz(t *testing.T) {
	ok := NewHealthService(map[string]Pinger{"database": pingFunc(func(context.Context) error { return nil })})
	assert.NoError(t, ok.Readyz(context.Background()))
	assert.NoError(t, ok.Healthz(context.Background()))

	down := NewHealthService(map[string]Pinger{"database": pingFunc(func(context.Context) error { return errors.New("locked") })})
	err := down.Readyz(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database not ready")
}

func TestLogin(t *testing.T) {
	a, err := auth.NewAuthenticator(auth.Config{Enabled: true, Password: "pw", JWTSecret: "k"})
	require.NoError(t, err)
	svc := NewAuthService(a)

	res, err := svc.Login(context.Background(), &LoginPayload{Username: "admin", Password: "pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Greater(t, res.ExpiresAt, time.Now().Unix())

	_, err = svc.Login(context.Background(), &LoginPayload{Username: "admin", Password: "nope"})
	var unauthorized *UnauthorizedError
	assert.ErrorAs(t, err, &unauthorized)
}

type fakeSender struct{ err error }

func (f fakeSender) Name() string                       { return "email" }
func (f fakeSender) SendTest(ctx context.Context) error { return f.err }

func TestNotifyTest(t *testing.T) {
	res, err := NewNotifyService(fakeSender{}).Test(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &NotifyResult{Channel: "email", Sent: true}, res)

	_, err = NewNotifyService(fakeSender{err: errors.New("auth failed")}).Test(context.Background())
	assert.ErrorContains(t, err, "auth failed")
}
