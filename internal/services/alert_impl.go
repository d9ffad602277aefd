package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"forestwatch/internal/database"
	"forestwatch/internal/pipeline"
)

const maxAlertPage = 500

// ObjectOpener reads mirrored snapshots back from object storage
type ObjectOpener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// AlertImplementation serves the alert log
type AlertImplementation struct {
	db     *database.Database
	mirror ObjectOpener
}

// NewAlertService creates the alert service. mirror may be nil.
func NewAlertService(db *database.Database, mirror ObjectOpener) *AlertImplementation {
	return &AlertImplementation{db: db, mirror: mirror}
}

// List returns the newest alerts, optionally for one camera
func (s *AlertImplementation) List(ctx context.Context, cameraID string, limit int) (*AlertList, error) {
	if limit <= 0 || limit > maxAlertPage {
		limit = maxAlertPage
	}
	records, err := s.db.ListAlerts(ctx, cameraID, nil, limit)
	if err != nil {
		return nil, err
	}

	list := &AlertList{Alerts: make([]*pipeline.AlertArtifact, 0, len(records))}
	for _, rec := range records {
		list.Alerts = append(list.Alerts, rec.Artifact())
	}
	list.Count = len(list.Alerts)
	return list, nil
}

// Get returns one alert
func (s *AlertImplementation) Get(ctx context.Context, id string) (*pipeline.AlertArtifact, error) {
	rec, err := s.db.GetAlert(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec.Artifact(), nil
}

// OpenImage returns the snapshot of an alert, falling back to the object
// store mirror when the local file is gone
func (s *AlertImplementation) OpenImage(ctx context.Context, id string) (io.ReadCloser, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(a.ImagePath)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	if s.mirror == nil || a.ObjectKey == "" {
		return nil, ErrNotFound
	}
	return s.mirror.Open(ctx, a.ObjectKey)
}

// Counts returns the number of sent and failed alerts in the log
func (s *AlertImplementation) Counts(ctx context.Context) (int64, int64, error) {
	return s.db.CountAlerts(ctx)
}
