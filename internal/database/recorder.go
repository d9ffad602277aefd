package database

import (
	"context"
	"time"

	"forestwatch/internal/pipeline"
	"forestwatch/pkg/log"
)

// Recorder writes every alert attempt to the alert log
type Recorder struct {
	db     *Database
	logger log.Logger
}

// NewRecorder creates an alert handler backed by db
func NewRecorder(db *Database, logger log.Logger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

// OnAlert implements pipeline.AlertHandler
func (r *Recorder) OnAlert(ctx context.Context, artifact *pipeline.AlertArtifact) {
	if err := r.db.SaveAlert(ctx, RecordFromArtifact(artifact)); err != nil {
		r.logger.Errorf(ctx, "[DB] Failed to record alert %s: %v", artifact.ID, err)
	}
}

// RunRetention deletes alerts older than maxAge every interval until ctx is done
func (r *Recorder) RunRetention(ctx context.Context, maxAge, interval time.Duration) {
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.prune(ctx, maxAge)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune(ctx, maxAge)
		}
	}
}

func (r *Recorder) prune(ctx context.Context, maxAge time.Duration) {
	n, err := r.db.DeleteOldAlerts(ctx, time.Now().Add(-maxAge))
	if err != nil {
		r.logger.Errorf(ctx, "[DB] Retention cleanup failed: %v", err)
		return
	}
	if n > 0 {
		r.logger.Infof(ctx, "[DB] Removed %d alerts older than %s", n, maxAge)
	}
}

var _ pipeline.AlertHandler = (*Recorder)(nil)
