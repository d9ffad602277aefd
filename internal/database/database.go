package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"forestwatch/internal/pipeline"
)

// ErrNotFound is returned when an alert ID is unknown
var ErrNotFound = errors.New("alert not found")

// Database handles SQLite database operations
type Database struct {
	db *sql.DB
}

// AlertRecord is one alert attempt as stored in the alert log
type AlertRecord struct {
	ID         string
	CameraID   string
	Label      string
	Confidence float64
	BoxX       int
	BoxY       int
	BoxW       int
	BoxH       int
	ImagePath  string
	EmailSent  bool
	ObjectKey  string
	CreatedAt  time.Time
}

// RecordFromArtifact converts an alert artifact to its stored form
func RecordFromArtifact(a *pipeline.AlertArtifact) *AlertRecord {
	return &AlertRecord{
		ID:         a.ID,
		CameraID:   a.CameraID,
		Label:      a.Label,
		Confidence: a.Confidence,
		BoxX:       a.Box.X,
		BoxY:       a.Box.Y,
		BoxW:       a.Box.W,
		BoxH:       a.Box.H,
		ImagePath:  a.ImagePath,
		EmailSent:  a.EmailSent,
		ObjectKey:  a.ObjectKey,
		CreatedAt:  a.CreatedAt.UTC(),
	}
}

// Artifact converts the record back to the artifact served by the API
func (r *AlertRecord) Artifact() *pipeline.AlertArtifact {
	return &pipeline.AlertArtifact{
		ID:         r.ID,
		CameraID:   r.CameraID,
		Label:      r.Label,
		Confidence: r.Confidence,
		Box:        pipeline.PixelBox{X: r.BoxX, Y: r.BoxY, W: r.BoxW, H: r.BoxH},
		ImagePath:  r.ImagePath,
		EmailSent:  r.EmailSent,
		ObjectKey:  r.ObjectKey,
		CreatedAt:  r.CreatedAt,
	}
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets the API read while the frame path writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks the connection is usable
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate runs database migrations
func (d *Database) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS alert_events (
			id TEXT PRIMARY KEY,
			camera_id TEXT NOT NULL,
			label TEXT NOT NULL,
			confidence REAL,
			box_x INTEGER,
			box_y INTEGER,
			box_w INTEGER,
			box_h INTEGER,
			image_path TEXT NOT NULL,
			email_sent INTEGER DEFAULT 0,
			object_key TEXT DEFAULT '',
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_camera_time ON alert_events(camera_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_time ON alert_events(created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

const alertColumns = `id, camera_id, label, confidence, box_x, box_y, box_w, box_h,
	image_path, email_sent, object_key, created_at`

// SaveAlert inserts an alert record, updating the delivery fields if it exists
func (d *Database) SaveAlert(ctx context.Context, rec *AlertRecord) error {
	query := `INSERT INTO alert_events (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email_sent = excluded.email_sent,
			object_key = excluded.object_key`

	_, err := d.db.ExecContext(ctx, query, rec.ID, rec.CameraID, rec.Label, rec.Confidence,
		rec.BoxX, rec.BoxY, rec.BoxW, rec.BoxH, rec.ImagePath, boolToInt(rec.EmailSent),
		rec.ObjectKey, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// SetObjectKey records where the snapshot was mirrored
func (d *Database) SetObjectKey(ctx context.Context, id, key string) error {
	res, err := d.db.ExecContext(ctx, "UPDATE alert_events SET object_key = ? WHERE id = ?", key, id)
	if err != nil {
		return fmt.Errorf("failed to update object key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAlert retrieves an alert by ID
func (d *Database) GetAlert(ctx context.Context, id string) (*AlertRecord, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_events WHERE id = ?`

	rec, err := scanAlert(d.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return rec, nil
}

// ListAlerts returns alerts newest first with optional filtering
func (d *Database) ListAlerts(ctx context.Context, cameraID string, since *time.Time, limit int) ([]*AlertRecord, error) {
	query := `SELECT ` + alertColumns + ` FROM alert_events WHERE 1=1`
	args := []any{}

	if cameraID != "" {
		query += " AND camera_id = ?"
		args = append(args, cameraID)
	}

	if since != nil {
		query += " AND created_at >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*AlertRecord
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

// CountAlerts returns the number of sent and failed alert attempts
func (d *Database) CountAlerts(ctx context.Context) (sent, failed int64, err error) {
	err = d.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(email_sent), 0), COALESCE(SUM(1 - email_sent), 0) FROM alert_events`,
	).Scan(&sent, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return sent, failed, nil
}

// DeleteOldAlerts deletes alerts older than the specified time
func (d *Database) DeleteOldAlerts(ctx context.Context, before time.Time) (int64, error) {
	result, err := d.db.ExecContext(ctx, "DELETE FROM alert_events WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old alerts: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*AlertRecord, error) {
	var rec AlertRecord
	var emailSent int
	var objectKey sql.NullString

	if err := row.Scan(&rec.ID, &rec.CameraID, &rec.Label, &rec.Confidence,
		&rec.BoxX, &rec.BoxY, &rec.BoxW, &rec.BoxH, &rec.ImagePath, &emailSent,
		&objectKey, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.EmailSent = emailSent == 1
	rec.ObjectKey = objectKey.String
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
