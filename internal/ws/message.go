package ws

import (
	"time"

	"forestwatch/internal/pipeline"
)

// AlertMessage is pushed to clients for every alert attempt
type AlertMessage struct {
	Type       string    `json:"type"` // "alert"
	ID         string    `json:"id"`
	CameraID   string    `json:"camera_id"`
	Timestamp  time.Time `json:"timestamp"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	BBox       []int     `json:"bbox"` // [x, y, w, h] in pixels
	EmailSent  bool      `json:"email_sent"`
	ImageURL   string    `json:"image_url"`
}

// NewAlertMessage builds the client message for an alert artifact
func NewAlertMessage(a *pipeline.AlertArtifact) *AlertMessage {
	return &AlertMessage{
		Type:       "alert",
		ID:         a.ID,
		CameraID:   a.CameraID,
		Timestamp:  a.CreatedAt,
		Label:      a.Label,
		Confidence: a.Confidence,
		BBox:       []int{a.Box.X, a.Box.Y, a.Box.W, a.Box.H},
		EmailSent:  a.EmailSent,
		ImageURL:   "/api/v1/alerts/" + a.ID + "/image",
	}
}
