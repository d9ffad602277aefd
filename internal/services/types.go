package services

import (
	"errors"
	"time"

	"forestwatch/internal/alert"
	"forestwatch/internal/pipeline"
)

// ErrNotFound is returned when a requested alert does not exist
var ErrNotFound = errors.New("not found")

// UnauthorizedError is returned by Login for rejected credentials
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

// LoginPayload is the body of a login request
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult carries the issued token
type LoginResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// AuthStatus reports whether auth is on and who the caller is
type AuthStatus struct {
	Enabled       bool    `json:"enabled"`
	Authenticated bool    `json:"authenticated"`
	Username      *string `json:"username,omitempty"`
}

// AlertList is a page of alert records
type AlertList struct {
	Alerts []*pipeline.AlertArtifact `json:"alerts"`
	Count  int                       `json:"count"`
}

// SystemStatus is the overall service state
type SystemStatus struct {
	Uptime          string       `json:"uptime"`
	StartedAt       time.Time    `json:"started_at"`
	FramesProcessed uint64       `json:"frames_processed"`
	Alert           alert.Status `json:"alert"`
	Notifier        string       `json:"notifier"`
	GPIOLine        string       `json:"gpio_line"`
	WSClients       int          `json:"ws_clients"`
	AlertsStored    int64        `json:"alerts_stored"`
	AlertsFailed    int64        `json:"alerts_failed_stored"`
}
