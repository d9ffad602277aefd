package services

import (
	"context"
	"time"

	"forestwatch/internal/alert"
)

// StatusSources are the live components the system status reads from
type StatusSources struct {
	Controller interface{ Status() alert.Status }
	Frames     interface{ FramesProcessed() uint64 }
	Clients    interface{ ClientCount() int }
	Alerts     *AlertImplementation
	Notifier   string
	GPIOLine   string
}

// SystemImplementation implements the system status service
type SystemImplementation struct {
	src       StatusSources
	startTime time.Time
	now       func() time.Time
}

// NewSystemService creates a new system service implementation
func NewSystemService(src StatusSources) *SystemImplementation {
	return &SystemImplementation{src: src, startTime: time.Now(), now: time.Now}
}

// Status returns the overall system status
func (s *SystemImplementation) Status(ctx context.Context) (*SystemStatus, error) {
	status := &SystemStatus{
		StartedAt: s.startTime,
		Uptime:    s.now().Sub(s.startTime).Round(time.Second).String(),
		Notifier:  s.src.Notifier,
		GPIOLine:  s.src.GPIOLine,
	}
	if s.src.Controller != nil {
		status.Alert = s.src.Controller.Status()
	}
	if s.src.Frames != nil {
		status.FramesProcessed = s.src.Frames.FramesProcessed()
	}
	if s.src.Clients != nil {
		status.WSClients = s.src.Clients.ClientCount()
	}
	if s.src.Alerts != nil {
		sent, failed, err := s.src.Alerts.Counts(ctx)
		if err != nil {
			return nil, err
		}
		status.AlertsStored = sent + failed
		status.AlertsFailed = failed
	}
	return status, nil
}
