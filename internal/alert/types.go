// Package alert turns a stream of per-frame detections into alerts: a
// detection must be held for a while before a snapshot is saved, emailed and
// signalled on the GPIO line, after which a cooldown suppresses new alerts.
package alert

import (
	"context"
	"image"
	"time"

	"forestwatch/internal/pipeline"
)

const (
	DefaultLabel         = "person"
	DefaultMinConfidence = 0.96
	DefaultHold          = 2 * time.Second
	DefaultCooldown      = 10 * time.Minute
	DefaultPulse         = time.Second
)

// Config holds the alert thresholds
type Config struct {
	Label         string        // Detection label that can raise an alert
	MinConfidence float64       // Confidence must be strictly above this
	Hold          time.Duration // Continuous detection needed before alerting
	Cooldown      time.Duration // Suppression period after a successful alert
	Pulse         time.Duration // GPIO high time on a successful alert

	// ResetHoldOnFailure clears the hold after a failed alert attempt so the
	// next attempt waits for a full hold window again. When false the next
	// qualifying frame re-attempts immediately.
	ResetHoldOnFailure bool
}

// DefaultConfig returns the stock alert thresholds
func DefaultConfig() Config {
	return Config{
		Label:         DefaultLabel,
		MinConfidence: DefaultMinConfidence,
		Hold:          DefaultHold,
		Cooldown:      DefaultCooldown,
		Pulse:         DefaultPulse,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Label == "" {
		c.Label = d.Label
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.Hold <= 0 {
		c.Hold = d.Hold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.Pulse <= 0 {
		c.Pulse = d.Pulse
	}
	return c
}

// SnapshotWriter persists an in-memory frame to a file
type SnapshotWriter interface {
	PathFor(label string, at time.Time) string
	Save(img image.Image, path string) error
}

// Notifier sends the alert snapshot to a person
type Notifier interface {
	SendAlert(ctx context.Context, artifact *pipeline.AlertArtifact) error
}

// Output is the GPIO line pulsed on a successful alert
type Output interface {
	Pulse(ctx context.Context, d time.Duration) error
}

// Publisher receives every alert attempt
type Publisher interface {
	Publish(ctx context.Context, artifact *pipeline.AlertArtifact)
}

// Outcome describes what a frame did to the alert state
type Outcome string

const (
	OutcomeIdle           Outcome = "idle"            // No qualifying detection
	OutcomeHoldStarted    Outcome = "hold_started"    // First qualifying frame of a hold
	OutcomeHolding        Outcome = "holding"         // Hold window not reached yet
	OutcomeCoolingDown    Outcome = "cooling_down"    // Hold reached but cooldown active
	OutcomeAlerted        Outcome = "alerted"         // Snapshot sent, cooldown started
	OutcomeNoFrame        Outcome = "no_frame"        // Hold reached without an image
	OutcomeSnapshotFailed Outcome = "snapshot_failed" // Snapshot could not be written
	OutcomeNotifyFailed   Outcome = "notify_failed"   // Email could not be sent
)

// Result is returned for every frame
type Result struct {
	Signal    pipeline.Signal
	Outcome   Outcome
	Detection *pipeline.Detection     // First qualifying detection, if any
	Artifact  *pipeline.AlertArtifact // Set when an alert was attempted
	Err       error                   // Failure of the alert attempt, if any
}

// Status is a point-in-time view of the controller state
type Status struct {
	Holding        bool                    `json:"holding"`
	HoldSince      *time.Time              `json:"hold_since,omitempty"`
	CooldownActive bool                    `json:"cooldown_active"`
	CooldownUntil  *time.Time              `json:"cooldown_until,omitempty"`
	AlertsSent     uint64                  `json:"alerts_sent"`
	AlertsFailed   uint64                  `json:"alerts_failed"`
	LastAlert      *pipeline.AlertArtifact `json:"last_alert,omitempty"`
}
