// Package notify delivers alert snapshots to people: email is the primary
// channel, Telegram an optional secondary one.
package notify

import (
	"context"
	"errors"
	"strings"

	"forestwatch/internal/pipeline"
	"forestwatch/pkg/log"
)

// ErrDisabled is returned by a channel that is switched off in configuration
var ErrDisabled = errors.New("notification channel is disabled")

// Notifier sends an alert snapshot through one channel
type Notifier interface {
	// Name identifies the channel in logs
	Name() string

	// SendAlert delivers the artifact's snapshot; it blocks until the
	// channel accepted or rejected the message
	SendAlert(ctx context.Context, artifact *pipeline.AlertArtifact) error

	// SendTest sends a message proving the channel configuration works
	SendTest(ctx context.Context) error
}

// Multi delivers through a primary channel and, once that succeeded, through
// best-effort secondary channels. Only the primary result is reported.
type Multi struct {
	primary   Notifier
	secondary []Notifier
	logger    log.Logger
}

// NewMulti creates a notifier whose outcome is decided by primary
func NewMulti(logger log.Logger, primary Notifier, secondary ...Notifier) *Multi {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Multi{primary: primary, secondary: secondary, logger: logger}
}

// Name implements Notifier
func (m *Multi) Name() string {
	names := []string{m.primary.Name()}
	for _, s := range m.secondary {
		names = append(names, s.Name())
	}
	return strings.Join(names, "+")
}

// SendAlert implements Notifier
func (m *Multi) SendAlert(ctx context.Context, artifact *pipeline.AlertArtifact) error {
	if err := m.primary.SendAlert(ctx, artifact); err != nil {
		return err
	}

	for _, s := range m.secondary {
		if err := s.SendAlert(ctx, artifact); err != nil {
			m.logger.Warnf(ctx, "[Notify] %s delivery failed for alert %s: %v", s.Name(), artifact.ID, err)
		}
	}
	return nil
}

// SendTest implements Notifier; every channel is tried and the first error
// is returned
func (m *Multi) SendTest(ctx context.Context) error {
	var first error
	for _, n := range append([]Notifier{m.primary}, m.secondary...) {
		if err := n.SendTest(ctx); err != nil {
			m.logger.Warnf(ctx, "[Notify] %s test failed: %v", n.Name(), err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// lifeType is the human wording for a detection label
func lifeType(label string) string {
	switch label {
	case "person":
		return "Human"
	case "":
		return "Unknown"
	default:
		return strings.ToUpper(label[:1]) + label[1:]
	}
}
