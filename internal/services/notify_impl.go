package services

import (
	"context"
	"fmt"
)

// TestSender sends a test notification on every configured channel
type TestSender interface {
	Name() string
	SendTest(ctx context.Context) error
}

// NotifyResult reports the outcome of a test notification
type NotifyResult struct {
	Channel string `json:"channel"`
	Sent    bool   `json:"sent"`
}

// NotifyImplementation implements the notification test endpoint
type NotifyImplementation struct {
	sender TestSender
}

// NewNotifyService creates the notify service
func NewNotifyService(sender TestSender) *NotifyImplementation {
	return &NotifyImplementation{sender: sender}
}

// Test sends a test message without a snapshot
func (s *NotifyImplementation) Test(ctx context.Context) (*NotifyResult, error) {
	if err := s.sender.SendTest(ctx); err != nil {
		return nil, fmt.Errorf("test notification via %s failed: %w", s.sender.Name(), err)
	}
	return &NotifyResult{Channel: s.sender.Name(), Sent: true}, nil
}
