// Package gpio drives the single digital output line raised on every alert.
package gpio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"forestwatch/pkg/log"
)

// Output is a digital output line that can be pulsed high
type Output interface {
	// Pulse drives the line high, waits d, then drives it low. The line is
	// driven low even when ctx is cancelled during the wait.
	Pulse(ctx context.Context, d time.Duration) error
	Name() string
	Close() error
}

var hostInit sync.Once
var hostErr error

// Pin is an Output backed by a real GPIO line
type Pin struct {
	pin gpio.PinOut
	mu  sync.Mutex
}

// Open initializes the host drivers and returns the named line driven low,
// e.g. "GPIO27" for BCM 27 on a Raspberry Pi.
func Open(name string) (*Pin, error) {
	hostInit.Do(func() {
		_, hostErr = host.Init()
	})
	if hostErr != nil {
		return nil, fmt.Errorf("failed to initialize gpio host drivers: %w", hostErr)
	}

	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio line %q not found", name)
	}
	return NewPin(p)
}

// NewPin wraps an already resolved line and drives it low
func NewPin(p gpio.PinOut) (*Pin, error) {
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to drive %s low: %w", p.Name(), err)
	}
	return &Pin{pin: p}, nil
}

// Name implements Output
func (p *Pin) Name() string {
	return p.pin.Name()
}

// Pulse implements Output
func (p *Pin) Pulse(ctx context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.pin.Out(gpio.High); err != nil {
		return fmt.Errorf("failed to drive %s high: %w", p.pin.Name(), err)
	}

	timer := time.NewTimer(d)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}

	if err := p.pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to drive %s low: %w", p.pin.Name(), err)
	}
	return nil
}

// Close drives the line low and releases it
func (p *Pin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.pin.Out(gpio.Low); err != nil {
		return err
	}
	return p.pin.Halt()
}

// LogOutput stands in for a GPIO line on machines without one. It logs the
// pulse and waits like the real line would so alert timing is unchanged.
type LogOutput struct {
	name   string
	logger log.Logger
}

// NewLogOutput creates a logging stand-in for the named line
func NewLogOutput(name string, logger log.Logger) *LogOutput {
	if logger == nil {
		logger = log.NewNop()
	}
	return &LogOutput{name: name, logger: logger}
}

// Name implements Output
func (o *LogOutput) Name() string {
	return o.name
}

// Pulse implements Output
func (o *LogOutput) Pulse(ctx context.Context, d time.Duration) error {
	o.logger.Infof(ctx, "[GPIO] %s high for %s (simulated)", o.name, d)
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
	o.logger.Infof(ctx, "[GPIO] %s low (simulated)", o.name)
	return nil
}

// Close implements Output
func (o *LogOutput) Close() error {
	return nil
}

var (
	_ Output = (*Pin)(nil)
	_ Output = (*LogOutput)(nil)
)
