package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
)

// Dispatcher fans a frame out to several consumers. Frames from every ingest
// source go through one Dispatcher, which processes them strictly one at a
// time so consumers never see concurrent OnFrame calls.
type Dispatcher struct {
	consumers []FrameConsumer
	mu        sync.Mutex
	frames    atomic.Uint64
}

// NewDispatcher creates a dispatcher delivering to consumers in order
func NewDispatcher(consumers ...FrameConsumer) *Dispatcher {
	return &Dispatcher{consumers: consumers}
}

// OnFrame implements FrameConsumer. The result is always SignalContinue.
func (d *Dispatcher) OnFrame(ctx context.Context, event *FrameEvent) Signal {
	if event == nil {
		return SignalContinue
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.frames.Add(1)
	for _, c := range d.consumers {
		if c == nil {
			continue
		}
		c.OnFrame(ctx, event)
	}
	return SignalContinue
}

// FramesProcessed returns the number of frames dispatched so far
func (d *Dispatcher) FramesProcessed() uint64 {
	return d.frames.Load()
}

// Ensure Dispatcher implements FrameConsumer
var _ FrameConsumer = (*Dispatcher)(nil)
