package pipeline

import (
	"context"
)

// FrameConsumer receives frames for processing
type FrameConsumer interface {
	// OnFrame is called for each frame delivered by the inference pipeline
	OnFrame(ctx context.Context, event *FrameEvent) Signal
}

// FrameConsumerFunc adapts a plain function to FrameConsumer
type FrameConsumerFunc func(ctx context.Context, event *FrameEvent) Signal

// OnFrame implements FrameConsumer
func (f FrameConsumerFunc) OnFrame(ctx context.Context, event *FrameEvent) Signal {
	return f(ctx, event)
}

// AlertHandler receives alert artifacts once an alert attempt completes
type AlertHandler interface {
	// OnAlert is called for every alert attempt, sent or not
	OnAlert(ctx context.Context, artifact *AlertArtifact)
}

// AlertHandlerFunc adapts a plain function to AlertHandler
type AlertHandlerFunc func(ctx context.Context, artifact *AlertArtifact)

// OnAlert implements AlertHandler
func (f AlertHandlerFunc) OnAlert(ctx context.Context, artifact *AlertArtifact) {
	f(ctx, artifact)
}
