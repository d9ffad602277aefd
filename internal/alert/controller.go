package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"forestwatch/internal/pipeline"
	"forestwatch/pkg/log"
)

// Controller is the per-stream alert state machine. Frames must be fed one
// at a time; Status may be called concurrently from other goroutines.
type Controller struct {
	cfg       Config
	snapshots SnapshotWriter
	notifier  Notifier
	output    Output
	publisher Publisher
	logger    log.Logger
	now       func() time.Time
	newID     func() string

	frameMu sync.Mutex // serializes Process

	mu            sync.RWMutex // guards the fields below
	holdStart     time.Time
	cooldownUntil time.Time
	alertsSent    uint64
	alertsFailed  uint64
	lastAlert     *pipeline.AlertArtifact
}

// Option configures a Controller
type Option func(*Controller)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger
func WithLogger(l log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithPublisher sets where alert attempts are published
func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// WithIDGenerator replaces the uuid-based alert ID generator
func WithIDGenerator(gen func() string) Option {
	return func(c *Controller) { c.newID = gen }
}

// NewController creates an alert controller. output may be nil when no GPIO
// line is wired.
func NewController(cfg Config, snapshots SnapshotWriter, notifier Notifier, output Output, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg.withDefaults(),
		snapshots: snapshots,
		notifier:  notifier,
		output:    output,
		logger:    log.NewNop(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective thresholds
func (c *Controller) Config() Config {
	return c.cfg
}

// OnFrame implements pipeline.FrameConsumer
func (c *Controller) OnFrame(ctx context.Context, event *pipeline.FrameEvent) pipeline.Signal {
	return c.Process(ctx, event).Signal
}

// Process evaluates one frame and performs any alert side effects
func (c *Controller) Process(ctx context.Context, event *pipeline.FrameEvent) Result {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()

	now := c.now()
	res := Result{Signal: pipeline.SignalContinue, Outcome: OutcomeIdle}

	c.mu.Lock()
	c.expireCooldownLocked(ctx, now)

	det, found := c.firstQualifying(event)
	if !found {
		c.holdStart = time.Time{}
		c.mu.Unlock()
		return res
	}
	res.Detection = &det
	c.logDetection(ctx, event, det)

	if c.holdStart.IsZero() {
		c.holdStart = now
		c.mu.Unlock()
		res.Outcome = OutcomeHoldStarted
		return res
	}
	if now.Sub(c.holdStart) < c.cfg.Hold {
		c.mu.Unlock()
		res.Outcome = OutcomeHolding
		return res
	}
	if c.cooldownActiveLocked(now) {
		c.mu.Unlock()
		res.Outcome = OutcomeCoolingDown
		return res
	}

	if event.Frame == nil {
		// Nothing to send; back off for a full cooldown rather than retrying
		// every frame.
		c.logger.Warnf(ctx, "[Alert] Frame unavailable for camera %s, cannot send alert", event.CameraID)
		c.startCooldownLocked(ctx, now)
		c.holdStart = time.Time{}
		c.mu.Unlock()
		res.Outcome = OutcomeNoFrame
		return res
	}
	c.mu.Unlock()

	return c.fire(ctx, event, det, now, res)
}

// fire runs the snapshot -> notify -> GPIO sequence. Called without mu held;
// frameMu keeps the state from changing underneath.
func (c *Controller) fire(ctx context.Context, event *pipeline.FrameEvent, det pipeline.Detection, now time.Time, res Result) Result {
	width, height := event.FrameSize()
	artifact := &pipeline.AlertArtifact{
		ID:         c.newID(),
		CameraID:   event.CameraID,
		Label:      det.Label,
		Confidence: det.Confidence,
		Box:        det.BBox.ToPixels(width, height),
		ImagePath:  c.snapshots.PathFor(det.Label, now),
		CreatedAt:  now,
	}

	if err := c.snapshots.Save(event.Frame, artifact.ImagePath); err != nil {
		c.logger.Errorf(ctx, "[Alert] Failed to save snapshot %s: %v", artifact.ImagePath, err)
		c.recordFailure()
		res.Outcome = OutcomeSnapshotFailed
		res.Err = err
		return res
	}
	c.logger.Infof(ctx, "[Alert] Snapshot saved at: %s", artifact.ImagePath)
	res.Artifact = artifact

	if err := c.notifier.SendAlert(ctx, artifact); err != nil {
		c.logger.Errorf(ctx, "[Alert] Failed to send alert %s: %v", artifact.ID, err)
		c.recordFailure()
		c.publish(ctx, artifact)
		res.Outcome = OutcomeNotifyFailed
		res.Err = err
		return res
	}
	artifact.EmailSent = true
	c.logger.Infof(ctx, "[Alert] Alert %s sent for camera %s", artifact.ID, artifact.CameraID)

	c.mu.Lock()
	c.startCooldownLocked(ctx, now)
	c.holdStart = time.Time{}
	c.alertsSent++
	c.mu.Unlock()

	if c.output != nil {
		if err := c.output.Pulse(ctx, c.cfg.Pulse); err != nil {
			c.logger.Errorf(ctx, "[Alert] GPIO pulse failed: %v", err)
		}
	}

	c.publish(ctx, artifact)

	// Subscribers may still stamp the published artifact (object key), so
	// Status works on its own copy taken once they are done.
	last := *artifact
	c.mu.Lock()
	c.lastAlert = &last
	c.mu.Unlock()

	res.Outcome = OutcomeAlerted
	return res
}

func (c *Controller) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.alertsFailed++
	if c.cfg.ResetHoldOnFailure {
		c.holdStart = time.Time{}
	}
}

func (c *Controller) publish(ctx context.Context, artifact *pipeline.AlertArtifact) {
	if c.publisher != nil {
		c.publisher.Publish(ctx, artifact)
	}
}

// firstQualifying returns the first detection with the alert label above the
// confidence threshold; later ones in the same frame are ignored
func (c *Controller) firstQualifying(event *pipeline.FrameEvent) (pipeline.Detection, bool) {
	if event == nil {
		return pipeline.Detection{}, false
	}
	return lo.Find(event.Detections, func(d pipeline.Detection) bool {
		return d.Label == c.cfg.Label && d.Confidence > c.cfg.MinConfidence
	})
}

func (c *Controller) logDetection(ctx context.Context, event *pipeline.FrameEvent, det pipeline.Detection) {
	width, height := event.FrameSize()
	box := det.BBox.ToPixels(width, height)
	c.logger.Debugf(ctx, "[Alert] %s detected on %s: confidence=%.2f bbox=x:%d,y:%d,w:%d,h:%d frame=%dx%d",
		det.Label, event.CameraID, det.Confidence, box.X, box.Y, box.W, box.H, width, height)
}

func (c *Controller) startCooldownLocked(ctx context.Context, now time.Time) {
	c.cooldownUntil = now.Add(c.cfg.Cooldown)
	c.logger.Infof(ctx, "[Alert] Cooldown started, alerts suppressed until %s", c.cooldownUntil.Format(time.RFC3339))
}

func (c *Controller) cooldownActiveLocked(now time.Time) bool {
	return !c.cooldownUntil.IsZero() && now.Before(c.cooldownUntil)
}

func (c *Controller) expireCooldownLocked(ctx context.Context, now time.Time) {
	if c.cooldownUntil.IsZero() || now.Before(c.cooldownUntil) {
		return
	}
	c.cooldownUntil = time.Time{}
	c.logger.Info(ctx, "[Alert] Cooldown ended. System is ready.")
}

// Status returns a snapshot of the controller state
func (c *Controller) Status() Status {
	now := c.now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{
		Holding:        !c.holdStart.IsZero(),
		CooldownActive: c.cooldownActiveLocked(now),
		AlertsSent:     c.alertsSent,
		AlertsFailed:   c.alertsFailed,
	}
	if s.Holding {
		t := c.holdStart
		s.HoldSince = &t
	}
	if s.CooldownActive {
		t := c.cooldownUntil
		s.CooldownUntil = &t
	}
	if c.lastAlert != nil {
		a := *c.lastAlert
		s.LastAlert = &a
	}
	return s
}

// Ensure Controller implements pipeline.FrameConsumer
var _ pipeline.FrameConsumer = (*Controller)(nil)
