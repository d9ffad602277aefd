package alert

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forestwatch/internal/pipeline"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeSnapshots struct {
	saved []string
	err   error
}

func (f *fakeSnapshots) PathFor(label string, at time.Time) string {
	return fmt.Sprintf("alerts/alert_%s_%d.jpg", label, at.Unix())
}

func (f *fakeSnapshots) Save(img image.Image, path string) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, path)
	return nil
}

type fakeNotifier struct {
	sent []*pipeline.AlertArtifact
	err  error
}

func (f *fakeNotifier) SendAlert(ctx context.Context, a *pipeline.AlertArtifact) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, a)
	return nil
}

type fakeOutput struct {
	pulses []time.Duration
	err    error
}

func (f *fakeOutput) Pulse(ctx context.Context, d time.Duration) error {
	f.pulses = append(f.pulses, d)
	return f.err
}

type fakePublisher struct {
	published []*pipeline.AlertArtifact
}

func (f *fakePublisher) Publish(ctx context.Context, a *pipeline.AlertArtifact) {
	f.published = append(f.published, a)
}

type harness struct {
	clock     *fakeClock
	snapshots *fakeSnapshots
	notifier  *fakeNotifier
	output    *fakeOutput
	publisher *fakePublisher
	ctrl      *Controller
}

func newHarness(cfg Config) *harness {
	h := &harness{
		clock:     &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		snapshots: &fakeSnapshots{},
		notifier:  &fakeNotifier{},
		output:    &fakeOutput{},
		publisher: &fakePublisher{},
	}
	ids := 0
	h.ctrl = NewController(cfg, h.snapshots, h.notifier, h.output,
		WithClock(h.clock.Now),
		WithPublisher(h.publisher),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("alert-%d", ids)
		}),
	)
	return h
}

var testFrame = image.NewRGBA(image.Rect(0, 0, 640, 480))

func personFrame(conf float64) *pipeline.FrameEvent {
	return &pipeline.FrameEvent{
		CameraID: "cam0",
		Width:    640,
		Height:   480,
		Frame:    testFrame,
		Detections: []pipeline.Detection{
			{Label: "person", Confidence: conf, BBox: pipeline.BBox{XMin: 0.5, YMin: 0.25, Width: 0.25, Height: 0.5}},
		},
	}
}

func emptyFrame() *pipeline.FrameEvent {
	return &pipeline.FrameEvent{CameraID: "cam0", Width: 640, Height: 480, Frame: testFrame}
}

// feed sends a qualifying frame every step for the given duration, starting now
func (h *harness) feed(t *testing.T, total, step time.Duration) []Result {
	t.Helper()
	var results []Result
	for elapsed := time.Duration(0); elapsed <= total; elapsed += step {
		results = append(results, h.ctrl.Process(context.Background(), personFrame(0.98)))
		h.clock.Advance(step)
	}
	return results
}

func countOutcome(results []Result, o Outcome) int {
	n := 0
	for _, r := range results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}

func TestShortHoldNeverAlerts(t *testing.T) {
	h := newHarness(DefaultConfig())

	results := h.feed(t, 1900*time.Millisecond, 100*time.Millisecond)

	assert.Equal(t, 0, countOutcome(results, OutcomeAlerted))
	assert.Empty(t, h.snapshots.saved)
	assert.Empty(t, h.notifier.sent)
	assert.True(t, h.ctrl.Status().Holding)
}

func TestSustainedHoldAlertsOnceThenCoolsDown(t *testing.T) {
	h := newHarness(DefaultConfig())

	r := h.ctrl.Process(context.Background(), personFrame(0.98))
	assert.Equal(t, OutcomeHoldStarted, r.Outcome)

	h.clock.Advance(2 * time.Second)
	r = h.ctrl.Process(context.Background(), personFrame(0.98))
	require.Equal(t, OutcomeAlerted, r.Outcome)
	require.NotNil(t, r.Artifact)
	assert.True(t, r.Artifact.EmailSent)
	assert.Equal(t, "alerts/alert_person_1772366402.jpg", r.Artifact.ImagePath)
	assert.Equal(t, pipeline.PixelBox{X: 320, Y: 120, W: 160, H: 240}, r.Artifact.Box)
	assert.Equal(t, pipeline.SignalContinue, r.Signal)
	assert.Equal(t, []time.Duration{time.Second}, h.output.pulses)
	assert.Len(t, h.publisher.published, 1)

	status := h.ctrl.Status()
	assert.False(t, status.Holding, "hold is cleared after a successful alert")
	assert.True(t, status.CooldownActive)
	assert.Equal(t, uint64(1), status.AlertsSent)

	// Continued detection for most of the cooldown produces nothing new
	results := h.feed(t, 9*time.Minute, 10*time.Second)
	assert.Equal(t, 0, countOutcome(results, OutcomeAlerted))
	assert.Greater(t, countOutcome(results, OutcomeCoolingDown), 0)
	assert.Len(t, h.notifier.sent, 1)
	assert.Len(t, h.snapshots.saved, 1)
}

func TestAlertAgainAfterCooldownExpires(t *testing.T) {
	h := newHarness(DefaultConfig())

	h.ctrl.Process(context.Background(), personFrame(0.98))
	h.clock.Advance(2 * time.Second)
	require.Equal(t, OutcomeAlerted, h.ctrl.Process(context.Background(), personFrame(0.98)).Outcome)

	// Person leaves, cooldown runs out
	h.ctrl.Process(context.Background(), emptyFrame())
	h.clock.Advance(10 * time.Minute)
	h.ctrl.Process(context.Background(), emptyFrame())
	assert.False(t, h.ctrl.Status().CooldownActive)

	results := h.feed(t, 5*time.Second, 500*time.Millisecond)
	assert.Equal(t, 1, countOutcome(results, OutcomeAlerted))
	assert.Len(t, h.notifier.sent, 2)
}

func TestHoldAccumulatesDuringCooldown(t *testing.T) {
	h := newHarness(DefaultConfig())

	h.ctrl.Process(context.Background(), personFrame(0.98))
	h.clock.Advance(2 * time.Second)
	require.Equal(t, OutcomeAlerted, h.ctrl.Process(context.Background(), personFrame(0.98)).Outcome)

	// A new hold starts inside the cooldown and keeps accumulating
	h.clock.Advance(time.Second)
	assert.Equal(t, OutcomeHoldStarted, h.ctrl.Process(context.Background(), personFrame(0.98)).Outcome)
	h.clock.Advance(10 * time.Minute)

	// The cooldown has expired and the hold is already long enough
	r := h.ctrl.Process(context.Background(), personFrame(0.98))
	assert.Equal(t, OutcomeAlerted, r.Outcome)
}

func TestGapResetsHold(t *testing.T) {
	h := newHarness(DefaultConfig())

	h.ctrl.Process(context.Background(), personFrame(0.98))
	h.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, OutcomeIdle, h.ctrl.Process(context.Background(), emptyFrame()).Outcome)
	assert.False(t, h.ctrl.Status().Holding)

	h.clock.Advance(100 * time.Millisecond)
	assert.Equal(t, OutcomeHoldStarted, h.ctrl.Process(context.Background(), personFrame(0.98)).Outcome)
	h.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, OutcomeHolding, h.ctrl.Process(context.Background(), personFrame(0.98)).Outcome)

	assert.Empty(t, h.notifier.sent)
}

func TestConfidenceMustExceedThreshold(t *testing.T) {
	h := newHarness(DefaultConfig())

	assert.Equal(t, OutcomeIdle, h.ctrl.Process(context.Background(), personFrame(0.96)).Outcome)
	assert.Equal(t, OutcomeHoldStarted, h.ctrl.Process(context.Background(), personFrame(0.961)).Outcome)

	other := personFrame(0.99)
	other.Detections[0].Label = "dog"
	assert.Equal(t, OutcomeIdle, h.ctrl.Process(context.Background(), other).Outcome)
}

func TestConfidenceJustAboveThresholdQualifies(t *testing.T) {
	h := newHarness(DefaultConfig())

	// Would round down to exactly 0.96 in single precision
	assert.Equal(t, OutcomeHoldStarted, h.ctrl.Process(context.Background(), personFrame(0.9600000001)).Outcome)
}

func TestOnlyFirstQualifyingDetectionIsUsed(t *testing.T) {
	h := newHarness(DefaultConfig())

	frame := personFrame(0.98)
	frame.Detections = []pipeline.Detection{
		{Label: "person", Confidence: 0.5},
		{Label: "person", Confidence: 0.97, BBox: pipeline.BBox{XMin: 0.1}},
		{Label: "person", Confidence: 0.99, BBox: pipeline.BBox{XMin: 0.9}},
	}

	r := h.ctrl.Process(context.Background(), frame)
	require.NotNil(t, r.Detection)
	assert.Equal(t, 0.97, r.Detection.Confidence)
}

func TestEmailFailureRetriesOnNextFrame(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.notifier.err = errors.New("smtp unavailable")

	h.ctrl.Process(context.Background(), personFrame(0.98))
	h.clock.Advance(2 * time.Second)

	r := h.ctrl.Process(context.Background(), personFrame(0.98))
	assert.Equal(t, OutcomeNotifyFailed, r.Outcome)
	assert.Error(t, r.Err)
	require.NotNil(t, r.Artifact)
	assert.False(t, r.Artifact.EmailSent)
	assert.Empty(t, h.output.pulses)

	status := h.ctrl.Status()
	assert.False(t, status.CooldownActive, "failed email must not start cooldown")
	assert.True(t, status.Holding, "failed email keeps the hold")
	assert.Equal(t, uint64(1), status.AlertsFailed)

	// The very next qualifying frame re-attempts without waiting for a new hold
	h.notifier.err = nil
	h.clock.Advance(100 * time.Millisecond)
	r = h.ctrl.Process(context.Background(), personFrame(0.98))
	assert.Equal(t, OutcomeAlerted, r.Outcome)
	assert.Len(t, h.publisher.published, 2, "failed and successful attempts are both published")
}

func TestEmailFailureWithHoldReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResetHoldOnFailure = true
	h := newHarness(cfg)
	h.notifier.err = errors.New("smtp unavailable")

	h.ctrl.Process(context.Background(), personFrame(0.98))
	h.clock.Advance(2 * time.Second)
	assert.Equal(t, OutcomeNotifyFailed, h.ctrl.Process(context.Background(), personFrame(0.98)).Outcome)

	h.notifier.err = nil
	h.clock.Advance(100 * time.Millisecond)
	assert.Equal(t, OutcomeHoldStarted, h.ctrl.Process(context.Background(), personFrame(0.98)).Outcome)
}

func TestSnapshotFailureIsNonFatal(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.snapshots.err = errors.New("disk full")

	h.ctrl.Process(context.Background(), personFrame(0.98))
	h.clock.Advance(2 * time.Second)

	r := h.ctrl.Process(context.Background(), personFrame(0.98))
	assert.Equal(t, OutcomeSnapshotFailed, r.Outcome)
	assert.Equal(t, pipeline.SignalContinue, r.Signal)
	assert.Empty(t, h.notifier.sent, "no email without a snapshot")
	assert.Empty(t, h.publisher.published)
	assert.False(t, h.ctrl.Status().CooldownActive)
	assert.True(t, h.ctrl.Status().Holding)
}

func TestMissingFrameStartsCooldownWithoutAlert(t *testing.T) {
	h := newHarness(DefaultConfig())

	noImage := personFrame(0.98)
	noImage.Frame = nil

	h.ctrl.Process(context.Background(), noImage)
	h.clock.Advance(2 * time.Second)

	r := h.ctrl.Process(context.Background(), noImage)
	assert.Equal(t, OutcomeNoFrame, r.Outcome)
	assert.Empty(t, h.snapshots.saved)
	assert.Empty(t, h.notifier.sent)

	status := h.ctrl.Status()
	assert.True(t, status.CooldownActive)
	assert.False(t, status.Holding)
}

func TestGPIOFailureDoesNotUndoAlert(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.output.err = errors.New("line busy")

	h.ctrl.Process(context.Background(), personFrame(0.98))
	h.clock.Advance(2 * time.Second)

	r := h.ctrl.Process(context.Background(), personFrame(0.98))
	assert.Equal(t, OutcomeAlerted, r.Outcome)
	assert.True(t, h.ctrl.Status().CooldownActive)
}

func TestOnFrameAlwaysContinues(t *testing.T) {
	h := newHarness(DefaultConfig())
	h.notifier.err = errors.New("smtp unavailable")

	for i := 0; i < 50; i++ {
		assert.Equal(t, pipeline.SignalContinue, h.ctrl.OnFrame(context.Background(), personFrame(0.98)))
		h.clock.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, pipeline.SignalContinue, h.ctrl.OnFrame(context.Background(), nil))
}

func TestConfigDefaults(t *testing.T) {
	c := NewController(Config{}, &fakeSnapshots{}, &fakeNotifier{}, nil)
	assert.Equal(t, DefaultConfig(), c.Config())
}

type stampingPublisher struct{}

func (stampingPublisher) Publish(ctx context.Context, a *pipeline.AlertArtifact) {
	a.ObjectKey = "alerts/cam0/" + a.ID + ".jpg"
}

func TestStatusDoesNotShareArtifactWithSubscribers(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ctrl := NewController(Config{}, &fakeSnapshots{}, &fakeNotifier{}, &fakeOutput{},
		WithClock(clock.Now),
		WithPublisher(stampingPublisher{}),
		WithIDGenerator(func() string { return "alert-1" }),
	)

	ctrl.Process(context.Background(), personFrame(0.98))
	clock.Advance(DefaultHold)

	// Run with -race: Status copies the last alert while the publisher
	// writes to the artifact it was handed.
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				_ = ctrl.Status()
			}
		}
	}()

	res := ctrl.Process(context.Background(), personFrame(0.98))
	close(stop)
	<-done

	require.Equal(t, OutcomeAlerted, res.Outcome)
	st := ctrl.Status()
	require.NotNil(t, st.LastAlert)
	assert.Equal(t, "alerts/cam0/alert-1.jpg", st.LastAlert.ObjectKey)
	assert.NotSame(t, res.Artifact, st.LastAlert)
}
