// Package display keeps the most recent frame per camera and renders it with
// the detection info panel for live viewing.
package display

import (
	"context"
	"errors"
	"image"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"

	"forestwatch/internal/pipeline"
	"forestwatch/internal/snapshot"
	"forestwatch/pkg/log"
)

// ErrNoFrame is returned when no frame has been seen for a camera
var ErrNoFrame = errors.New("no frame available")

type latestFrame struct {
	frame      image.Image
	detections []pipeline.Detection
	at         time.Time
}

// Latest is a frame consumer that remembers the last decoded frame of each
// camera. Frames without an image are ignored.
type Latest struct {
	label         string
	minConfidence float64
	quality       int
	logger        log.Logger
	stream        *Stream

	mu         sync.RWMutex
	frames     map[string]*latestFrame
	lastCamera string
}

// NewLatest creates the live-view store. Detections matching label above
// minConfidence are outlined on the rendered frame.
func NewLatest(label string, minConfidence float64, quality int, logger log.Logger) *Latest {
	return &Latest{
		label:         label,
		minConfidence: minConfidence,
		quality:       quality,
		logger:        logger,
		frames:        make(map[string]*latestFrame),
	}
}

// WithStream renders every new frame into s while it has clients
func (l *Latest) WithStream(s *Stream) *Latest {
	l.stream = s
	return l
}

// OnFrame implements pipeline.FrameConsumer
func (l *Latest) OnFrame(ctx context.Context, event *pipeline.FrameEvent) pipeline.Signal {
	if event == nil || event.Frame == nil {
		return pipeline.SignalContinue
	}

	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	l.mu.Lock()
	l.frames[event.CameraID] = &latestFrame{frame: event.Frame, detections: event.Detections, at: at}
	l.lastCamera = event.CameraID
	l.mu.Unlock()

	if l.stream != nil && l.stream.HasClients(event.CameraID) {
		data, err := l.Render(event.CameraID)
		if err != nil {
			l.logger.Warnf(ctx, "[Display] Render failed for %s: %v", event.CameraID, err)
		} else {
			l.stream.Publish(event.CameraID, data)
		}
	}
	return pipeline.SignalContinue
}

// Render composes the info panel for a camera, or the most recently active
// camera when cameraID is empty
func (l *Latest) Render(cameraID string) ([]byte, error) {
	l.mu.RLock()
	if cameraID == "" {
		cameraID = l.lastCamera
	}
	f, ok := l.frames[cameraID]
	l.mu.RUnlock()
	if !ok {
		return nil, ErrNoFrame
	}

	b := f.frame.Bounds()
	matches := lo.Filter(f.detections, func(d pipeline.Detection, _ int) bool {
		return d.Label == l.label && d.Confidence > l.minConfidence
	})
	boxes := lo.Map(matches, func(d pipeline.Detection, _ int) pipeline.PixelBox {
		return d.BBox.ToPixels(b.Dx(), b.Dy())
	})

	panel := snapshot.ComposePanel(f.frame, snapshot.PanelInfo{
		Detections: len(matches),
		Boxes:      boxes,
		At:         f.at,
	})
	return snapshot.EncodeJPEG(panel, l.quality)
}

// ServeHTTP serves the rendered panel as image/jpeg
func (l *Latest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := l.Render(r.URL.Query().Get("camera_id"))
	if errors.Is(err, ErrNoFrame) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		l.logger.Errorf(r.Context(), "[Display] Render failed: %v", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

var _ pipeline.FrameConsumer = (*Latest)(nil)
