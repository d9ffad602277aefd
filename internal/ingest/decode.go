// Package ingest turns frame events from the inference pipeline into
// pipeline.FrameEvent values and hands them to a frame consumer.
package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/samber/lo"

	"forestwatch/internal/pipeline"
	"forestwatch/pkg/log"
)

// ErrNoCamera is returned for events without a camera ID
var ErrNoCamera = errors.New("camera_id is required")

// Payload is the wire form of one frame event
type Payload struct {
	CameraID   string               `json:"camera_id"`
	Seq        uint64               `json:"seq"`
	Timestamp  time.Time            `json:"timestamp"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	Detections []pipeline.Detection `json:"detections"`
	Frame      string               `json:"frame,omitempty"` // base64 JPEG or PNG
}

// Decoder parses frame event payloads. A frame image that cannot be decoded
// is logged and left nil; the detections are still delivered.
type Decoder struct {
	logger log.Logger
	now    func() time.Time
}

// NewDecoder creates a payload decoder
func NewDecoder(logger log.Logger) *Decoder {
	return &Decoder{logger: logger, now: time.Now}
}

// Decode parses a JSON payload
func (d *Decoder) Decode(ctx context.Context, data []byte) (*pipeline.FrameEvent, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid frame event: %w", err)
	}
	return d.FromPayload(ctx, &p)
}

// FromPayload validates an already parsed payload and decodes its frame
func (d *Decoder) FromPayload(ctx context.Context, p *Payload) (*pipeline.FrameEvent, error) {
	if p.CameraID == "" {
		return nil, ErrNoCamera
	}

	ev := &pipeline.FrameEvent{
		CameraID:  p.CameraID,
		Seq:       p.Seq,
		Timestamp: p.Timestamp,
		Width:     p.Width,
		Height:    p.Height,
		Detections: lo.Filter(p.Detections, func(det pipeline.Detection, _ int) bool {
			return det.Label != ""
		}),
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = d.now()
	}

	if p.Frame != "" {
		img, err := decodeFrame(p.Frame)
		if err != nil {
			d.logger.Warnf(ctx, "[Ingest] Camera %s frame %d: %v", p.CameraID, p.Seq, err)
		} else {
			ev.Frame = img
		}
	}
	return ev, nil
}

func decodeFrame(s string) (image.Image, error) {
	// Tolerate data URLs from browser-based producers
	if i := strings.Index(s, ";base64,"); i >= 0 {
		s = s[i+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("frame is not valid base64: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame image: %w", err)
	}
	return img, nil
}
