package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"time"

	"forestwatch/internal/pipeline"
)

// PanelMargin is the width of the info column added left of the frame
const PanelMargin = 300

// PanelInfo is the text shown in the info column
type PanelInfo struct {
	Detections int
	Boxes      []pipeline.PixelBox
	At         time.Time
}

// ComposePanel builds the live-view frame: a black info column on the left
// followed by the camera frame with qualifying detections outlined.
func ComposePanel(frame image.Image, info PanelInfo) *image.RGBA {
	fb := frame.Bounds()
	panel := image.NewRGBA(image.Rect(0, 0, fb.Dx()+PanelMargin, fb.Dy()))
	draw.Draw(panel, panel.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(panel, image.Rect(PanelMargin, 0, PanelMargin+fb.Dx(), fb.Dy()), frame, fb.Min, draw.Src)

	for _, b := range info.Boxes {
		drawBox(panel, PanelMargin+b.X, b.Y, b.W, b.H, ColorGreen, 2)
	}

	lines := []struct {
		text string
		c    color.RGBA
	}{
		{"Person Detected", ColorRed},
		{"Type of Life: Human", ColorGreen},
		{fmt.Sprintf("Detections: %d", info.Detections), ColorCyan},
		{"DATE: " + info.At.Format("2006-01-02"), ColorWhite},
		{"TIME: " + info.At.Format("15:04:05"), ColorWhite},
	}
	for i, l := range lines {
		drawLabel(panel, 10, 30+i*40, l.text, l.c)
	}
	return panel
}

// EncodeJPEG encodes an image to JPEG bytes
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
