package pipeline

import (
	"image"
	"time"
)

// Signal tells the upstream producer what to do after a frame was handled.
// Frame consumers never ask the producer to stop.
type Signal string

const (
	// SignalContinue keeps the upstream pipeline running.
	SignalContinue Signal = "continue"
)

// BBox is a bounding box normalized to the frame size ([0,1] on both axes).
type BBox struct {
	XMin   float32 `json:"xmin"`
	YMin   float32 `json:"ymin"`
	Width  float32 `json:"width"`
	Height float32 `json:"height"`
}

// PixelBox is a bounding box in frame pixel coordinates.
type PixelBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// ToPixels scales a normalized box to a frame of the given size, truncating
// like the detector's own overlay code does.
func (b BBox) ToPixels(width, height int) PixelBox {
	return PixelBox{
		X: int(b.XMin * float32(width)),
		Y: int(b.YMin * float32(height)),
		W: int(b.Width * float32(width)),
		H: int(b.Height * float32(height)),
	}
}

// Detection is a single object detection produced by the inference pipeline
type Detection struct {
	Label      string  `json:"label"`      // Detection class (person, car, etc.)
	Confidence float64 `json:"confidence"` // Detection confidence [0-1]
	BBox       BBox    `json:"bbox"`
}

// FrameEvent is everything the inference pipeline hands over for one frame.
// Frame is nil when the producer sent no image or it could not be decoded.
type FrameEvent struct {
	CameraID   string
	Seq        uint64
	Timestamp  time.Time
	Width      int
	Height     int
	Detections []Detection
	Frame      image.Image
}

// FrameSize returns the frame dimensions, preferring the decoded image bounds.
func (e *FrameEvent) FrameSize() (int, int) {
	if e.Frame != nil {
		b := e.Frame.Bounds()
		return b.Dx(), b.Dy()
	}
	return e.Width, e.Height
}

// AlertArtifact is the record of one alert attempt: the snapshot written to
// disk and whether the email carrying it went out.
type AlertArtifact struct {
	ID         string    `json:"id"`
	CameraID   string    `json:"camera_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	Box        PixelBox  `json:"bbox"`
	ImagePath  string    `json:"image_path"`
	EmailSent  bool      `json:"email_sent"`
	ObjectKey  string    `json:"object_key,omitempty"` // Set once mirrored to object storage
	CreatedAt  time.Time `json:"created_at"`
}
