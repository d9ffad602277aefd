package snapshot

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"
)

const (
	// DefaultQuality is the JPEG quality used for alert snapshots
	DefaultQuality = 90
	// DefaultOverlay is the text stamped on every alert snapshot
	DefaultOverlay = "Person Detected"
)

// Writer persists alert snapshots as JPEG files in a single directory
type Writer struct {
	dir     string
	quality int
	overlay string
}

// Config holds snapshot writer configuration
type Config struct {
	Dir     string
	Quality int
	Overlay string
}

// NewWriter creates a writer and makes sure the alert directory exists
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.Dir == "" {
		cfg.Dir = "alerts"
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = DefaultQuality
	}
	if cfg.Overlay == "" {
		cfg.Overlay = DefaultOverlay
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create alert directory %s: %w", cfg.Dir, err)
	}

	return &Writer{dir: cfg.Dir, quality: cfg.Quality, overlay: cfg.Overlay}, nil
}

// Dir returns the directory snapshots are written to
func (w *Writer) Dir() string {
	return w.dir
}

// PathFor returns the snapshot path for a label at the given instant:
// <dir>/alert_<label>_<unix-seconds>.jpg
func (w *Writer) PathFor(label string, at time.Time) string {
	return filepath.Join(w.dir, FileName(label, at))
}

// FileName returns the snapshot file name for a label at the given instant
func FileName(label string, at time.Time) string {
	return fmt.Sprintf("alert_%s_%d.jpg", label, at.Unix())
}

// Save stamps the overlay text onto a copy of img and writes it as JPEG.
// The file is written under a temporary name and renamed into place so a
// reader never sees a partial snapshot.
func (w *Writer) Save(img image.Image, path string) error {
	if img == nil {
		return fmt.Errorf("no frame to save")
	}

	annotated := Annotate(img, w.overlay)

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*.jpg")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	tmpName := tmp.Name()

	if err := jpeg.Encode(tmp, annotated, &jpeg.Options{Quality: w.quality}); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close snapshot file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move snapshot into place: %w", err)
	}
	return nil
}

// Annotate returns a copy of img with text drawn in the top-left corner
func Annotate(img image.Image, text string) *image.RGBA {
	rgba := toRGBA(img)
	if text != "" {
		drawLabel(rgba, 10, 18, text, ColorGreen)
	}
	return rgba
}
