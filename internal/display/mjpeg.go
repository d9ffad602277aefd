package display

import (
	"fmt"
	"net/http"
	"sync"

	"forestwatch/pkg/log"
)

// Stream fans rendered panels out to MJPEG clients. Slow clients skip frames.
type Stream struct {
	// clients maps camera_id -> set of client channels
	clients map[string]map[chan []byte]bool
	mu      sync.RWMutex
	logger  log.Logger
}

// NewStream creates an MJPEG stream hub
func NewStream(logger log.Logger) *Stream {
	return &Stream{clients: make(map[string]map[chan []byte]bool), logger: logger}
}

// HasClients reports whether anyone is watching the camera
func (s *Stream) HasClients(cameraID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[cameraID]) > 0
}

// Publish sends a JPEG frame to every client of the camera
func (s *Stream) Publish(cameraID string, frame []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.clients[cameraID] {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (s *Stream) subscribe(cameraID string) chan []byte {
	ch := make(chan []byte, 5)
	s.mu.Lock()
	if s.clients[cameraID] == nil {
		s.clients[cameraID] = make(map[chan []byte]bool)
	}
	s.clients[cameraID][ch] = true
	s.mu.Unlock()
	return ch
}

func (s *Stream) unsubscribe(cameraID string, ch chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients[cameraID], ch)
	if len(s.clients[cameraID]) == 0 {
		delete(s.clients, cameraID)
	}
}

// ServeHTTP streams multipart/x-mixed-replace JPEGs for ?camera_id=
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID := r.URL.Query().Get("camera_id")
	if cameraID == "" {
		http.Error(w, "camera_id required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.subscribe(cameraID)
	defer s.unsubscribe(cameraID, ch)
	s.logger.Infof(r.Context(), "[MJPEG] Client connected to camera %s", cameraID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Infof(r.Context(), "[MJPEG] Client disconnected from camera %s", cameraID)
			return
		case frame := <-ch:
			fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame))
			w.Write(frame)
			fmt.Fprint(w, "\r\n")
			flusher.Flush()
		}
	}
}
