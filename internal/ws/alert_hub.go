package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"forestwatch/internal/pipeline"
	"forestwatch/pkg/log"
)

// allCameras is the subscription key for clients that want every camera
const allCameras = ""

const writeWait = 10 * time.Second

// client serializes writes to one connection; gorilla allows a single writer
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// AlertHub manages WebSocket connections that receive alert events
type AlertHub struct {
	// clients maps camera_id -> set of connections, "" meaning all cameras
	clients map[string]map[*client]bool
	mu      sync.RWMutex
	logger  log.Logger
}

// NewAlertHub creates a new alert hub
func NewAlertHub(logger log.Logger) *AlertHub {
	return &AlertHub{
		clients: make(map[string]map[*client]bool),
		logger:  logger,
	}
}

func (h *AlertHub) register(cameraID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[cameraID] == nil {
		h.clients[cameraID] = make(map[*client]bool)
	}
	h.clients[cameraID][c] = true
	h.logger.Infof(context.Background(), "[WS] Client registered for camera %q (total: %d)", cameraID, len(h.clients[cameraID]))
}

func (h *AlertHub) unregister(cameraID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[cameraID]; ok {
		if !conns[c] {
			return
		}
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, cameraID)
		}
		h.logger.Infof(context.Background(), "[WS] Client unregistered for camera %q", cameraID)
	}
}

// targets returns the clients for a camera plus the all-camera subscribers
func (h *AlertHub) targets(cameraID string) map[*client]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[*client]string)
	for c := range h.clients[allCameras] {
		out[c] = allCameras
	}
	for c := range h.clients[cameraID] {
		out[c] = cameraID
	}
	return out
}

// Broadcast sends a message to every client interested in the camera
func (h *AlertHub) Broadcast(ctx context.Context, cameraID string, message []byte) {
	for c, key := range h.targets(cameraID) {
		if err := c.write(websocket.TextMessage, message); err != nil {
			h.logger.Warnf(ctx, "[WS] Error sending to client: %v", err)
			h.unregister(key, c)
			c.conn.Close()
		}
	}
}

// OnAlert implements pipeline.AlertHandler
func (h *AlertHub) OnAlert(ctx context.Context, artifact *pipeline.AlertArtifact) {
	if h.ClientCount() == 0 {
		return
	}

	data, err := json.Marshal(NewAlertMessage(artifact))
	if err != nil {
		h.logger.Errorf(ctx, "[WS] Error marshaling alert message: %v", err)
		return
	}
	h.Broadcast(ctx, artifact.CameraID, data)
}

// ClientCount returns the total number of connected clients
func (h *AlertHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

var _ pipeline.AlertHandler = (*AlertHub)(nil)
