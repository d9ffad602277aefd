package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browsers on the LAN dashboard connect from arbitrary origins
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler handles WebSocket connections for alert events
type Handler struct {
	hub *AlertHub
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *AlertHub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP upgrades the request. An optional camera_id query parameter
// restricts the stream to one camera.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cameraID := r.URL.Query().Get("camera_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Warnf(r.Context(), "[WS] Upgrade error: %v", err)
		return
	}

	h.hub.logger.Infof(r.Context(), "[WS] New connection for camera %q from %s", cameraID, r.RemoteAddr)

	c := &client{conn: conn}
	h.hub.register(cameraID, c)
	go h.readPump(cameraID, c)
}

// readPump keeps the connection alive and detects disconnection
func (h *Handler) readPump(cameraID string, c *client) {
	done := make(chan struct{})
	defer func() {
		close(done)
		h.hub.unregister(cameraID, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
