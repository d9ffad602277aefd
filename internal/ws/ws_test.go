package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forestwatch/internal/pipeline"
	"forestwatch/pkg/log"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *AlertHub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestAlertBroadcast(t *testing.T) {
	hub := NewAlertHub(log.NewNop())
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	all := dial(t, srv, "")
	cam0 := dial(t, srv, "?camera_id=cam0")
	cam1 := dial(t, srv, "?camera_id=cam1")
	waitForClients(t, hub, 3)

	hub.OnAlert(context.Background(), &pipeline.AlertArtifact{
		ID:         "a1",
		CameraID:   "cam0",
		Label:      "person",
		Confidence: 0.98,
		Box:        pipeline.PixelBox{X: 1, Y: 2, W: 3, H: 4},
		EmailSent:  true,
	})

	for _, conn := range []*websocket.Conn{all, cam0} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg AlertMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, "alert", msg.Type)
		assert.Equal(t, "a1", msg.ID)
		assert.Equal(t, []int{1, 2, 3, 4}, msg.BBox)
		assert.Equal(t, "/api/v1/alerts/a1/image", msg.ImageURL)
	}

	cam1.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := cam1.ReadMessage()
	assert.Error(t, err, "other cameras receive nothing")
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := NewAlertHub(log.NewNop())
	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	conn := dial(t, srv, "")
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}
