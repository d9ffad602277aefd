package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forestwatch/internal/ingest"
)

type frameSink struct {
	mu       sync.Mutex
	payloads []ingest.Payload
	auth     []string
}

func (s *frameSink) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/frames":
			var p ingest.Payload
			if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&p)) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			s.mu.Lock()
			s.payloads = append(s.payloads, p)
			s.auth = append(s.auth, r.Header.Get("Authorization"))
			s.mu.Unlock()
			w.Write([]byte(`{"signal":"continue"}`))
		case "/api/v1/alerts":
			assert.Equal(t, "cam0", r.URL.Query().Get("camera_id"))
			w.Write([]byte(`{"alerts":[],"count":0}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"name":"not_found","message":"no route"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(t *testing.T, srv *httptest.Server, token string) *client {
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return newClient(u.Scheme, u.Host, 5, false, token)
}

func TestSimulatePostsSustainedDetection(t *testing.T) {
	sink := &frameSink{}
	c := testClient(t, sink.server(t), "tok")

	n, err := simulate(context.Background(), c, simulation{cameraID: "cam3", duration: 200 * time.Millisecond, fps: 20, confidence: 0.99})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.Len(t, sink.payloads, 5)
	assert.Equal(t, "cam3", sink.payloads[0].CameraID)
	assert.Equal(t, 0.99, sink.payloads[4].Detections[0].Confidence)
	assert.Equal(t, "Bearer tok", sink.auth[0])
}

func TestReplay(t *testing.T) {
	sink := &frameSink{}
	c := testClient(t, sink.server(t), "")

	path := filepath.Join(t.TempDir(), "frames.jsonl")
	lines := `{"camera_id":"cam0","seq":1,"detections":[{"label":"person","confidence":0.97}]}

{"camera_id":"cam0","seq":2,"detections":[]}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0644))

	n, err := replay(context.Background(), c, path, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(2), sink.payloads[1].Seq)
}

func TestRunCommands(t *testing.T) {
	sink := &frameSink{}
	c := testClient(t, sink.server(t), "")

	_, err := run(context.Background(), c, "alerts", []string{"-camera", "cam0"})
	assert.NoError(t, err)

	_, err = run(context.Background(), c, "status", nil)
	assert.ErrorContains(t, err, "no route")

	_, err = run(context.Background(), c, "bogus", nil)
	assert.Error(t, err)
}
