// Package server maps the forestwatch services onto HTTP routes of a goa
// muxer.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	goahttp "goa.design/goa/v3/http"
	"goa.design/goa/v3/middleware"

	"forestwatch/internal/services"
	"forestwatch/pkg/log"
)

// Services groups everything the HTTP API exposes. Nil handlers are not
// mounted.
type Services struct {
	Health *services.HealthImplementation
	Alerts *services.AlertImplementation
	System *services.SystemImplementation
	Auth   *services.AuthImplementation
	Notify *services.NotifyImplementation

	Ingest http.Handler // POST /api/v1/frames
	Latest http.Handler // GET /api/v1/frames/latest
	Stream http.Handler // GET /api/v1/frames/stream
	Events http.Handler // GET /ws/alerts
}

// MountPoint describes one mounted route
type MountPoint struct {
	Method  string
	Verb    string
	Pattern string
}

// Server holds the HTTP handlers of all services
type Server struct {
	Mounts []*MountPoint

	svc    *Services
	mux    goahttp.Muxer
	dec    func(*http.Request) goahttp.Decoder
	enc    func(context.Context, http.ResponseWriter) goahttp.Encoder
	logger log.Logger
}

// PublicPaths are served without authentication
var PublicPaths = []string{"/healthz", "/readyz", "/api/v1/auth/login", "/api/v1/auth/status"}

// New builds the server for the given services
func New(svc *Services, mux goahttp.Muxer, dec func(*http.Request) goahttp.Decoder, enc func(context.Context, http.ResponseWriter) goahttp.Encoder, logger log.Logger) *Server {
	return &Server{svc: svc, mux: mux, dec: dec, enc: enc, logger: logger}
}

// Mount registers every available route on the muxer
func (s *Server) Mount() {
	if s.svc.Health != nil {
		s.handle("Healthz", "GET", "/healthz", s.healthz)
		s.handle("Readyz", "GET", "/readyz", s.readyz)
	}
	if s.svc.System != nil {
		s.handle("Status", "GET", "/api/v1/status", s.status)
	}
	if s.svc.Auth != nil {
		s.handle("Login", "POST", "/api/v1/auth/login", s.login)
		s.handle("AuthStatus", "GET", "/api/v1/auth/status", s.authStatus)
	}
	if s.svc.Alerts != nil {
		s.handle("ListAlerts", "GET", "/api/v1/alerts", s.listAlerts)
		s.handle("GetAlert", "GET", "/api/v1/alerts/{id}", s.getAlert)
		s.handle("AlertImage", "GET", "/api/v1/alerts/{id}/image", s.alertImage)
	}
	if s.svc.Notify != nil {
		s.handle("TestNotification", "POST", "/api/v1/notify/test", s.testNotify)
	}
	if s.svc.Ingest != nil {
		s.handle("IngestFrame", "POST", "/api/v1/frames", s.svc.Ingest.ServeHTTP)
	}
	if s.svc.Latest != nil {
		s.handle("LatestFrame", "GET", "/api/v1/frames/latest", s.svc.Latest.ServeHTTP)
	}
	if s.svc.Stream != nil {
		s.handle("FrameStream", "GET", "/api/v1/frames/stream", s.svc.Stream.ServeHTTP)
	}
	if s.svc.Events != nil {
		s.handle("AlertEvents", "GET", "/ws/alerts", s.svc.Events.ServeHTTP)
	}
}

func (s *Server) handle(method, verb, pattern string, h http.HandlerFunc) {
	s.mux.Handle(verb, pattern, h)
	s.Mounts = append(s.Mounts, &MountPoint{Method: method, Verb: verb, Pattern: pattern})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Health.Healthz(r.Context()); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	s.encode(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Health.Readyz(r.Context()); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	s.encode(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.System.Status(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.encode(w, r, http.StatusOK, res)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var payload services.LoginPayload
	if err := s.dec(r).Decode(&payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	res, err := s.svc.Auth.Login(r.Context(), &payload)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	s.encode(w, r, http.StatusOK, res)
}

func (s *Server) authStatus(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Auth.Status(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.encode(w, r, http.StatusOK, res)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	res, err := s.svc.Alerts.List(r.Context(), q.Get("camera_id"), limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.encode(w, r, http.StatusOK, res)
}

func (s *Server) getAlert(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Alerts.Get(r.Context(), s.mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	s.encode(w, r, http.StatusOK, res)
}

func (s *Server) alertImage(w http.ResponseWriter, r *http.Request) {
	rc, err := s.svc.Alerts.OpenImage(r.Context(), s.mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warnf(r.Context(), "[HTTP] Failed to stream snapshot: %v", err)
	}
}

func (s *Server) testNotify(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Notify.Test(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusBadGateway, err)
		return
	}
	s.encode(w, r, http.StatusOK, res)
}

func (s *Server) encode(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := s.enc(r.Context(), w).Encode(v); err != nil {
		s.logger.Errorf(r.Context(), "[HTTP] Failed to encode response: %v", err)
	}
}

// ErrorBody is the JSON body of every error response
type ErrorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		id, _ := r.Context().Value(middleware.RequestIDKey).(string)
		s.logger.Errorf(r.Context(), "[HTTP] [%s] %s %s: %v", id, r.Method, r.URL.Path, err)
	}
	s.encode(w, r, status, &ErrorBody{Name: errorName(status), Message: err.Error()})
}

func statusFor(err error) int {
	var unauthorized *services.UnauthorizedError
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func errorName(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusBadGateway:
		return "upstream_failed"
	default:
		return "fault"
	}
}
