package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	goahttp "goa.design/goa/v3/http"
	httpmdlwr "goa.design/goa/v3/http/middleware"

	"forestwatch/internal/auth"
	"forestwatch/internal/middleware"
	"forestwatch/internal/server"
	"forestwatch/pkg/log"
)

// handleHTTPServer configures and starts an HTTP server on the given URL. It
// shuts down the server when ctx is cancelled.
func handleHTTPServer(ctx context.Context, u *url.URL, svc *server.Services, authenticator *auth.Authenticator, wg *sync.WaitGroup, errc chan error, logger log.Logger, debug bool) {
	var (
		dec = goahttp.RequestDecoder
		enc = goahttp.ResponseEncoder
	)

	var mux goahttp.Muxer
	{
		mux = goahttp.NewMuxer()
	}

	srv := server.New(svc, mux, dec, enc, logger)
	srv.Mount()

	// Middlewares mounted here apply to all the routes.
	var handler http.Handler = mux
	{
		handler = middleware.AuthMiddleware(authenticator, server.PublicPaths...)(handler)
		if debug {
			handler = httpmdlwr.Debug(mux, os.Stdout)(handler)
		}
		handler = httpmdlwr.Log(goaLogger{logger: logger})(handler)
		handler = httpmdlwr.RequestID()(handler)
	}

	httpServer := &http.Server{Addr: u.Host, Handler: handler, ReadHeaderTimeout: time.Second * 60}
	for _, m := range srv.Mounts {
		logger.Infof(ctx, "HTTP %q mounted on %s %s", m.Method, m.Verb, m.Pattern)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		go func() {
			logger.Infof(ctx, "HTTP server listening on %q", u.Host)
			errc <- httpServer.ListenAndServe()
		}()

		<-ctx.Done()
		logger.Infof(ctx, "shutting down HTTP server at %q", u.Host)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Errorf(ctx, "failed to shutdown: %v", err)
		}
	}()
}

// goaLogger adapts log.Logger to the goa middleware key/value logger
type goaLogger struct {
	logger log.Logger
}

func (l goaLogger) Log(keyvals ...any) error {
	msg := ""
	for i := 0; i+1 < len(keyvals); i += 2 {
		if i > 0 {
			msg += " "
		}
		msg += fmt.Sprintf("%v=%v", keyvals[i], keyvals[i+1])
	}
	l.logger.Debug(context.Background(), msg)
	return nil
}
