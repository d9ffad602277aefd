package main

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"forestwatch/internal/services"
	"forestwatch/pkg/log"
)

const (
	alertServiceName    = "forestwatch.Alert"
	healthCheckInterval = 10 * time.Second
)

// handleGRPCServer serves the standard gRPC health service. Readiness of the
// alert service follows the database ping.
func handleGRPCServer(ctx context.Context, addr string, db services.Pinger, wg *sync.WaitGroup, errc chan error, logger log.Logger) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		go func() { errc <- fmt.Errorf("grpc listen %s: %w", addr, err) }()
		return
	}
	logger.Infof(ctx, "gRPC server listening on %q", addr)
	serveGRPC(ctx, lis, db, healthCheckInterval, wg, errc, logger)
}

func serveGRPC(ctx context.Context, lis net.Listener, db services.Pinger, interval time.Duration, wg *sync.WaitGroup, errc chan error, logger log.Logger) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if err := db.Ping(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warnf(ctx, "health: database ping failed: %v", err)
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(alertServiceName, status)
	}
	update()

	go func() {
		errc <- srv.Serve(lis)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Infof(ctx, "shutting down gRPC server at %q", lis.Addr())
				hs.Shutdown()
				srv.GracefulStop()
				return
			case <-ticker.C:
				update()
			}
		}
	}()
}
