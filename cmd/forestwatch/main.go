package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"forestwatch/internal/alert"
	"forestwatch/internal/auth"
	"forestwatch/internal/config"
	"forestwatch/internal/database"
	"forestwatch/internal/display"
	"forestwatch/internal/gpio"
	"forestwatch/internal/ingest"
	"forestwatch/internal/notify"
	"forestwatch/internal/pipeline"
	"forestwatch/internal/server"
	"forestwatch/internal/services"
	"forestwatch/internal/snapshot"
	"forestwatch/internal/storage"
	"forestwatch/internal/ws"
	"forestwatch/pkg/log"
)

const retentionInterval = time.Hour

func main() {
	var (
		configF   = flag.String("config", "", "Path to the YAML configuration file")
		hostF     = flag.String("host", "", "Listen host (overrides server.host)")
		httpPortF = flag.String("http-port", "", "HTTP port (overrides server.http_port)")
		grpcPortF = flag.String("grpc-port", "", "gRPC health port (overrides server.grpc_port, 0 disables)")
		dbgF      = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	cfg, err := config.Load(*configF)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := applyFlags(cfg, *hostF, *httpPortF, *grpcPortF); err != nil {
		fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		os.Exit(1)
	}
	if *dbgF {
		cfg.Logger.Level = log.LevelDebug
	}

	logger := log.Init(cfg.LoggerConfig())
	ctx, cancel := context.WithCancel(context.Background())

	writer, err := snapshot.NewWriter(cfg.SnapshotConfig())
	if err != nil {
		logger.Fatalf(ctx, "Snapshot writer: %v", err)
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		logger.Fatalf(ctx, "Database: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		logger.Fatalf(ctx, "Database: %v", err)
	}
	logger.Infof(ctx, "Alert log at %s", cfg.Database.Path)

	notifier := buildNotifier(ctx, cfg, logger)
	output := openOutput(ctx, cfg, logger)

	// Subscription order matters: the mirror sets the object key before the
	// recorder stores the alert.
	bus := pipeline.NewEventBus()
	var mirror *storage.Mirror
	if m, err := storage.New(cfg.StorageConfig(), logger.Named("storage")); err == nil {
		if err := m.EnsureBucket(ctx); err != nil {
			logger.Errorf(ctx, "Object storage unavailable, snapshots stay local: %v", err)
		} else {
			mirror = m
			bus.Subscribe(mirror)
		}
	} else if !errors.Is(err, storage.ErrDisabled) {
		logger.Errorf(ctx, "Object storage: %v", err)
	}
	recorder := database.NewRecorder(db, logger.Named("db"))
	bus.Subscribe(recorder)
	hub := ws.NewAlertHub(logger.Named("ws"))
	bus.Subscribe(hub)

	controller := alert.NewController(cfg.AlertConfig(), writer, notifier, output,
		alert.WithLogger(logger.Named("alert")),
		alert.WithPublisher(bus),
	)
	stream := display.NewStream(logger.Named("mjpeg"))
	latest := display.NewLatest(cfg.Alert.Label, cfg.Alert.MinConfidence, cfg.Snapshot.Quality, logger.Named("display")).
		WithStream(stream)
	dispatcher := pipeline.NewDispatcher(controller, latest)
	decoder := ingest.NewDecoder(logger.Named("ingest"))

	authenticator, err := auth.NewAuthenticator(cfg.AuthConfig())
	if err != nil {
		logger.Fatalf(ctx, "Auth: %v", err)
	}

	alertSvc := services.NewAlertService(db, mirrorOpener(mirror))
	svc := &server.Services{
		Health: services.NewHealthService(map[string]services.Pinger{"database": db}),
		Alerts: alertSvc,
		System: services.NewSystemService(services.StatusSources{
			Controller: controller,
			Frames:     dispatcher,
			Clients:    hub,
			Alerts:     alertSvc,
			Notifier:   notifier.Name(),
			GPIOLine:   output.Name(),
		}),
		Auth:   services.NewAuthService(authenticator),
		Notify: services.NewNotifyService(notifier),
		Ingest: ingest.NewHandler(decoder, dispatcher, logger.Named("ingest")),
		Latest: latest,
		Stream: stream,
		Events: ws.NewHandler(hub),
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup

	u := &url.URL{Scheme: "http", Host: net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.HTTPPort))}
	handleHTTPServer(ctx, u, svc, authenticator, &wg, errc, logger.Named("http"), *dbgF)

	if cfg.Server.GRPCPort > 0 {
		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))
		handleGRPCServer(ctx, addr, db, &wg, errc, logger.Named("grpc"))
	}

	if cfg.Kafka.Enabled {
		consumer, err := ingest.NewKafkaConsumer(cfg.KafkaConfig(), decoder, dispatcher, logger.Named("kafka"))
		if err != nil {
			logger.Fatalf(ctx, "Kafka: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
			if err := consumer.Close(); err != nil {
				logger.Warnf(ctx, "Kafka close: %v", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		recorder.RunRetention(ctx, cfg.Database.Retention, retentionInterval)
	}()

	logger.Infof(ctx, "forestwatch ready: label=%s confidence>%.2f hold=%s cooldown=%s notifier=%s gpio=%s",
		cfg.Alert.Label, cfg.Alert.MinConfidence, cfg.Alert.Hold, cfg.Alert.Cooldown, notifier.Name(), output.Name())

	logger.Infof(ctx, "exiting (%v)", <-errc)
	cancel()
	wg.Wait()

	bus.Close()
	if err := output.Close(); err != nil {
		logger.Warnf(ctx, "GPIO close: %v", err)
	}
	if err := db.Close(); err != nil {
		logger.Warnf(ctx, "Database close: %v", err)
	}
	logger.Info(ctx, "exited")
}

func applyFlags(cfg *config.Config, host, httpPort, grpcPort string) error {
	if host != "" {
		cfg.Server.Host = host
	}
	if httpPort != "" {
		p, err := strconv.Atoi(httpPort)
		if err != nil {
			return fmt.Errorf("http-port: %w", err)
		}
		cfg.Server.HTTPPort = p
	}
	if grpcPort != "" {
		p, err := strconv.Atoi(grpcPort)
		if err != nil {
			return fmt.Errorf("grpc-port: %w", err)
		}
		cfg.Server.GRPCPort = p
	}
	return cfg.Validate()
}

// buildNotifier makes email the primary channel. When email is switched off
// Telegram takes its place; with neither, every alert is recorded as failed.
func buildNotifier(ctx context.Context, cfg *config.Config, logger log.Logger) notify.Notifier {
	email, err := notify.NewEmailSender(cfg.EmailConfig())
	if err != nil {
		logger.Fatalf(ctx, "Email: %v", err)
	}

	var telegram notify.Notifier
	if cfg.Telegram.Enabled {
		bot, err := notify.NewTelegramBot(cfg.TelegramConfig())
		if err != nil {
			logger.Fatalf(ctx, "Telegram: %v", err)
		}
		telegram = bot
	}

	nlog := logger.Named("notify")
	switch {
	case cfg.Email.Enabled && telegram != nil:
		return notify.NewMulti(nlog, email, telegram)
	case cfg.Email.Enabled:
		return notify.NewMulti(nlog, email)
	case telegram != nil:
		logger.Warn(ctx, "Email disabled, Telegram is the primary alert channel")
		return notify.NewMulti(nlog, telegram)
	default:
		logger.Warn(ctx, "No notification channel enabled, alerts will be recorded as failed")
		return notify.NewMulti(nlog, email)
	}
}

// openOutput returns the GPIO line, or a logging stand-in when GPIO is off
// or the line cannot be opened
func openOutput(ctx context.Context, cfg *config.Config, logger log.Logger) gpio.Output {
	if cfg.GPIO.Enabled {
		pin, err := gpio.Open(cfg.GPIO.Line)
		if err == nil {
			logger.Infof(ctx, "GPIO line %s ready", pin.Name())
			return pin
		}
		logger.Errorf(ctx, "GPIO line %s unavailable, pulses will only be logged: %v", cfg.GPIO.Line, err)
	}
	return gpio.NewLogOutput(cfg.GPIO.Line, logger.Named("gpio"))
}

// mirrorOpener keeps a nil *storage.Mirror from becoming a non-nil interface
func mirrorOpener(m *storage.Mirror) services.ObjectOpener {
	if m == nil {
		return nil
	}
	return m
}
