package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hiroki-koketsu/todo-service/internal/config"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ShutdownFunc flushes and stops the telemetry providers.
type ShutdownFunc func(context.Context) error

// Setup initializes tracing, metrics and logging. When telemetry is disabled
// it returns a plain slog logger and leaves the global noop providers in place.
func Setup(ctx context.Context, cfg *config.Config) (*slog.Logger, ShutdownFunc, error) {
	out, closeFile := newLogWriter(cfg)
	if !cfg.Telemetry.Enabled {
		return NewLogger(cfg, out), func(context.Context) error { return closeFile() }, nil
	}

	shutdowns := []ShutdownFunc{func(context.Context) error { return closeFile() }}
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	tc := cfg.Telemetry
	env := cfg.App.Environment

	tp, err := InitTracerProvider(ctx, tc.ServiceName, tc.OTLPEndpoint, env)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, err
	}
	shutdowns = append(shutdowns, tp.Shutdown)

	mp, err := InitMeterProvider(ctx, tc.ServiceName, tc.OTLPEndpoint, env, tc.MetricInterval.Duration())
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, err
	}
	shutdowns = append(shutdowns, mp.Shutdown)

	// Initialized last so that log records carry trace context.
	lp, logger, err := InitLoggerProvider(ctx, tc.ServiceName, tc.OTLPEndpoint, env)
	if err != nil {
		_ = shutdown(ctx)
		return nil, nil, err
	}
	shutdowns = append(shutdowns, lp.Shutdown)

	if cfg.App.LogFile != "" {
		// Keep the local stdout and file sinks next to OTLP export.
		logger = slog.New(teeHandler{logger.Handler(), NewLogger(cfg, out).Handler()})
	}

	return logger, shutdown, nil
}

// newLogWriter returns stdout, fanned out to a size-rotated file when
// LOG_FILE is set. The returned func closes the file.
func newLogWriter(cfg *config.Config) (io.Writer, func() error) {
	if cfg.App.LogFile == "" {
		return os.Stdout, func() error { return nil }
	}
	file := &lumberjack.Logger{
		Filename: cfg.App.LogFile,
		MaxSize:  cfg.App.LogMaxSizeMB,
		MaxAge:   cfg.App.LogMaxAgeDays,
		Compress: cfg.App.LogCompress,
	}
	return io.MultiWriter(os.Stdout, file), file.Close
}

// NewLogger returns a logger writing to w at the configured level: text in
// debug mode, JSON otherwise.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.SlogLevel(),
		AddSource: cfg.App.Debug,
	}
	var h slog.Handler
	if cfg.App.Debug {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h).With(slog.String("service", cfg.Telemetry.ServiceName))
}

func newConn(otlpEndpoint string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(otlpEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return conn, nil
}

func newResource(serviceName, environment string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
