// Copyright (c) 2025 Justin Cranford

// Package telemetry wires structured logging, metrics, and tracing for the
// process: log/slog fanned out via github.com/samber/slog-multi to a JSON
// stdout handler and (optionally) an OpenTelemetry log bridge, plus OTel
// trace and metric providers. No HMAC key, raw token, email, or decrypted
// payload is ever passed to a log call — only
// derived identifiers and error kinds.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	sloghandler "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// TelemetryService bundles the process-wide slog logger plus OTel metrics
// and traces providers, all sharing one resource (service name + start
// time). Construct once at composition root; Shutdown flushes exporters on
// process exit.
type TelemetryService struct {
	Slogger         *slog.Logger
	MetricsProvider *metric.MeterProvider
	TracesProvider  *sdktrace.TracerProvider
	StartTime       time.Time

	logProvider *sdklog.LoggerProvider
}

// New constructs a TelemetryService for serviceName. enableOTELLogBridge
// additionally fans logs into an OTel log pipeline (stdout exporter);
// verbose sets the stdout JSON handler's level to Debug instead of Info.
func New(ctx context.Context, serviceName string, enableOTELLogBridge bool, verbose bool) (*TelemetryService, error) {
	startTime := time.Now().UTC()

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: new trace exporter: %w", err)
	}
	tracesProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: new metric exporter: %w", err)
	}
	metricsProvider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metricExporter)),
		metric.WithResource(res),
	)

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})

	var logProvider *sdklog.LoggerProvider
	var handler slog.Handler = jsonHandler
	if enableOTELLogBridge {
		logExporter, logErr := stdoutlog.New()
		if logErr != nil {
			return nil, fmt.Errorf("telemetry: new log exporter: %w", logErr)
		}
		logProvider = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
			sdklog.WithResource(res),
		)
		otelHandler := otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(logProvider))
		handler = sloghandler.Fanout(jsonHandler, otelHandler)
	}

	return &TelemetryService{
		Slogger:         slog.New(handler),
		MetricsProvider: metricsProvider,
		TracesProvider:  tracesProvider,
		StartTime:       startTime,
		logProvider:     logProvider,
	}, nil
}

// RequireNewForTest builds a TelemetryService for tests, panicking on
// failure.
func RequireNewForTest(ctx context.Context, serviceName string, enableOTELLogBridge bool, verbose bool) *TelemetryService {
	svc, err := New(ctx, serviceName, enableOTELLogBridge, verbose)
	if err != nil {
		panic(err)
	}
	return svc
}

// Shutdown flushes and closes every provider, logging (via stderr directly,
// since the slog handler itself may be mid-shutdown) the first error
// encountered but always attempting every provider's shutdown.
func (t *TelemetryService) Shutdown() {
	ctx := context.Background()
	if err := t.TracesProvider.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: shutdown traces provider: %v\n", err)
	}
	if err := t.MetricsProvider.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: shutdown metrics provider: %v\n", err)
	}
	if t.logProvider != nil {
		if err := t.logProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "telemetry: shutdown log provider: %v\n", err)
		}
	}
}

var _ otellog.LoggerProvider = (*sdklog.LoggerProvider)(nil)
