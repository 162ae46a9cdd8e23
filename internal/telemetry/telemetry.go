// Package telemetry exports wp metrics and log events over OTLP/HTTP.
//
// Telemetry is opt-in. Init installs real providers only when
// WP_OTEL_METRICS_URL or WP_OTEL_LOGS_URL is set; otherwise the global
// no-op providers stay in place and every Record* call is free.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Environment variables read by Init.
const (
	EnvMetricsURL = "WP_OTEL_METRICS_URL"
	EnvLogsURL    = "WP_OTEL_LOGS_URL"
)

// exportInterval is the metric push period.
const exportInterval = 15 * time.Second

// Enabled reports whether any OTLP endpoint is configured.
func Enabled() bool {
	return os.Getenv(EnvMetricsURL) != "" || os.Getenv(EnvLogsURL) != ""
}

// Init installs OTLP metric and log providers for the endpoints named in
// the environment. The returned shutdown flushes pending data and must be
// called before the process exits. With no endpoints configured Init is a
// no-op and shutdown does nothing.
func Init(ctx context.Context, version string) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !Enabled() {
		return noop, nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(
			attribute.String("service.name", "wp"),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("telemetry resource: %w", err)
	}

	var shutdowns []func(context.Context) error

	if url := os.Getenv(EnvMetricsURL); url != "" {
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(url))
		if err != nil {
			return noop, fmt.Errorf("metrics exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(exportInterval))),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	if url := os.Getenv(EnvLogsURL); url != "" {
		exp, err := otlploghttp.New(ctx, otlploghttp.WithEndpointURL(url))
		if err != nil {
			return joinShutdown(shutdowns), fmt.Errorf("logs exporter: %w", err)
		}
		lp := sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		)
		global.SetLoggerProvider(lp)
		shutdowns = append(shutdowns, lp.Shutdown)
	}

	// Instruments bind to the provider that was global at first use.
	resetInstruments()
	return joinShutdown(shutdowns), nil
}

func joinShutdown(fns []func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range fns {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
