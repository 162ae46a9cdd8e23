package telemetry

import (
	"context"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterRecorderName = "github.com/steveyegge/wellplan"
	loggerName        = "wellplan"
)

// recorderInstruments holds all lazy-initialized OTel metric instruments.
type recorderInstruments struct {
	planBuildTotal  metric.Int64Counter
	runTotal        metric.Int64Counter
	runStepTotal    metric.Int64Counter
	checkpointTotal metric.Int64Counter

	planStepsHist      metric.Int64Histogram
	planVolumeHist     metric.Float64Histogram
	runDurationHist    metric.Float64Histogram
	checkpointWaitHist metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     recorderInstruments
)

// resetInstruments drops the cached instruments so the next Record* call
// binds to the current global MeterProvider.
func resetInstruments() {
	instOnce = sync.Once{}
}

// initInstruments registers the recorder instruments against the current
// global MeterProvider. Called lazily on first use.
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterRecorderName)

		inst.planBuildTotal, _ = m.Int64Counter("wp.plan.builds.total",
			metric.WithDescription("Total plan builds, by outcome"),
		)
		inst.runTotal, _ = m.Int64Counter("wp.run.total",
			metric.WithDescription("Total plan runs, by outcome"),
		)
		inst.runStepTotal, _ = m.Int64Counter("wp.run.steps.total",
			metric.WithDescription("Total steps executed, by kind"),
		)
		inst.checkpointTotal, _ = m.Int64Counter("wp.run.checkpoints.total",
			metric.WithDescription("Total manual checkpoints reached"),
		)

		inst.planStepsHist, _ = m.Int64Histogram("wp.plan.steps",
			metric.WithDescription("Steps per successfully built plan"),
		)
		inst.planVolumeHist, _ = m.Float64Histogram("wp.plan.volume_ul",
			metric.WithDescription("Liquid moved per plan in microliters"),
			metric.WithUnit("ul"),
		)
		inst.runDurationHist, _ = m.Float64Histogram("wp.run.duration_ms",
			metric.WithDescription("Wall-clock run time in milliseconds"),
			metric.WithUnit("ms"),
		)
		inst.checkpointWaitHist, _ = m.Float64Histogram("wp.run.checkpoint_wait_ms",
			metric.WithDescription("Time spent waiting on a human at a checkpoint"),
			metric.WithUnit("ms"),
		)
	})
}

// statusStr returns "ok" or "error" depending on whether err is nil.
func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// emit sends an OTel log event with the given body and key-value attributes.
func emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	logger := global.GetLoggerProvider().Logger(loggerName)
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.SetSeverity(sev)
	r.AddAttributes(attrs...)
	logger.Emit(ctx, r)
}

// errKV returns a log KeyValue with the error message, or empty string if nil.
func errKV(err error) otellog.KeyValue {
	if err != nil {
		return otellog.String("error", err.Error())
	}
	return otellog.String("error", "")
}

// severity returns SeverityInfo on success, SeverityError on failure.
func severity(err error) otellog.Severity {
	if err != nil {
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}

// maxMessageLog caps operator-facing text copied into log events.
const maxMessageLog = 512

// truncateOutput trims s to limit bytes and appends "…" when truncated.
// Never splits a multi-byte rune.
func truncateOutput(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	truncated := s[:limit]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "…"
}

// RecordPlanBuild records a plan build attempt (metrics + log event).
// steps and volumeUL describe the built plan and are ignored on error.
func RecordPlanBuild(ctx context.Context, protocol string, steps int, volumeUL float64, err error) {
	initInstruments()
	status := statusStr(err)
	inst.planBuildTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("protocol", protocol),
			attribute.String("status", status),
		),
	)
	if err == nil {
		attrs := metric.WithAttributes(attribute.String("protocol", protocol))
		inst.planStepsHist.Record(ctx, int64(steps), attrs)
		inst.planVolumeHist.Record(ctx, volumeUL, attrs)
	}
	emit(ctx, "plan.build", severity(err),
		otellog.String("protocol", protocol),
		otellog.Int("steps", steps),
		otellog.Float64("volume_ul", volumeUL),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordStep records one executed step (metrics + log event). kind is the
// step kind ("transfer", "checkpoint", "delay", "module").
func RecordStep(ctx context.Context, protocol, kind string, index int, err error) {
	initInstruments()
	status := statusStr(err)
	inst.runStepTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("protocol", protocol),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
	emit(ctx, "run.step", severity(err),
		otellog.String("protocol", protocol),
		otellog.String("kind", kind),
		otellog.Int("index", index),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordCheckpoint records a manual checkpoint and how long the operator
// took to acknowledge it (metrics + log event).
func RecordCheckpoint(ctx context.Context, protocol, message string, waitMs float64, err error) {
	initInstruments()
	status := statusStr(err)
	attrs := metric.WithAttributes(
		attribute.String("protocol", protocol),
		attribute.String("status", status),
	)
	inst.checkpointTotal.Add(ctx, 1, attrs)
	inst.checkpointWaitHist.Record(ctx, waitMs, attrs)
	emit(ctx, "run.checkpoint", severity(err),
		otellog.String("protocol", protocol),
		otellog.String("message", truncateOutput(message, maxMessageLog)),
		otellog.Float64("wait_ms", waitMs),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordRun records the end of a run (metrics + log event). executed is the
// number of steps completed before the run finished or stopped.
func RecordRun(ctx context.Context, protocol string, executed int, durationMs float64, err error) {
	initInstruments()
	status := statusStr(err)
	attrs := metric.WithAttributes(
		attribute.String("protocol", protocol),
		attribute.String("status", status),
	)
	inst.runTotal.Add(ctx, 1, attrs)
	inst.runDurationHist.Record(ctx, durationMs, attrs)
	emit(ctx, "run.finish", severity(err),
		otellog.String("protocol", protocol),
		otellog.Int("executed", executed),
		otellog.Float64("duration_ms", durationMs),
		otellog.String("status", status),
		errKV(err),
	)
}
