package main

import (
	"context"

	"github.com/farmpay/backend/internal/infrastructure/config"
	"github.com/farmpay/backend/internal/infrastructure/logger"
	"github.com/farmpay/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// telemetryStack holds the OpenTelemetry providers and the profiler
type telemetryStack struct {
	tracer   *telemetry.TracerProvider
	meters   *telemetry.MeterProvider
	logs     *telemetry.LoggerProvider
	profiler *telemetry.Profiler
	logger   *zap.Logger // base logger, bridged to OTLP when log export is on
}

// setupTelemetry starts every provider. A provider that fails to start is
// logged and replaced by its no-op form so the ledger still serves.
func setupTelemetry(ctx context.Context, cfg *config.Config, log *zap.Logger) *telemetryStack {
	tc := cfg.Telemetry
	s := &telemetryStack{logger: log}

	var err error
	s.tracer, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     tc.SamplingRatio,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		log.Error("Failed to initialize tracing", zap.Error(err))
		s.tracer, _ = telemetry.NewTracerProvider(ctx, telemetry.Config{}, log)
	}

	s.meters, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tc.Enabled && tc.MetricsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ExportInterval:    tc.MetricsExportInterval,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		log.Error("Failed to initialize metrics", zap.Error(err))
		s.meters, _ = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{}, log)
	}

	s.logs, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           tc.Enabled && tc.LogsExportEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		log.Error("Failed to initialize log export", zap.Error(err))
		s.logs, _ = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{}, log)
	}
	if s.logs.IsEnabled() {
		core := telemetry.NewZapOTELCore(tc.ServiceName, s.logs, logger.ParseLevel(tc.LogsExportLevel))
		s.logger = telemetry.Bridge(log, core)
	}

	s.profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         tc.ProfilingEnabled,
		ServerAddress:   tc.ProfilingServerAddress,
		ApplicationName: tc.ServiceName,
		ProfileCPU:      true,
		ProfileAlloc:    true,
		ProfileInuse:    true,
		ProfileMutex:    true,
	}, log)
	if err != nil {
		log.Error("Failed to start profiler", zap.Error(err))
		s.profiler, _ = telemetry.NewProfiler(telemetry.ProfilerConfig{}, log)
	}
	if s.profiler.IsEnabled() && s.tracer.IsEnabled() {
		if err := s.tracer.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to link profiles to spans", zap.Error(err))
		}
	}
	return s
}

// shutdown flushes and stops every provider
func (s *telemetryStack) shutdown(log *zap.Logger) {
	ctx := context.Background()
	if err := s.profiler.Stop(); err != nil {
		log.Warn("Error stopping profiler", zap.Error(err))
	}
	if err := s.tracer.Shutdown(ctx); err != nil {
		log.Warn("Error shutting down tracer provider", zap.Error(err))
	}
	if err := s.meters.Shutdown(ctx); err != nil {
		log.Warn("Error shutting down meter provider", zap.Error(err))
	}
	if err := s.logs.Shutdown(ctx); err != nil {
		log.Warn("Error shutting down logger provider", zap.Error(err))
	}
}
