package telemetry

import (
	"log"

	"hexhold/server/logging"
)

// Metric keys recorded by the road and action services.
const (
	MetricLegacyPathFallback = "roads.legacy_path_fallback"
	MetricSegmentsMerged     = "roads.segments_merged"
	MetricChunksRebuilt      = "roads.chunks_rebuilt"
	MetricActionsActive      = "actions.active"
	MetricActionsCompleted   = "actions.completed"
	MetricActionsFailed      = "actions.failed"
	MetricPersistRetries     = "actions.persist_retries"
	MetricTickOverruns       = "loop.tick_overruns"
	MetricSessionsOpen       = "net.sessions_open"
)

// Logger exposes the logging capabilities required by server components.
type Logger interface {
	Printf(format string, args ...any)
}

// LoggerFunc adapts functions into the Logger interface.
type LoggerFunc func(format string, args ...any)

// Printf implements Logger for LoggerFunc.
func (f LoggerFunc) Printf(format string, args ...any) {
	if f == nil {
		return
	}
	f(format, args...)
}

// WrapLogger adapts a standard library logger to the Logger interface.
func WrapLogger(logger *log.Logger) Logger {
	return &loggerAdapter{logger: logger}
}

// DiscardLogger drops everything.
func DiscardLogger() Logger {
	return LoggerFunc(func(string, ...any) {})
}

type loggerAdapter struct {
	logger *log.Logger
}

func (l *loggerAdapter) Printf(format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// Metrics exposes the telemetry methods required by server components.
type Metrics interface {
	Add(key string, delta uint64)
	Store(key string, value uint64)
}

// WrapMetrics adapts the shared logging metrics into the Metrics interface.
func WrapMetrics(metrics *logging.Metrics) Metrics {
	return &metricsAdapter{metrics: metrics}
}

// NopMetrics records nothing.
func NopMetrics() Metrics {
	return WrapMetrics(nil)
}

type metricsAdapter struct {
	metrics *logging.Metrics
}

func (m *metricsAdapter) Add(key string, delta uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryAdd(key, delta)
}

func (m *metricsAdapter) Store(key string, value uint64) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.TelemetryStore(key, value)
}

// StandardLogger exposes the wrapped logger for components that need a
// *log.Logger.
func (l *loggerAdapter) StandardLogger() *log.Logger {
	if l == nil {
		return nil
	}
	return l.logger
}
