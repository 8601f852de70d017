// Package diag reports anomalies detected while correlating page-load events.
// Anomalies never fail an operation: they are logged, counted, and the
// current traversal or merge is abandoned.
package diag

import (
	"go.uber.org/zap"
)

// Kind identifies a class of anomaly
type Kind string

const (
	KindCycle             Kind = "cycle"
	KindNegativeDelta     Kind = "negative_delta"
	KindDivergentRedirect Kind = "divergent_redirect"
	KindRedirectLoop      Kind = "redirect_loop"
	KindBadRedirectTarget Kind = "bad_redirect_target"
	KindUnboundResponse   Kind = "unbound_response"
	KindInvalidTime       Kind = "invalid_time"
	KindHookPanic         Kind = "hook_panic"
	KindMissingWindow     Kind = "missing_window"
)

// Recorder counts anomalies, typically backed by a metrics registry
type Recorder interface {
	RecordAnomaly(kind string)
}

// Reporter is the diagnostic channel shared by the engine components.
// The zero value and a nil *Reporter are both silent.
type Reporter struct {
	logger   *zap.Logger
	recorder Recorder
}

// NewReporter creates a reporter. recorder may be nil.
func NewReporter(logger *zap.Logger, recorder Recorder) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{logger: logger, recorder: recorder}
}

// Anomaly logs msg at warn level and counts it under kind
func (r *Reporter) Anomaly(kind Kind, msg string, fields ...zap.Field) {
	if r == nil {
		return
	}
	if r.logger != nil {
		r.logger.Warn(msg, append(fields, zap.String("kind", string(kind)))...)
	}
	if r.recorder != nil {
		r.recorder.RecordAnomaly(string(kind))
	}
}

// Debug logs an expected, non-anomalous condition
func (r *Reporter) Debug(msg string, fields ...zap.Field) {
	if r == nil || r.logger == nil {
		return
	}
	r.logger.Debug(msg, fields...)
}

// Logger returns the underlying logger, never nil
func (r *Reporter) Logger() *zap.Logger {
	if r == nil || r.logger == nil {
		return zap.NewNop()
	}
	return r.logger
}
