// Package logging provides the structured event logger used by the filter
// core (spec §7: one structured record per non-trivial event, categorized
// on failure, never containing payload content).
package logging

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger with the small set of event helpers the filter
// core needs. The zero value is not usable; construct with New or Nop.
type Logger struct {
	z *zap.Logger
}

// New builds a production-style JSON logger at the given level name
// ("debug", "info", "warn", "error"). Unknown levels default to info.
func New(level string) (*Logger, error) {
	lvl := zapcore.InfoLevel
	_ = lvl.UnmarshalText([]byte(level))

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// Nop returns a Logger that discards everything, for tests and defaults.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// Sync flushes buffered log entries, if any.
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	return l.z.Sync()
}

// Eligibility logs the eligibility-gate outcome for a request.
func (l *Logger) Eligibility(requestID, host, path string, eligible bool, reason string) {
	l.z.Info("eligibility",
		zap.String("request_id", requestID),
		zap.String("host", host),
		zap.String("path", path),
		zap.Bool("eligible", eligible),
		zap.String("reason", reason),
	)
}

// Decompress logs the outcome of the decompression step.
func (l *Logger) Decompress(requestID, encoding string, ok bool, err error) {
	f := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("encoding", encoding),
		zap.Bool("ok", ok),
	}
	if err != nil {
		f = append(f, zap.Error(err))
	}
	l.z.Info("decompress", f...)
}

// ConversionStart logs the start of a conversion attempt.
func (l *Logger) ConversionStart(requestID string, size int) {
	l.z.Info("conversion_start",
		zap.String("request_id", requestID),
		zap.Int("input_bytes", size),
	)
}

// ConversionOutcome logs the result of a conversion attempt, including the
// error category on failure. category is empty on success.
func (l *Logger) ConversionOutcome(requestID string, ok bool, category string, elapsedMS int64) {
	l.z.Info("conversion_outcome",
		zap.String("request_id", requestID),
		zap.Bool("ok", ok),
		zap.String("category", category),
		zap.Int64("elapsed_ms", elapsedMS),
	)
}

// CharsetWarning logs a non-fatal charset mismatch (declared non-UTF-8,
// parsing proceeds as UTF-8 per SPEC_FULL §5.4).
func (l *Logger) CharsetWarning(requestID, declared string) {
	l.z.Warn("charset_mismatch",
		zap.String("request_id", requestID),
		zap.String("declared", declared),
	)
}

// ReplayOriginal logs a fail-open replay decision.
func (l *Logger) ReplayOriginal(requestID, category string) {
	l.z.Warn("replay_original",
		zap.String("request_id", requestID),
		zap.String("category", category),
	)
}

// RejectError logs a fail-closed 502 decision.
func (l *Logger) RejectError(requestID, category string) {
	l.z.Error("reject_error",
		zap.String("request_id", requestID),
		zap.String("category", category),
	)
}

// AccessLog logs one proxy-level request/response record (method, path,
// protocol, status, remote address, elapsed time, bytes written), the
// structured equivalent of an HTTP access log line.
func (l *Logger) AccessLog(method, path, proto string, status int, remoteAddr string, elapsed time.Duration, bytesWritten int) {
	statusText := ""
	if status > 0 {
		statusText = http.StatusText(status)
	}
	l.z.Info("access",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("proto", proto),
		zap.Int("status", status),
		zap.String("status_text", statusText),
		zap.String("remote_addr", remoteAddr),
		zap.Duration("elapsed", elapsed),
		zap.Int("bytes", bytesWritten),
	)
}
