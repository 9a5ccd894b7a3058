// Package logging builds Pulse's structured logger and a small set of
// decision-oriented helpers on top of it.
package logging

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ctxKey is an unexported type so request IDs never collide with keys set
// by other packages on the same context.
type ctxKey int

const requestIDKey ctxKey = iota

// NewLogger builds a *zap.Logger. development selects console encoding with
// caller/stacktrace verbosity suited to a terminal; production selects JSON
// encoding suited to log aggregation.
func NewLogger(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// NewZapLogger bridges a *zap.Logger into the logr.Logger interface that
// controller-runtime expects its managers and controllers to log through.
func NewZapLogger(zapLog *zap.Logger, development bool) logr.Logger {
	if development {
		return zapr.NewLogger(zapLog, zapr.LogInfoLevel("v"))
	}
	return zapr.NewLogger(zapLog)
}

// WithRequestID attaches a freshly generated request ID to ctx, used to
// correlate every log line emitted during a single orchestrator tick.
func WithRequestID(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestIDKey, uuid.NewString())
}

// GetRequestID returns the request ID stored in ctx, or "" if none is set.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRequestIDField returns logger with a request_id field attached when
// ctx carries one; otherwise it returns logger unchanged.
func WithRequestIDField(ctx context.Context, logger *zap.Logger) *zap.Logger {
	id := GetRequestID(ctx)
	if id == "" {
		return logger
	}
	return logger.With(zap.String("request_id", id))
}

// LogReplicaDecision logs a ReplicaController decision.
func LogReplicaDecision(logger *zap.Logger, deployment, namespace string, from, to int32, reason string) {
	logger.Info("replica decision",
		zap.String("deployment", deployment),
		zap.String("namespace", namespace),
		zap.Int32("from", from),
		zap.Int32("to", to),
		zap.String("reason", reason),
	)
}

// LogNodeDecision logs a NodeScaler scale-up/scale-down decision.
func LogNodeDecision(logger *zap.Logger, kind string, delta int, reason string) {
	logger.Info("node decision",
		zap.String("kind", kind),
		zap.Int("delta", delta),
		zap.String("reason", reason),
	)
}

// LogDrainStep logs a single step of the cordon/evict/remove drain protocol.
func LogDrainStep(logger *zap.Logger, node, step string, err error) {
	if err != nil {
		logger.Error("drain step failed",
			zap.String("node", node),
			zap.String("step", step),
			zap.Error(err),
		)
		return
	}
	logger.Info("drain step completed",
		zap.String("node", node),
		zap.String("step", step),
	)
}

// LogOOMRemediation logs a MemoryOptimizer remediation attempt.
func LogOOMRemediation(logger *zap.Logger, deployment, container string, previousLimit, newLimit int64, applied bool) {
	logger.Info("oom remediation",
		zap.String("deployment", deployment),
		zap.String("container", container),
		zap.Int64("previous_limit_bytes", previousLimit),
		zap.Int64("new_limit_bytes", newLimit),
		zap.Bool("applied", applied),
	)
}

// LogClusterCall logs an outbound cluster API call with its outcome.
func LogClusterCall(logger *zap.Logger, verb, resource string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("verb", verb),
		zap.String("resource", resource),
		zap.Duration("duration", duration),
	}
	if err != nil {
		logger.Warn("cluster API call failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Debug("cluster API call", fields...)
}

// LogTick logs the completion of an orchestrator tick with its duration and
// outcome.
func LogTick(logger *zap.Logger, tickID string, duration time.Duration, err error) {
	fields := []zap.Field{
		zap.String("tick_id", tickID),
		zap.Duration("duration", duration),
	}
	if err != nil {
		logger.Error("tick failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Debug("tick completed", fields...)
}
