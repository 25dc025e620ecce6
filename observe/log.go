package observe

import (
	"context"

	"go.uber.org/zap"
)

// LogObserver writes call lifecycle events to a zap logger. Attempts are
// logged at debug level, successes at debug and failures at warn.
type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnStart(_ context.Context, id string) {
	o.logger.Debug("rpc call started", zap.String("rpc", id))
}

func (o *LogObserver) OnAttempt(_ context.Context, id string, rec AttemptRecord) {
	fields := []zap.Field{
		zap.String("rpc", id),
		zap.Int("attempt", rec.Attempt),
		zap.Duration("elapsed", rec.EndTime.Sub(rec.StartTime)),
		zap.String("outcome", rec.Outcome.Kind.String()),
	}
	if rec.Wait > 0 {
		fields = append(fields, zap.Duration("wait", rec.Wait))
	}
	if rec.Err != nil {
		fields = append(fields, zap.Error(rec.Err))
	}
	o.logger.Debug("rpc attempt", fields...)
}

func (o *LogObserver) OnSuccess(_ context.Context, id string, tl Timeline) {
	o.logger.Debug("rpc call succeeded",
		zap.String("rpc", id),
		zap.String("call_id", tl.CallID),
		zap.Int("attempts", len(tl.Attempts)),
		zap.Duration("duration", tl.Duration()),
	)
}

func (o *LogObserver) OnFailure(_ context.Context, id string, tl Timeline) {
	fields := []zap.Field{
		zap.String("rpc", id),
		zap.String("call_id", tl.CallID),
		zap.Int("attempts", len(tl.Attempts)),
		zap.Duration("duration", tl.Duration()),
	}
	if tl.FinalErr != nil {
		fields = append(fields,
			zap.String("kind", tl.FinalErr.Kind.String()),
			zap.Error(tl.FinalErr),
		)
	}
	o.logger.Warn("rpc call failed", fields...)
}
