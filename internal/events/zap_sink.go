package events

import "go.uber.org/zap"

// ZapSink adapts the event vocabulary onto structured go.uber.org/zap
// logging, one field per event attribute.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps a *zap.Logger as a Sink.
func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

// Emit implements Sink.
func (s *ZapSink) Emit(e Event) {
	fields := []zap.Field{
		zap.String("origin", e.Origin.String()),
		zap.Bool("coordinator", e.IsCoordinator),
	}
	if e.Transaction != 0 {
		fields = append(fields, zap.Uint32("tid", e.Transaction))
	}
	if e.Key != "" {
		fields = append(fields, zap.String("key", e.Key))
	}
	if e.HasValue {
		fields = append(fields, zap.String("value", e.Value))
	}
	s.log.Info(string(e.Kind), fields...)
}
