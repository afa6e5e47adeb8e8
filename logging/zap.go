package logging

import "go.uber.org/zap"

// ZapAdapter implements Logger on top of a zap sugared logger.
type ZapAdapter struct {
	sugar *zap.SugaredLogger
}

var _ Logger = (*ZapAdapter)(nil)

// NewZapAdapter wraps logger.
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{sugar: logger.Sugar()}
}

// NewZapProduction builds a production zap logger wrapped as Logger. The
// returned sync func flushes buffered entries.
func NewZapProduction() (*ZapAdapter, func() error, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, nil, err
	}
	return NewZapAdapter(l), l.Sync, nil
}

// Debug logs a debug message.
func (z *ZapAdapter) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }

// Info logs an informational message.
func (z *ZapAdapter) Info(msg string, args ...any) { z.sugar.Infow(msg, args...) }

// Warn logs a warning message.
func (z *ZapAdapter) Warn(msg string, args ...any) { z.sugar.Warnw(msg, args...) }

// Error logs an error message.
func (z *ZapAdapter) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// With returns an adapter whose entries carry args.
func (z *ZapAdapter) With(args ...any) Logger { return &ZapAdapter{sugar: z.sugar.With(args...)} }
