package telemetry

import (
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"
)

// SentryCore implements zapcore.Core to forward errors to Sentry.
type SentryCore struct {
	zapcore.LevelEnabler
}

// NewSentryCore creates a new Core that forwards errors to Sentry.
func NewSentryCore(enab zapcore.LevelEnabler) *SentryCore {
	return &SentryCore{LevelEnabler: enab}
}

// With adds structured context to the Core.
func (c *SentryCore) With(_ []zapcore.Field) zapcore.Core {
	return c
}

// Check determines whether the supplied Entry should be logged.
func (c *SentryCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

// Write forwards error and fatal level logs to Sentry.
func (c *SentryCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if ent.Level < zapcore.ErrorLevel || sentry.CurrentHub().Client() == nil {
		return nil
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		enc := zapcore.NewMapObjectEncoder()

		var errorValues []string

		for i := range fields {
			if fields[i].Type == zapcore.ErrorType {
				if err, ok := fields[i].Interface.(error); ok {
					errorValues = append(errorValues, err.Error())
				}
			}

			fields[i].AddTo(enc)
		}

		// Job/platform/target fields become searchable tags, the rest extras
		for k, v := range enc.Fields {
			switch k {
			case "job", "platform", "target":
				scope.SetTag(k, fmt.Sprint(v))
			case "error":
			default:
				scope.SetExtra(k, v)
			}
		}

		level := sentry.LevelError
		if ent.Level >= zapcore.DPanicLevel {
			level = sentry.LevelFatal
		}

		scope.SetLevel(level)

		event := sentry.NewEvent()
		event.Level = level
		event.Message = ent.Message

		exceptionValue := ent.Message
		if len(errorValues) > 0 {
			exceptionValue = fmt.Sprintf("%s: %s", ent.Message, strings.Join(errorValues, "; "))
		}

		funcName := ent.Caller.Function
		if lastDot := strings.LastIndexByte(funcName, '.'); lastDot > -1 {
			funcName = funcName[lastDot+1:]
		}

		event.Exception = []sentry.Exception{{
			Value:      exceptionValue,
			Type:       funcName,
			Stacktrace: sentry.NewStacktrace(),
		}}

		sentry.CaptureEvent(event)
	})

	return nil
}

// Sync flushes any buffered logs.
func (c *SentryCore) Sync() error {
	return nil
}
