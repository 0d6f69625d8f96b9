package telemetry

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/irancrypto/marketbot/internal/setup/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the application logger. Error-level entries are forwarded
// to Sentry when a DSN is configured.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Debug.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stdout), level),
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}

		cores = append(cores, NewSentryCore(zapcore.ErrorLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// Flush drains buffered Sentry events before shutdown.
func Flush() {
	sentry.Flush(2 * time.Second)
}
