package platform

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrAllStrategiesFailed indicates every delivery strategy in a chain failed.
var ErrAllStrategiesFailed = errors.New("all delivery strategies failed")

// Strategy is one way to deliver content to a platform. Strategies are tried
// in order; a failure falls through to the next one with the error recorded
// for diagnostics rather than used as control flow.
type Strategy struct {
	Name string
	Run  func(ctx context.Context) error
}

// TryStrategies runs each strategy in sequence until one succeeds. When all
// fail, the individual failures are aggregated into the returned error.
func TryStrategies(ctx context.Context, logger *zap.Logger, strategies []Strategy) error {
	var failures []error

	for _, strategy := range strategies {
		err := strategy.Run(ctx)
		if err == nil {
			return nil
		}

		logger.Warn("Delivery strategy failed",
			zap.String("strategy", strategy.Name),
			zap.Error(err))

		failures = append(failures, fmt.Errorf("%s: %w", strategy.Name, err))
	}

	return fmt.Errorf("%w: %w", ErrAllStrategiesFailed, errors.Join(failures...))
}
