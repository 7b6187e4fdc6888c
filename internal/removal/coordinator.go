package removal

import (
	"context"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
)

// Coordinator runs an ordered chain of strategies until one succeeds.
// Diagnostics from failed attempts are preserved on the final result even
// when a later strategy recovers, so callers can see that the remote path
// was degraded.
type Coordinator struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewCoordinator builds a coordinator over the given strategies, tried in
// argument order.
func NewCoordinator(logger *zap.Logger, strategies ...Strategy) *Coordinator {
	return &Coordinator{
		strategies: strategies,
		logger:     logger.Named("removal"),
	}
}

// Remove attempts each strategy in order. It returns a failed Result plus
// ErrFallbackExhausted only when every strategy failed; remote failures with
// a working local fallback are a success with warnings.
func (c *Coordinator) Remove(ctx context.Context, img *image.NRGBA) (*Result, error) {
	start := time.Now()
	var warnings []string

	for _, strategy := range c.strategies {
		// A cancelled request is the caller walking away, not a removal
		// failure; report the context error rather than exhaustion.
		if err := ctx.Err(); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: skipped, request cancelled", strategy.Name()))
			return &Result{
				Success:  false,
				TimingMs: time.Since(start).Milliseconds(),
				Warnings: warnings,
			}, err
		}

		attempt, err := strategy.Remove(ctx, img)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", strategy.Name(), err))
			c.logger.Warn("removal strategy failed",
				zap.String("strategy", strategy.Name()),
				zap.Error(err))
			continue
		}

		warnings = append(warnings, attempt.Warnings...)
		c.logger.Info("background removed",
			zap.String("strategy", strategy.Name()),
			zap.Duration("elapsed", time.Since(start)))
		return &Result{
			Buffer:     attempt.Buffer,
			Success:    true,
			MethodUsed: strategy.Name(),
			TimingMs:   time.Since(start).Milliseconds(),
			Warnings:   warnings,
		}, nil
	}

	result := &Result{
		Success:  false,
		TimingMs: time.Since(start).Milliseconds(),
		Warnings: warnings,
	}
	return result, ErrFallbackExhausted
}
