// Package removal isolates a subject from its background. A remote network
// service does the heavy lifting when it is reachable; a deterministic local
// heuristic keeps the pipeline alive when it is not.
package removal

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrFallbackExhausted is returned when every strategy in the chain failed.
var ErrFallbackExhausted = errors.New("background removal: all strategies failed")

// ServiceError reports a failure talking to the remote removal service.
// It always triggers the local fallback and is never fatal on its own.
type ServiceError struct {
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("removal service: %s (status %d)", e.Message, e.StatusCode)
	case e.Message != "":
		return fmt.Sprintf("removal service: %s", e.Message)
	default:
		return fmt.Sprintf("removal service: %v", e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// StrategyResult is the uniform shape every strategy produces on success.
type StrategyResult struct {
	Buffer   *image.NRGBA
	Warnings []string
}

// Strategy is one interchangeable way of removing a background. Strategies
// are tried in order until one succeeds.
type Strategy interface {
	Name() string
	Remove(ctx context.Context, img *image.NRGBA) (*StrategyResult, error)
}

// Result is the coordinator's output, consumed exactly once by the pipeline.
type Result struct {
	Buffer     *image.NRGBA
	Success    bool
	MethodUsed string
	TimingMs   int64
	Warnings   []string
}
