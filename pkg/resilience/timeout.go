package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/errors"
)

// TimeoutError reports that an operation outlived its limit. It matches
// both apperrors.ErrTimeout and context.DeadlineExceeded.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %v", e.Op, e.Limit)
}

func (e *TimeoutError) Is(target error) bool {
	return target == apperrors.ErrTimeout || target == context.DeadlineExceeded
}

// WithTimeout runs fn with a deadline of limit. It returns when the deadline
// passes even if fn ignores its context. A non-positive limit disables the
// deadline.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeoutCause(ctx, limit, &TimeoutError{Op: op, Limit: limit})
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}
