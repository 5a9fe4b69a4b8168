package runner

import (
	"context"
	"time"

	operations "github.com/goliatone/go-operations"
)

// Handler runs a unit of work with an optional timeout and retries.
type Handler struct {
	logger        operations.Logger
	errorHandler  func(error)
	retryStrategy RetryStrategy
	retryIf       func(error) bool

	maxRetries int
	timeout    time.Duration
	deadline   time.Time
}

// NewHandler constructs a Handler from options, applying defaults if unset.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		errorHandler:  func(error) {},
		retryStrategy: NoDelayStrategy{},
	}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	h.logger = operations.NormalizeLogger(h.logger)
	return h
}

// Run calls fn until it succeeds, retries are exhausted, or ctx is done.
// It returns the last error.
func (h *Handler) Run(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := h.contextWithSettings(ctx)
	defer cancel()

	var err error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt == h.maxRetries || (h.retryIf != nil && !h.retryIf(err)) {
			break
		}

		h.logger.Debug("attempt %d of %d failed: %v", attempt+1, h.maxRetries+1, err)
		h.errorHandler(err)

		if delay := h.retryStrategy.SleepDuration(attempt, err); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return err
			}
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (h *Handler) contextWithSettings(parent context.Context) (context.Context, context.CancelFunc) {
	switch {
	case h.timeout != 0 && !h.deadline.IsZero():
		ctx, cancelTimeout := context.WithTimeout(parent, h.timeout)
		ctxDeadline, cancelDeadline := context.WithDeadline(ctx, h.deadline)
		return ctxDeadline, func() {
			cancelDeadline()
			cancelTimeout()
		}
	case h.timeout != 0:
		return context.WithTimeout(parent, h.timeout)
	case !h.deadline.IsZero():
		return context.WithDeadline(parent, h.deadline)
	default:
		return parent, func() {}
	}
}
