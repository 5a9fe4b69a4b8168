package dispatcher

import (
	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/metrics"
	"github.com/goliatone/go-operations/runner"
	"github.com/goliatone/go-operations/store"
)

// Option defines the functional option signature.
type Option func(*Dispatcher)

func WithLogger(l operations.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithExecutor sets how workflow scripts are launched.
func WithExecutor(e runner.Executor) Option {
	return func(d *Dispatcher) {
		d.executor = e
	}
}

// WithStore records every observed snapshot.
func WithStore(s store.Store) Option {
	return func(d *Dispatcher) {
		d.store = s
	}
}

func WithMetrics(m metrics.Recorder) Option {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithOutboxSize sets the capacity of the channel internal handlers write to.
func WithOutboxSize(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.outboxSize = n
		}
	}
}
