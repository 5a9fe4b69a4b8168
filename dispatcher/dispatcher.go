package dispatcher

import (
	"context"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/metrics"
	"github.com/goliatone/go-operations/registry"
	"github.com/goliatone/go-operations/runner"
	"github.com/goliatone/go-operations/store"
	"github.com/goliatone/go-operations/transport"
)

const defaultOutboxSize = 10

// Dispatcher drives operations: every snapshot seen on the transport is
// resolved against the registry and handed to its participant, and every
// snapshot produced locally is published back as retained state.
type Dispatcher struct {
	registry  *registry.Registry
	publisher transport.Publisher
	root      string

	logger     operations.Logger
	executor   runner.Executor
	script     *runner.Script
	store      store.Store
	metrics    metrics.Recorder
	outboxSize int
	outbox     chan operations.Message
}

// New builds a dispatcher over a registry and the transport publisher.
func New(reg *registry.Registry, pub transport.Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:   reg,
		publisher:  pub,
		root:       reg.Root(),
		metrics:    metrics.Nop{},
		outboxSize: defaultOutboxSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.logger = operations.NormalizeLogger(d.logger)
	d.outbox = make(chan operations.Message, d.outboxSize)
	d.script = runner.NewScript(d.executor,
		runner.WithScriptLogger(d.logger),
		runner.WithOutcomeObserver(func(script string, out runner.Outcome) {
			d.metrics.RecordScript(script, out.Duration, !out.Success())
		}),
	)
	return d
}

// Outbox is where internal handlers deliver the snapshots they produce.
func (d *Dispatcher) Outbox() chan<- operations.Message {
	return d.outbox
}

// Subscription is the topic pattern the dispatcher must receive.
func (d *Dispatcher) Subscription() string {
	return operations.SubscriptionPattern(d.root)
}

// Serve subscribes to every operation topic and runs the dispatch loop.
func (d *Dispatcher) Serve(ctx context.Context, sub transport.Subscriber) error {
	inbound := make(chan transport.Message)
	if err := sub.Subscribe(ctx, d.Subscription(), inbound); err != nil {
		return err
	}
	return d.Run(ctx, inbound)
}

// Run processes inbound deliveries and outbox snapshots one at a time
// until ctx is done. A closed inbound channel or a failed publish ends the
// loop with an error.
func (d *Dispatcher) Run(ctx context.Context, inbound <-chan transport.Message) error {
	d.logger.Info("dispatching operations on %s", d.Subscription())
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-inbound:
			if !ok {
				return operations.NewError(operations.ErrTransportClosed, "inbound channel closed", nil, nil)
			}
			if err := d.handleInbound(ctx, raw); err != nil {
				return err
			}
		case msg := <-d.outbox:
			if err := d.Publish(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (d *Dispatcher) handleInbound(ctx context.Context, raw transport.Message) error {
	msg, err := operations.DecodeMessage(d.root, raw.Topic, raw.Payload)
	if err != nil {
		d.metrics.RecordDecodeError(operations.ErrorCode(err))
		operations.WithLoggerFields(d.logger.WithContext(ctx), map[string]any{"topic": raw.Topic}).
			Warn("dropping message: %v", err)
		return nil
	}

	if d.store != nil {
		if err := d.store.Put(ctx, msg); err != nil {
			d.logger.Warn("recording snapshot %s failed: %v", msg.Key, err)
		}
	}

	action := d.registry.Resolve(raw.Topic, msg.Status)
	d.metrics.RecordAction(action.Kind.String(), action.Workflow)
	if action.Workflow != "" {
		// only statuses declared by a workflow become label values
		d.metrics.RecordTransition(action.Workflow, msg.Status)
	}

	logger := operations.WithLoggerFields(d.logger.WithContext(ctx), map[string]any{
		"topic":  raw.Topic,
		"status": msg.Status,
		"action": action.Kind.String(),
	})

	switch action.Kind {
	case registry.Done:
		logger.Debug("operation cleared")
	case registry.Unknown:
		logger.Info("no workflow handles status %q", msg.Status)
	case registry.External:
		logger.Debug("waiting for %s", action.Owner)
	case registry.RunScript:
		next := d.script.Step(ctx, action.Script, msg)
		return d.Publish(ctx, next)
	case registry.Forward:
		return d.forward(ctx, action.Handler, msg)
	}
	return nil
}

// forward hands msg to an internal handler. The outbox keeps being drained
// while waiting, so a handler blocked on it can make progress.
func (d *Dispatcher) forward(ctx context.Context, handler chan<- operations.Message, msg operations.Message) error {
	for {
		select {
		case handler <- msg:
			return nil
		case out := <-d.outbox:
			if err := d.Publish(ctx, out); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Publish sends a snapshot as a retained, at-least-once message.
func (d *Dispatcher) Publish(ctx context.Context, msg operations.Message) error {
	payload, err := msg.Payload()
	if err != nil {
		d.metrics.RecordPublish(true)
		return operations.NewError(operations.ErrPublishFailed, "encode snapshot", err, map[string]any{"key": msg.Key.String()})
	}

	topic := msg.Key.Topic(d.root)
	err = d.publisher.Publish(ctx, transport.Message{
		Topic:    topic,
		Payload:  payload,
		QoS:      transport.AtLeastOnce,
		Retained: true,
	})
	d.metrics.RecordPublish(err != nil)
	if err != nil {
		return operations.NewError(operations.ErrPublishFailed, "publish "+topic, err, map[string]any{"topic": topic})
	}

	operations.WithLoggerFields(d.logger.WithContext(ctx), map[string]any{
		"topic":  topic,
		"status": msg.Status,
	}).Debug("published snapshot")
	return nil
}
