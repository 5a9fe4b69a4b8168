// Package extupdater is an external workflow participant that updates
// child devices on behalf of the "external/update" operation.
package extupdater

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/runner"
	"github.com/goliatone/go-operations/transport"
)

const (
	Operation = "external"
	Request   = "update"
	Owner     = "ext-updater"

	StatusRequest  = "external_request"
	StatusResponse = "external_response"
)

// Start moves a state to external_request. It is run as the init script.
func Start(state map[string]any) map[string]any {
	out := clone(state)
	out[operations.StatusField] = StatusRequest
	return out
}

// Stop closes the operation from the response: successful when the
// "successful" field is true, failed otherwise.
func Stop(state map[string]any) map[string]any {
	out := clone(state)
	if ok, _ := out["successful"].(bool); ok {
		out[operations.StatusField] = operations.StatusSuccessful
	} else {
		out[operations.StatusField] = operations.StatusFailed
	}
	return out
}

// Transform decodes a JSON state, applies fn and encodes the result.
func Transform(raw string, fn func(map[string]any) map[string]any) ([]byte, error) {
	state := map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &state); err != nil || state == nil {
			return nil, operations.NewError(operations.ErrInvalidPayload, "Not a JSON message", err, nil)
		}
	}
	return json.Marshal(fn(state))
}

// ChildUpdater updates one child device.
type ChildUpdater interface {
	Update(ctx context.Context, child string) error
}

type ChildUpdaterFunc func(ctx context.Context, child string) error

func (f ChildUpdaterFunc) Update(ctx context.Context, child string) error { return f(ctx, child) }

// CommandUpdater runs a command with the child id as its last argument.
type CommandUpdater struct {
	Command  string
	Executor runner.Executor
}

func (c CommandUpdater) Update(ctx context.Context, child string) error {
	argv, err := runner.SplitCommand(c.Command)
	if err != nil {
		return err
	}
	exec := c.Executor
	if exec == nil {
		exec = runner.NewExecExecutor()
	}
	out := exec.Run(ctx, argv[0], append(argv[1:], child))
	if out.Err != nil {
		return out.Err
	}
	if out.ExitCode != 0 {
		return fmt.Errorf("%s exited with %d: %s", argv[0], out.ExitCode, strings.TrimSpace(string(out.Stderr)))
	}
	return nil
}

// Updater answers external_request snapshots with external_response.
type Updater struct {
	root     string
	children ChildUpdater
	client   transport.Client
	logger   operations.Logger

	wg sync.WaitGroup
}

func NewUpdater(root string, client transport.Client, children ChildUpdater, logger operations.Logger) *Updater {
	if children == nil {
		children = ChildUpdaterFunc(func(context.Context, string) error { return nil })
	}
	return &Updater{
		root:     root,
		children: children,
		client:   client,
		logger:   operations.NormalizeLogger(logger),
	}
}

// Pattern is the topic pattern the updater listens on.
func (u *Updater) Pattern() string {
	p, _ := operations.Filter{Operation: Operation, Request: Request}.Pattern(u.root)
	return p
}

// Respond updates every child listed in msg and builds the response.
// Children are updated in order; failures do not stop the remaining ones.
func (u *Updater) Respond(ctx context.Context, msg operations.Message) operations.Message {
	children := stringList(msg.JSON["children"])
	logger := operations.WithLoggerFields(u.logger.WithContext(ctx), map[string]any{
		"instance": msg.Key.Instance,
	})

	var failed []string
	for _, child := range children {
		if err := u.children.Update(ctx, child); err != nil {
			logger.Warn("updating child %s failed: %v", child, err)
			failed = append(failed, child)
			continue
		}
		logger.Info("updated child %s", child)
	}

	out := msg.WithStatus(StatusResponse).Set("successful", len(failed) == 0)
	if len(failed) > 0 {
		out = out.Set(operations.ReasonField, fmt.Sprintf("Some child devices failed to update. %v", failed))
	}
	return out
}

// Listen subscribes to external update requests and answers each one in
// its own goroutine until ctx is done.
func (u *Updater) Listen(ctx context.Context) error {
	inbound := make(chan transport.Message)
	if err := u.client.Subscribe(ctx, u.Pattern(), inbound); err != nil {
		return err
	}
	u.logger.Info("listening for %s/%s on %s", Operation, Request, u.Pattern())

	recoverPanic := operations.MakePanicHandler(operations.LogPanics(u.logger))
	for {
		select {
		case <-ctx.Done():
			u.wg.Wait()
			return nil
		case raw := <-inbound:
			msg, err := operations.DecodeMessage(u.root, raw.Topic, raw.Payload)
			if err != nil {
				u.logger.Warn("dropping %s: %v", raw.Topic, err)
				continue
			}
			if msg.Status != StatusRequest {
				u.logger.Debug("ignoring %s in status %q", raw.Topic, msg.Status)
				continue
			}
			u.wg.Add(1)
			go func() {
				defer u.wg.Done()
				defer recoverPanic("respond", map[string]any{"instance": msg.Key.Instance})
				u.publish(ctx, u.Respond(ctx, msg))
			}()
		}
	}
}

func (u *Updater) publish(ctx context.Context, msg operations.Message) {
	payload, err := msg.Payload()
	if err != nil {
		u.logger.Error("encode response %s: %v", msg.Key, err)
		return
	}
	err = u.client.Publish(ctx, transport.Message{
		Topic:    msg.Key.Topic(u.root),
		Payload:  payload,
		QoS:      transport.AtLeastOnce,
		Retained: true,
	})
	if err != nil {
		u.logger.Error("publish response %s: %v", msg.Key, err)
	}
}

func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func clone(state map[string]any) map[string]any {
	out := make(map[string]any, len(state)+1)
	for k, v := range state {
		out[k] = v
	}
	return out
}
