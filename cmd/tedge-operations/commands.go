package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/transport"
)

type ValidateCmd struct {
	Dir string `arg:"" help:"Directory of workflow files." default:"/etc/tedge/operations" type:"path"`
}

func (c *ValidateCmd) Run(g *Globals) error {
	results, err := operations.LoadWorkflowDir(c.Dir)
	if err != nil {
		return err
	}
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(os.Stdout, "FAIL %s: %s\n", res.Path, operations.ErrorMessage(res.Err))
			continue
		}
		pattern, _ := res.Workflow.Filter.Pattern(g.Root)
		fmt.Fprintf(os.Stdout, "ok   %s: %s %v\n", res.Path, pattern, res.Workflow.StateNames())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d workflow files are invalid", failed, len(results))
	}
	return nil
}

type RequestCmd struct {
	Subsystem string        `help:"Target subsystem." default:"main"`
	Instance  string        `help:"Operation instance id, generated when empty."`
	Timeout   time.Duration `help:"Publish timeout." default:"10s"`
	Operation string        `arg:"" help:"Operation name, eg. configuration."`
	Request   string        `arg:"" help:"Request name, eg. update."`
	Payload   string        `arg:"" optional:"" help:"JSON payload. A missing status defaults to init."`
}

func (c *RequestCmd) Run(g *Globals, logger operations.Logger) error {
	key := operations.OperationKey{
		Subsystem: c.Subsystem,
		Operation: c.Operation,
		Request:   c.Request,
		Instance:  c.Instance,
	}
	if key.Instance == "" {
		key.Instance = uuid.NewString()
	}

	obj := map[string]any{}
	if c.Payload != "" {
		if err := json.Unmarshal([]byte(c.Payload), &obj); err != nil || obj == nil {
			return operations.NewError(operations.ErrInvalidPayload, "Not a JSON message", err, nil)
		}
	}
	if _, ok := obj[operations.StatusField]; !ok {
		obj[operations.StatusField] = operations.StatusInit
	}
	msg, err := operations.NewMessage(key, "").WithJSON(obj)
	if err != nil {
		return err
	}
	if err := publishRetained(g, logger, c.Timeout, msg); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, key.Topic(g.Root))
	return nil
}

type ClearCmd struct {
	Subsystem string        `help:"Target subsystem." default:"main"`
	Timeout   time.Duration `help:"Publish timeout." default:"10s"`
	Operation string        `arg:""`
	Request   string        `arg:""`
	Instance  string        `arg:""`
}

func (c *ClearCmd) Run(g *Globals, logger operations.Logger) error {
	key := operations.OperationKey{
		Subsystem: c.Subsystem,
		Operation: c.Operation,
		Request:   c.Request,
		Instance:  c.Instance,
	}
	return publishRetained(g, logger, c.Timeout, operations.Message{Key: key, JSON: map[string]any{}})
}

func publishRetained(g *Globals, logger operations.Logger, timeout time.Duration, msg operations.Message) error {
	if err := msg.Key.Validate(); err != nil {
		return err
	}
	payload, err := msg.Payload()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, closeClient, err := g.connect(ctx, logger)
	if err != nil {
		return err
	}
	defer closeClient()

	return client.Publish(ctx, transport.Message{
		Topic:    msg.Key.Topic(g.Root),
		Payload:  payload,
		QoS:      transport.AtLeastOnce,
		Retained: true,
	})
}
