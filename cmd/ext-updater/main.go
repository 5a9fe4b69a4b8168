// Command ext-updater takes part in the external/update workflow: its
// start and stop commands are workflow scripts, listen answers requests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/extupdater"
	"github.com/goliatone/go-operations/transport/mqtt"
)

var version = "dev"

type CLI struct {
	LogLevel string           `help:"Log level." default:"info" enum:"trace,debug,info,warn,error" env:"EXT_UPDATER_LOG_LEVEL"`
	Version  kong.VersionFlag `help:"Print version and exit."`

	Start  StartCmd  `cmd:"" help:"Move a state to external_request."`
	Stop   StopCmd   `cmd:"" help:"Close an external_response as successful or failed."`
	Listen ListenCmd `cmd:"" help:"Answer external update requests."`
}

type StartCmd struct {
	State string `arg:"" optional:"" help:"Current operation state as JSON."`
}

func (c *StartCmd) Run(operations.Logger) error {
	return printTransformed(c.State, extupdater.Start)
}

type StopCmd struct {
	State string `arg:"" optional:"" help:"Current operation state as JSON."`
}

func (c *StopCmd) Run(operations.Logger) error {
	return printTransformed(c.State, extupdater.Stop)
}

func printTransformed(state string, fn func(map[string]any) map[string]any) error {
	out, err := extupdater.Transform(state, fn)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

type ListenCmd struct {
	Root         string `help:"Topic root." default:"tedge" env:"TEDGE_OPS_ROOT"`
	Broker       string `help:"MQTT broker URL." default:"tcp://localhost:1883" env:"TEDGE_OPS_BROKER"`
	ClientID     string `help:"MQTT client id." default:"ext-updater" env:"EXT_UPDATER_CLIENT_ID"`
	ChildCommand string `help:"Command updating one child device; the child id is appended." env:"EXT_UPDATER_CHILD_COMMAND"`
}

func (c *ListenCmd) Run(logger operations.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := mqtt.New(mqtt.Config{
		Broker:         c.Broker,
		ClientID:       c.ClientID,
		CleanSession:   true,
		ConnectTimeout: 10 * time.Second,
	}, mqtt.WithLogger(logger))
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close(250 * time.Millisecond)

	var children extupdater.ChildUpdater
	if c.ChildCommand != "" {
		children = extupdater.CommandUpdater{Command: c.ChildCommand}
	}
	return extupdater.NewUpdater(c.Root, client, children, logger).Listen(ctx)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("ext-updater"),
		kong.Description("External participant of the external/update workflow."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	logger := operations.NewLogger(os.Stderr, cli.LogLevel, false)
	ctx.BindTo(logger, (*operations.Logger)(nil))
	if err := ctx.Run(); err != nil {
		logger.Error("%s: %v", ctx.Command(), err)
		os.Exit(1)
	}
}
