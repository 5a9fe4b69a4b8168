// Command tedge-operations coordinates operation workflows over MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/transport"
	"github.com/goliatone/go-operations/transport/mqtt"
)

var version = "dev"

// Globals are shared by every command.
type Globals struct {
	Root     string `help:"Topic root." default:"tedge" env:"TEDGE_OPS_ROOT"`
	Broker   string `help:"MQTT broker URL, or \"memory\" for an in-process broker." default:"tcp://localhost:1883" env:"TEDGE_OPS_BROKER"`
	ClientID string `help:"MQTT client id." default:"tedge-operations" env:"TEDGE_OPS_CLIENT_ID"`
	Username string `help:"MQTT username." env:"TEDGE_OPS_USERNAME"`
	Password string `help:"MQTT password." env:"TEDGE_OPS_PASSWORD"`
	LogLevel string `help:"Log level." default:"info" enum:"trace,debug,info,warn,error" env:"TEDGE_OPS_LOG_LEVEL"`
	LogJSON  bool   `help:"Log as JSON." env:"TEDGE_OPS_LOG_JSON"`
}

type CLI struct {
	Globals

	Version  kong.VersionFlag `help:"Print version and exit."`
	Run      RunCmd           `cmd:"" default:"1" help:"Run the operation coordinator."`
	Validate ValidateCmd      `cmd:"" help:"Check workflow files."`
	Request  RequestCmd       `cmd:"" help:"Publish a new operation request."`
	Clear    ClearCmd         `cmd:"" help:"Clear a finished operation."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tedge-operations"),
		kong.Description("Drives operation workflows published on MQTT."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	logger := operations.NewLogger(os.Stderr, cli.LogLevel, cli.LogJSON)
	ctx.BindTo(logger, (*operations.Logger)(nil))

	if err := ctx.Run(&cli.Globals); err != nil {
		logger.Error("%s: %v", ctx.Command(), err)
		os.Exit(1)
	}
}

// connect opens the configured broker. The returned close func releases it.
func (g *Globals) connect(ctx context.Context, logger operations.Logger) (transport.Client, func(), error) {
	if g.Broker == "memory" {
		broker := transport.NewMemoryBroker()
		return broker, func() { broker.Close() }, nil
	}

	client := mqtt.New(mqtt.Config{
		Broker:         g.Broker,
		ClientID:       g.ClientID,
		Username:       g.Username,
		Password:       g.Password,
		CleanSession:   true,
		ConnectTimeout: 10 * time.Second,
		KeepAlive:      30 * time.Second,
	}, mqtt.WithLogger(logger))

	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", g.Broker, err)
	}
	return client, func() { client.Close(250 * time.Millisecond) }, nil
}
