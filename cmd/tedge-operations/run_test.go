package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/configuration"
	"github.com/goliatone/go-operations/dispatcher"
	"github.com/goliatone/go-operations/registry"
	"github.com/goliatone/go-operations/transport"
)

func TestRegisterWorkflowDirSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.toml"), []byte("operation = \"restart\"\n[init]\nscript = \"/bin/true\"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("operation: [broken"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	var logs bytes.Buffer
	reg := registry.New("tedge")
	require.NoError(t, registerWorkflowDir(reg, dir, operations.NewFmtLogger(&logs)))

	assert.Equal(t, []string{"tedge/operations/+/restart/+/+"}, reg.Patterns())
	assert.Contains(t, logs.String(), "skipping workflow")
	assert.Contains(t, logs.String(), "b.yaml")
}

func TestConfigurationUpdateEndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "new.conf")
	target := filepath.Join(dir, "etc", "app.conf")
	require.NoError(t, os.WriteFile(src, []byte("level = debug\n"), 0o600))

	logger := operations.NewFmtLogger(&bytes.Buffer{})
	broker := transport.NewMemoryBroker()
	reg := registry.New("tedge")
	manager := configuration.NewManager(configuration.WithTmpDir(dir), configuration.WithLogger(logger))
	require.NoError(t, reg.Register(configuration.Workflow(), manager.Inbox()))
	require.NoError(t, reg.Initialize())

	d := dispatcher.New(reg, broker, dispatcher.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx, broker)
	go manager.Run(ctx, d.Outbox())

	topic := "tedge/operations/main/configuration/update/1"
	payload, _ := json.Marshal(map[string]any{
		"status":  "init",
		"target":  target,
		"src_url": "file://" + src,
	})
	require.NoError(t, broker.Publish(ctx, transport.Message{Topic: topic, Payload: payload, Retained: true}))

	require.Eventually(t, func() bool {
		m, ok := broker.Retained(topic)
		if !ok {
			return false
		}
		var obj map[string]any
		return json.Unmarshal(m.Payload, &obj) == nil && obj["status"] == "successful"
	}, 5*time.Second, 20*time.Millisecond)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "level = debug\n", string(data))
}
