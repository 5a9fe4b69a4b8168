package runner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	operations "github.com/goliatone/go-operations"
)

var scriptKey = operations.OperationKey{Subsystem: "main", Operation: "external", Request: "update", Instance: "1"}

type recordingExecutor struct {
	command string
	args    []string
	outcome Outcome
}

func (r *recordingExecutor) Run(_ context.Context, command string, args []string) Outcome {
	r.command = command
	r.args = args
	return r.outcome
}

func TestStepPassesPayloadAsLastArgument(t *testing.T) {
	exec := &recordingExecutor{outcome: Outcome{Stdout: []byte(`{"status":"external_request","children":["a"]}`)}}
	script := NewScript(exec)

	msg := operations.NewMessage(scriptKey, "init").Set("children", []any{"a"})
	next := script.Step(context.Background(), "ext-updater 'start now'", msg)

	assert.Equal(t, "ext-updater", exec.command)
	require.Len(t, exec.args, 2)
	assert.Equal(t, "start now", exec.args[0])

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(exec.args[1]), &sent))
	assert.Equal(t, "init", sent["status"])

	assert.Equal(t, "external_request", next.Status)
	assert.Equal(t, scriptKey, next.Key)
	assert.Equal(t, []any{"a"}, next.JSON["children"])
}

func TestClassify(t *testing.T) {
	msg := operations.NewMessage(scriptKey, "init")

	cases := []struct {
		name   string
		out    Outcome
		status string
		reason string
	}{
		{"launch failure", Outcome{Err: errors.New("no such file"), ExitCode: -1}, "failed", "Failed to launch ./check: no such file"},
		{"non zero exit", Outcome{ExitCode: 2, Stderr: []byte("bad config\n")}, "failed", "Script ./check failed with: bad config"},
		{"non zero exit binary stderr", Outcome{ExitCode: 1, Stderr: []byte{0xff}}, "failed", "Script ./check failed and returned non UTF-8 stderr"},
		{"binary stdout", Outcome{Stdout: []byte{0xfe, 0xff}}, "failed", "Script ./check returned non UTF-8 stdout"},
		{"non json stdout", Outcome{Stdout: []byte("ok")}, "failed", ""},
		{"json array stdout", Outcome{Stdout: []byte(`[1]`)}, "failed", ""},
		{"json null stdout", Outcome{Stdout: []byte(`null`)}, "failed", "Script ./check returned non JSON stdout: not an object"},
		{"missing status", Outcome{Stdout: []byte(`{"x":1}`)}, "failed", "Script ./check returned a JSON object without status"},
		{"empty status", Outcome{Stdout: []byte(`{"status":"","x":1}`)}, "failed", "Script ./check returned a JSON object without status"},
		{"next state", Outcome{Stdout: []byte(`{"status":"scheduled"}`)}, "scheduled", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next := Classify("./check", msg, tc.out)
			assert.Equal(t, tc.status, next.Status)
			assert.Equal(t, tc.status, next.JSON["status"])
			assert.Equal(t, scriptKey, next.Key)
			if tc.reason != "" {
				assert.Equal(t, tc.reason, next.JSON["reason"])
			}
			if tc.status == "failed" && tc.reason == "" {
				assert.Contains(t, next.JSON["reason"], "Script ./check returned non JSON stdout")
			}
		})
	}
}

func TestStepWithInvalidCommandLine(t *testing.T) {
	exec := &recordingExecutor{}
	script := NewScript(exec)

	next := script.Step(context.Background(), "check 'unterminated", operations.NewMessage(scriptKey, "init"))
	assert.Equal(t, "failed", next.Status)
	assert.Contains(t, next.JSON["reason"], "Failed to launch check 'unterminated")
	assert.Empty(t, exec.command)
}

func TestStepNotifiesObserver(t *testing.T) {
	var seen []string
	script := NewScript(ExecutorFunc(func(context.Context, string, []string) Outcome {
		return Outcome{ExitCode: 1}
	}), WithOutcomeObserver(func(script string, out Outcome) {
		seen = append(seen, script)
		assert.False(t, out.Success())
	}))

	script.Step(context.Background(), "a b", operations.NewMessage(scriptKey, "init"))
	assert.Equal(t, []string{"a b"}, seen)
}

func TestSplitCommand(t *testing.T) {
	cases := map[string][]string{
		"ext-updater start":              {"ext-updater", "start"},
		"  spaced   out  ":               {"spaced", "out"},
		`sh -c 'echo "$1"' --`:           {"sh", "-c", `echo "$1"`, "--"},
		`say "hello \"world\""`:          {"say", `hello "world"`},
		`path\ with\ spaces arg`:         {"path with spaces", "arg"},
		`empty '' arg`:                   {"empty", "", "arg"},
		"/usr/bin/tedge-write /etc/conf": {"/usr/bin/tedge-write", "/etc/conf"},
	}

	for line, want := range cases {
		got, err := SplitCommand(line)
		require.NoError(t, err, line)
		assert.Equal(t, want, got, line)
	}

	for _, bad := range []string{"", "   ", `"open`, `trailing\`} {
		_, err := SplitCommand(bad)
		assert.Error(t, err, bad)
	}
}
