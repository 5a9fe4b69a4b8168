package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// Outcome is the result of one process run. Err is set only when the
// process could not be started.
type Outcome struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Err      error
	Duration time.Duration
}

// Success reports a started process that exited with status 0.
func (o Outcome) Success() bool {
	return o.Err == nil && o.ExitCode == 0
}

// Executor launches a command with arguments and waits for it to exit.
type Executor interface {
	Run(ctx context.Context, command string, args []string) Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, command string, args []string) Outcome

func (f ExecutorFunc) Run(ctx context.Context, command string, args []string) Outcome {
	return f(ctx, command, args)
}

// waitDelay bounds how long output pipes are drained after a kill.
const waitDelay = 500 * time.Millisecond

// ExecExecutor runs commands as child processes.
type ExecExecutor struct {
	timeout time.Duration
	env     []string
	dir     string
}

type ExecOption func(*ExecExecutor)

// WithExecTimeout kills processes running longer than d. Zero disables it.
func WithExecTimeout(d time.Duration) ExecOption {
	return func(e *ExecExecutor) {
		e.timeout = d
	}
}

// WithEnv appends variables to the inherited environment.
func WithEnv(env ...string) ExecOption {
	return func(e *ExecExecutor) {
		e.env = append(e.env, env...)
	}
}

func WithDir(dir string) ExecOption {
	return func(e *ExecExecutor) {
		e.dir = dir
	}
}

func NewExecExecutor(opts ...ExecOption) *ExecExecutor {
	e := &ExecExecutor{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

func (e *ExecExecutor) Run(ctx context.Context, command string, args []string) Outcome {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Dir = e.dir
	cmd.WaitDelay = waitDelay
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}

	start := time.Now()
	err := cmd.Run()
	out := Outcome{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		// -1 when killed by a signal
		out.ExitCode = exitErr.ExitCode()
		if len(out.Stderr) == 0 && ctx.Err() != nil {
			out.Stderr = []byte(ctx.Err().Error())
		}
	default:
		out.Err = err
		out.ExitCode = -1
	}
	return out
}
