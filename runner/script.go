package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	operations "github.com/goliatone/go-operations"
)

// Script advances operations by running the script declared for a state.
type Script struct {
	executor Executor
	logger   operations.Logger
	observe  func(script string, out Outcome)
}

type ScriptOption func(*Script)

func WithScriptLogger(l operations.Logger) ScriptOption {
	return func(s *Script) {
		s.logger = l
	}
}

// WithOutcomeObserver is called after every run, eg. to record metrics.
func WithOutcomeObserver(fn func(script string, out Outcome)) ScriptOption {
	return func(s *Script) {
		s.observe = fn
	}
}

func NewScript(executor Executor, opts ...ScriptOption) *Script {
	if executor == nil {
		executor = NewExecExecutor()
	}
	s := &Script{executor: executor}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = operations.NormalizeLogger(s.logger)
	return s
}

// Step runs script with the JSON payload of msg as its last argument and
// returns the next snapshot of the same operation. Every failure mode is
// reported as a "failed" snapshot.
func (s *Script) Step(ctx context.Context, script string, msg operations.Message) operations.Message {
	argv, err := SplitCommand(script)
	if err != nil {
		return msg.FailedWith(fmt.Sprintf("Failed to launch %s: %v", script, err))
	}

	payload, err := msg.Payload()
	if err != nil {
		return msg.FailedWith(fmt.Sprintf("Failed to launch %s: %v", script, err))
	}

	args := append(argv[1:], string(payload))
	out := s.executor.Run(ctx, argv[0], args)
	if s.observe != nil {
		s.observe(script, out)
	}

	logger := operations.WithLoggerFields(s.logger.WithContext(ctx), map[string]any{
		"script":   script,
		"instance": msg.Key.Instance,
		"exit":     out.ExitCode,
	})

	next := Classify(script, msg, out)
	if next.Status == operations.StatusFailed {
		reason, _ := next.String(operations.ReasonField)
		logger.Warn("script step failed: %s", reason)
	} else {
		logger.Debug("script moved operation to %s", next.Status)
	}
	return next
}

// Classify maps a process outcome to the next snapshot of msg.
func Classify(script string, msg operations.Message, out Outcome) operations.Message {
	if out.Err != nil {
		return msg.FailedWith(fmt.Sprintf("Failed to launch %s: %v", script, out.Err))
	}

	if out.ExitCode != 0 {
		if !utf8.Valid(out.Stderr) {
			return msg.FailedWith(fmt.Sprintf("Script %s failed and returned non UTF-8 stderr", script))
		}
		return msg.FailedWith(fmt.Sprintf("Script %s failed with: %s", script, strings.TrimSpace(string(out.Stderr))))
	}

	if !utf8.Valid(out.Stdout) {
		return msg.FailedWith(fmt.Sprintf("Script %s returned non UTF-8 stdout", script))
	}

	var obj map[string]any
	if err := json.Unmarshal(out.Stdout, &obj); err != nil {
		return msg.FailedWith(fmt.Sprintf("Script %s returned non JSON stdout: %v", script, err))
	}
	if obj == nil {
		return msg.FailedWith(fmt.Sprintf("Script %s returned non JSON stdout: not an object", script))
	}

	next, err := msg.WithJSON(obj)
	if err != nil || next.Cleared() {
		return msg.FailedWith(fmt.Sprintf("Script %s returned a JSON object without status", script))
	}
	return next
}

// SplitCommand splits a command line into words. Single quotes keep their
// content verbatim; double quotes and backslashes follow shell rules.
func SplitCommand(line string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case quote == '"':
			switch r {
			case '"':
				quote = 0
			case '\\':
				escaped = true
			default:
				current.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inWord = true
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 || escaped {
		return nil, operations.NewError(operations.ErrScriptInvalid, "unterminated quote or escape", nil, map[string]any{"script": line})
	}
	if inWord {
		words = append(words, current.String())
	}
	if len(words) == 0 {
		return nil, operations.NewError(operations.ErrScriptInvalid, "empty command", nil, map[string]any{"script": line})
	}
	return words, nil
}
