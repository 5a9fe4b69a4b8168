package cron

import (
	"fmt"
	"time"

	operations "github.com/goliatone/go-operations"
)

// Parser selects the cron expression dialect.
type Parser int

const (
	DefaultParser Parser = iota
	StandardParser
	SecondsParser
)

type Option func(*Scheduler)

func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.location = loc
	}
}

func WithLogger(logger operations.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithErrorHandler receives every failed run and recovered job panic.
func WithErrorHandler(handler func(error)) Option {
	return func(s *Scheduler) {
		s.errorHandler = handler
	}
}

func WithParser(p Parser) Option {
	return func(s *Scheduler) {
		s.parser = p
	}
}

// Job describes how a scheduled function runs.
type Job struct {
	Name       string
	Expression string
	Timeout    time.Duration
	MaxRetries int
}

// loggerAdapter routes robfig/cron logs to our logger.
type loggerAdapter struct {
	logger operations.Logger
}

func (l *loggerAdapter) Info(msg string, args ...any) {
	l.logger.Debug("cron: %s %v", msg, args)
}

func (l *loggerAdapter) Error(err error, msg string, args ...any) {
	l.logger.Error("cron: %s: %v %v", msg, err, args)
}

// errorHandlerAdapter lets the recover chain report panics to the error handler.
type errorHandlerAdapter struct {
	handler func(error)
}

func (e *errorHandlerAdapter) Info(string, ...any) {}

func (e *errorHandlerAdapter) Error(err error, msg string, args ...any) {
	if e.handler == nil {
		return
	}
	if err == nil {
		err = fmt.Errorf(msg, args...)
	}
	e.handler(err)
}
