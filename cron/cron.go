package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/runner"
)

// Func is the unit of scheduled work.
type Func func(ctx context.Context) error

// Scheduler runs housekeeping jobs on cron expressions.
type Scheduler struct {
	mu           sync.Mutex
	cron         *rcron.Cron
	location     *time.Location
	parser       Parser
	logger       operations.Logger
	errorHandler func(error)

	ctx    context.Context
	cancel context.CancelFunc

	nextID  int64
	handles map[int64]*handle
}

func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		parser:   DefaultParser,
		handles:  make(map[int64]*handle),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = operations.NormalizeLogger(s.logger)
	if s.errorHandler == nil {
		s.errorHandler = func(err error) {
			s.logger.Error("scheduled job failed: %v", err)
		}
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = rcron.New(s.build()...)
	return s
}

// Schedule registers fn to run on job.Expression. Each run gets the
// job timeout and retries.
func (s *Scheduler) Schedule(job Job, fn Func) (Handle, error) {
	if job.Expression == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("job %s has no function", job.Name)
	}

	h := s.newHandle(job.Name)
	run := s.runnable(job, fn)

	entryID, err := s.cron.AddFunc(job.Expression, func() {
		if h.Status().Terminal() {
			return
		}
		h.started(time.Now())
		if err := run(); err != nil {
			h.set(StatusFailed, err)
			s.errorHandler(fmt.Errorf("job %s: %w", job.Name, err))
			return
		}
		h.set(StatusIdle, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add job %s: %w", job.Name, err)
	}

	h.entryID = int(entryID)
	s.store(h)
	return h, nil
}

// RunNow runs fn once in the caller's goroutine with the job settings.
func (s *Scheduler) RunNow(job Job, fn Func) error {
	return s.runnable(job, fn)()
}

func (s *Scheduler) Start(context.Context) error {
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for running jobs, or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	stopped := s.cron.Stop()

	s.mu.Lock()
	handles := make([]*handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.handles = make(map[int64]*handle)
	s.mu.Unlock()

	for _, h := range handles {
		h.finish(StatusStopped, nil)
	}

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len is the number of live jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *Scheduler) runnable(job Job, fn Func) func() error {
	h := runner.NewHandler(
		runner.WithLogger(s.logger),
		runner.WithTimeout(job.Timeout),
		runner.WithMaxRetries(job.MaxRetries),
	)
	return func() error {
		return h.Run(s.ctx, func(ctx context.Context) error {
			return fn(ctx)
		})
	}
}

func (s *Scheduler) newHandle(name string) *handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if name == "" {
		name = fmt.Sprintf("job-%d", s.nextID)
	}
	return &handle{
		scheduler: s,
		id:        s.nextID,
		name:      name,
		status:    StatusScheduled,
		done:      make(chan struct{}),
	}
}

func (s *Scheduler) store(h *handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[h.id] = h
}

func (s *Scheduler) remove(id int64) {
	s.mu.Lock()
	h := s.handles[id]
	delete(s.handles, id)
	s.mu.Unlock()

	if h != nil && h.entryID > 0 {
		s.cron.Remove(rcron.EntryID(h.entryID))
	}
}

func (s *Scheduler) build() []rcron.Option {
	opts := []rcron.Option{
		rcron.WithLogger(&loggerAdapter{logger: s.logger}),
		rcron.WithChain(rcron.Recover(&errorHandlerAdapter{handler: s.errorHandler})),
	}
	if s.location != nil {
		opts = append(opts, rcron.WithLocation(s.location))
	}

	switch s.parser {
	case StandardParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	case SecondsParser:
		opts = append(opts, rcron.WithParser(rcron.NewParser(
			rcron.Second|rcron.Minute|rcron.Hour|rcron.Dom|rcron.Month|rcron.Dow|rcron.Descriptor,
		)))
	}
	return opts
}
