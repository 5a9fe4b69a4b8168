package cron

import (
	"sync"
	"time"
)

// Status reports where a scheduled job stands.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusIdle      Status = "idle"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusStopped:
		return true
	}
	return false
}

// Handle controls one scheduled job.
type Handle interface {
	Name() string
	Cancel()
	Status() Status
	Err() error
	LastRun() time.Time
	Done() <-chan struct{}
}

type handle struct {
	scheduler *Scheduler
	id        int64
	name      string
	entryID   int
	done      chan struct{}

	mu      sync.RWMutex
	status  Status
	err     error
	lastRun time.Time
	once    sync.Once
	closed  sync.Once
}

func (h *handle) Name() string { return h.name }

func (h *handle) Cancel() {
	h.once.Do(func() {
		if h.scheduler != nil {
			h.scheduler.remove(h.id)
		}
		h.finish(StatusCanceled, nil)
	})
}

func (h *handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

func (h *handle) LastRun() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastRun
}

func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) started(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = StatusRunning
	h.lastRun = at
}

func (h *handle) set(status Status, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Terminal() {
		return
	}
	h.status = status
	h.err = err
}

func (h *handle) finish(status Status, err error) {
	h.set(status, err)
	h.closed.Do(func() { close(h.done) })
}
