package configuration

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"

	operations "github.com/goliatone/go-operations"
)

const (
	eventSchedule = "schedule"
	eventDownload = "download"
	eventFetched  = "fetched"
	eventInstall  = "install"
	eventSucceed  = "succeed"
	eventFail     = "fail"
)

var transitionEvents = fsm.Events{
	{Name: eventSchedule, Src: []string{StatusInit}, Dst: StatusScheduled},
	{Name: eventDownload, Src: []string{StatusScheduled}, Dst: StatusDownloading},
	{Name: eventFetched, Src: []string{StatusDownloading}, Dst: StatusDownloaded},
	{Name: eventInstall, Src: []string{StatusDownloaded}, Dst: StatusInstalling},
	{Name: eventSucceed, Src: []string{StatusInstalling}, Dst: StatusSuccessful},
	{Name: eventFail, Src: []string{StatusInit, StatusScheduled, StatusDownloading, StatusDownloaded, StatusInstalling}, Dst: StatusFailed},
}

var eventByDst = func() map[string]string {
	out := make(map[string]string, len(transitionEvents))
	for _, e := range transitionEvents {
		out[e.Dst] = e.Name
	}
	return out
}()

// Transitions tracks the lifecycle of each configuration instance and
// rejects snapshots that cannot follow the last one seen. Finished
// instances are remembered until pruned so late echoes of earlier states
// are still rejected. Instances that stall before finishing are pruned
// the same way once their last change is old enough.
type Transitions struct {
	mu       sync.Mutex
	machines map[string]*tracked
	now      func() time.Time
}

type tracked struct {
	machine  *fsm.FSM
	changed  time.Time
	finished bool
}

func NewTransitions() *Transitions {
	return &Transitions{
		machines: make(map[string]*tracked),
		now:      time.Now,
	}
}

// Accept checks an inbound snapshot. An instance seen for the first time
// is accepted in any state so retained work resumes after a restart. A
// finished instance only accepts a fresh init.
func (t *Transitions) Accept(ctx context.Context, s State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := Key(s).String()
	tr, ok := t.machines[id]
	switch {
	case !ok, tr.finished && s.Status() == StatusInit:
		tr = &tracked{machine: fsm.NewFSM(s.Status(), transitionEvents, fsm.Callbacks{})}
		t.machines[id] = tr
	case tr.machine.Current() == s.Status():
	default:
		if err := t.fire(ctx, tr.machine, s); err != nil {
			return err
		}
	}
	t.touch(tr, s)
	return nil
}

// Advance records a transition produced locally.
func (t *Transitions) Advance(ctx context.Context, s State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := Key(s).String()
	tr, ok := t.machines[id]
	if !ok {
		return operations.NewError(operations.ErrIllegalTransition, "no tracked operation "+id, nil, map[string]any{
			"key":    id,
			"status": s.Status(),
		})
	}
	if tr.machine.Current() != s.Status() {
		if err := t.fire(ctx, tr.machine, s); err != nil {
			return err
		}
	}
	t.touch(tr, s)
	return nil
}

// Current returns the last accepted status of key.
func (t *Transitions) Current(key operations.OperationKey) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.machines[key.String()]
	if !ok {
		return "", false
	}
	return tr.machine.Current(), true
}

// Prune forgets instances whose last change happened before cutoff,
// finished or not.
func (t *Transitions) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, tr := range t.machines {
		if tr.changed.Before(cutoff) {
			delete(t.machines, id)
			removed++
		}
	}
	return removed
}

func (t *Transitions) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.machines)
}

func (t *Transitions) fire(ctx context.Context, m *fsm.FSM, s State) error {
	from := m.Current()
	event, ok := eventByDst[s.Status()]
	if !ok || !m.Can(event) {
		return illegal(Key(s), from, s.Status(), nil)
	}
	if err := m.Event(ctx, event); err != nil {
		return illegal(Key(s), from, s.Status(), err)
	}
	return nil
}

func (t *Transitions) touch(tr *tracked, s State) {
	if tr.finished && Terminal(s) {
		return
	}
	tr.changed = t.now()
	tr.finished = Terminal(s)
}

func illegal(key operations.OperationKey, from, to string, source error) error {
	return operations.NewError(operations.ErrIllegalTransition, "cannot move "+key.String()+" from "+from+" to "+to, source, map[string]any{
		"key":  key.String(),
		"from": from,
		"to":   to,
	})
}
