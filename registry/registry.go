package registry

import (
	"sync"

	operations "github.com/goliatone/go-operations"
	"github.com/goliatone/go-operations/router"
)

// Registry keeps workflows in registration order. Earlier registrations
// take priority when resolving a state.
type Registry struct {
	mu          sync.RWMutex
	root        string
	mux         *router.Mux
	initialized bool
}

type entry struct {
	workflow operations.Workflow
	handler  chan<- operations.Message
}

// EntryInfo describes a registered workflow.
type EntryInfo struct {
	Pattern    string                          `json:"pattern"`
	Name       string                          `json:"name,omitempty"`
	States     map[string]operations.StateSpec `json:"states"`
	HasHandler bool                            `json:"internal_handler"`
}

// New creates an empty registry for topics under root.
func New(root string) *Registry {
	if root == "" {
		root = operations.DefaultRoot
	}
	return &Registry{
		root: root,
		mux: router.NewMux(router.WithMatcher(router.MakeRouteMatcher(router.MakeRouteMatcherOptions{
			Separator:        "/",
			OnlyFinalSegment: true,
		}))),
	}
}

func (r *Registry) Root() string {
	return r.root
}

// RegisterWorkflow adds a declarative workflow without an internal handler.
func (r *Registry) RegisterWorkflow(w operations.Workflow) error {
	return r.Register(w, nil)
}

// Register adds a workflow whose tedge-owned states without a script are
// forwarded to handler. A nil handler registers a declarative workflow.
func (r *Registry) Register(w operations.Workflow, handler chan<- operations.Message) error {
	if err := w.Validate(); err != nil {
		return err
	}
	pattern, err := w.Filter.Pattern(r.root)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return operations.NewError(operations.ErrRegistryFrozen,
			"cannot register workflows after registry has been initialized", nil,
			map[string]any{"pattern": pattern})
	}

	if _, err := r.mux.Add(pattern, entry{workflow: w, handler: handler}); err != nil {
		return operations.NewError(operations.ErrInvalidFilter, err.Error(), err, map[string]any{"pattern": pattern})
	}
	return nil
}

// Initialize freezes the registry.
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return operations.NewError(operations.ErrRegistryFrozen, "", nil, nil)
	}
	r.initialized = true
	return nil
}

func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// Resolve decides who advances the operation published on topic in status.
func (r *Registry) Resolve(topic, status string) Action {
	if status == "" {
		return DoneAction()
	}

	for _, e := range r.mux.Get(topic) {
		en := e.Handler.(entry)
		spec, ok := en.workflow.State(status)
		if !ok {
			continue
		}
		var action Action
		switch {
		case spec.Owner != operations.DefaultOwner:
			action = ExternalAction(spec.Owner)
		case spec.Script != "":
			action = ScriptAction(spec.Script)
		case en.handler != nil:
			action = ForwardAction(en.handler)
		default:
			continue
		}
		action.Workflow = en.workflow.Name
		return action
	}

	return UnknownAction()
}

// Entries lists the registered workflows in priority order.
func (r *Registry) Entries() []EntryInfo {
	entries := r.mux.Entries()
	out := make([]EntryInfo, 0, len(entries))
	for _, e := range entries {
		en := e.Handler.(entry)
		states := make(map[string]operations.StateSpec, len(en.workflow.States))
		for _, name := range en.workflow.StateNames() {
			states[name], _ = en.workflow.State(name)
		}
		out = append(out, EntryInfo{
			Pattern:    e.Pattern(),
			Name:       en.workflow.Name,
			States:     states,
			HasHandler: en.handler != nil,
		})
	}
	return out
}

// Patterns lists the distinct topic patterns in priority order.
func (r *Registry) Patterns() []string {
	return r.mux.Patterns()
}
