package registry

import (
	operations "github.com/goliatone/go-operations"
)

// ActionKind enumerates what the engine does with a resolved snapshot.
type ActionKind int

const (
	// Done means the operation was cleared; nothing left to do.
	Done ActionKind = iota
	// Unknown means no workflow declares the state.
	Unknown
	// External means another participant owns the state.
	External
	// RunScript means the state is advanced by a local script.
	RunScript
	// Forward means an internal handler advances the state.
	Forward
)

func (k ActionKind) String() string {
	switch k {
	case Done:
		return "done"
	case Unknown:
		return "unknown"
	case External:
		return "external"
	case RunScript:
		return "script"
	case Forward:
		return "forward"
	}
	return "invalid"
}

// Action is the outcome of resolving a snapshot. Owner is set for External,
// Script for RunScript and Handler for Forward.
type Action struct {
	Kind     ActionKind
	Owner    string
	Script   string
	Handler  chan<- operations.Message
	Workflow string
}

func DoneAction() Action    { return Action{Kind: Done} }
func UnknownAction() Action { return Action{Kind: Unknown} }

func ExternalAction(owner string) Action {
	return Action{Kind: External, Owner: owner}
}

func ScriptAction(script string) Action {
	return Action{Kind: RunScript, Script: script}
}

func ForwardAction(handler chan<- operations.Message) Action {
	return Action{Kind: Forward, Handler: handler}
}
