package operations

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultOwner marks states advanced by the coordinator itself.
const DefaultOwner = "tedge"

// StateSpec declares who advances a workflow state and how.
type StateSpec struct {
	Owner  string   `json:"owner" yaml:"owner"`
	Script string   `json:"script,omitempty" yaml:"script,omitempty"`
	Next   []string `json:"next,omitempty" yaml:"next,omitempty"`
}

// Internal reports whether the coordinator owns the state.
func (s StateSpec) Internal() bool {
	return s.Owner == "" || s.Owner == DefaultOwner
}

// Workflow binds a filter to the states of the operations it selects.
type Workflow struct {
	Name   string               `json:"name,omitempty" yaml:"name,omitempty"`
	Filter Filter               `json:"filter" yaml:"filter"`
	States map[string]StateSpec `json:"states" yaml:"states"`
}

// State looks up a state, applying the default owner.
func (w Workflow) State(status string) (StateSpec, bool) {
	spec, ok := w.States[status]
	if !ok {
		return StateSpec{}, false
	}
	if spec.Owner == "" {
		spec.Owner = DefaultOwner
	}
	return spec, true
}

// StateNames lists the declared states in lexical order.
func (w Workflow) StateNames() []string {
	names := make([]string, 0, len(w.States))
	for name := range w.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (w Workflow) Validate() error {
	var problems []string

	if err := w.Filter.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(w.States) == 0 {
		problems = append(problems, "no states declared")
	}
	for _, name := range w.StateNames() {
		spec := w.States[name]
		if strings.TrimSpace(name) == "" {
			problems = append(problems, "empty state name")
			continue
		}
		if strings.TrimSpace(spec.Owner) != spec.Owner {
			problems = append(problems, fmt.Sprintf("state %s: owner has surrounding spaces", name))
		}
		for _, next := range spec.Next {
			if strings.TrimSpace(next) == "" {
				problems = append(problems, fmt.Sprintf("state %s: empty next state", name))
			}
		}
	}

	if len(problems) > 0 {
		return NewError(ErrInvalidWorkflow, "workflow "+w.label()+": "+strings.Join(problems, "; "), nil, map[string]any{
			"workflow": w.label(),
			"filter":   w.Filter.String(),
		})
	}
	return nil
}

func (w Workflow) label() string {
	if w.Name != "" {
		return w.Name
	}
	return w.Filter.String()
}

// workflowFromDocument builds a workflow from a decoded flattened document:
// filter fields at the top level, one table per state.
func workflowFromDocument(name string, doc map[string]any) (Workflow, error) {
	wf := Workflow{Name: name, States: map[string]StateSpec{}}

	for key, raw := range doc {
		switch key {
		case "subsystem", "operation", "request":
			value, ok := raw.(string)
			if !ok {
				return wf, invalidDocument(name, fmt.Sprintf("%s must be a string", key))
			}
			switch key {
			case "subsystem":
				wf.Filter.Subsystem = value
			case "operation":
				wf.Filter.Operation = value
			case "request":
				wf.Filter.Request = value
			}
		default:
			table, ok := asTable(raw)
			if !ok {
				return wf, invalidDocument(name, fmt.Sprintf("state %s must be a table", key))
			}
			spec, err := stateFromTable(name, key, table)
			if err != nil {
				return wf, err
			}
			wf.States[key] = spec
		}
	}

	return wf, wf.Validate()
}

func stateFromTable(name, state string, table map[string]any) (StateSpec, error) {
	spec := StateSpec{Owner: DefaultOwner}
	for field, raw := range table {
		switch field {
		case "owner":
			owner, ok := raw.(string)
			if !ok {
				return spec, invalidDocument(name, fmt.Sprintf("state %s: owner must be a string", state))
			}
			spec.Owner = owner
		case "script":
			script, ok := raw.(string)
			if !ok {
				return spec, invalidDocument(name, fmt.Sprintf("state %s: script must be a string", state))
			}
			spec.Script = script
		case "next":
			items, ok := raw.([]any)
			if !ok {
				return spec, invalidDocument(name, fmt.Sprintf("state %s: next must be a list", state))
			}
			for _, item := range items {
				next, ok := item.(string)
				if !ok {
					return spec, invalidDocument(name, fmt.Sprintf("state %s: next entries must be strings", state))
				}
				spec.Next = append(spec.Next, next)
			}
		default:
			return spec, invalidDocument(name, fmt.Sprintf("state %s: unknown field %s", state, field))
		}
	}
	return spec, nil
}

func asTable(raw any) (map[string]any, bool) {
	switch typed := raw.(type) {
	case map[string]any:
		return typed, true
	case map[any]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = v
		}
		return out, true
	}
	return nil, false
}

func invalidDocument(name, problem string) error {
	return NewError(ErrInvalidWorkflow, "workflow "+name+": "+problem, nil, map[string]any{"workflow": name})
}
