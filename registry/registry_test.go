package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	operations "github.com/goliatone/go-operations"
)

const configTopic = "tedge/operations/main/configuration/update/1"

func configWorkflow(states map[string]operations.StateSpec) operations.Workflow {
	return operations.Workflow{
		Name:   "configuration",
		Filter: operations.Filter{Operation: "configuration", Request: "update"},
		States: states,
	}
}

func TestResolveEmptyStatusIsDone(t *testing.T) {
	r := New("tedge")
	require.NoError(t, r.RegisterWorkflow(configWorkflow(map[string]operations.StateSpec{"init": {}})))

	assert.Equal(t, Done, r.Resolve(configTopic, "").Kind)
	assert.Equal(t, Done, New("tedge").Resolve("not/even/a/topic", "").Kind)
}

func TestResolveOrdering(t *testing.T) {
	handler := make(chan operations.Message, 1)

	r := New("tedge")
	require.NoError(t, r.RegisterWorkflow(configWorkflow(map[string]operations.StateSpec{
		"init":       {Script: "/bin/check"},
		"successful": {Owner: "mapper"},
		"scheduled":  {},
	})))
	require.NoError(t, r.Register(configWorkflow(map[string]operations.StateSpec{
		"init":        {},
		"scheduled":   {},
		"downloading": {},
		"successful":  {},
	}), handler))

	init := r.Resolve(configTopic, "init")
	assert.Equal(t, RunScript, init.Kind)
	assert.Equal(t, "/bin/check", init.Script)

	successful := r.Resolve(configTopic, "successful")
	assert.Equal(t, External, successful.Kind)
	assert.Equal(t, "mapper", successful.Owner)

	// the first entry owns "scheduled" but has no script or handler
	scheduled := r.Resolve(configTopic, "scheduled")
	assert.Equal(t, Forward, scheduled.Kind)
	assert.Equal(t, (chan<- operations.Message)(handler), scheduled.Handler)

	downloading := r.Resolve(configTopic, "downloading")
	assert.Equal(t, Forward, downloading.Kind)

	assert.Equal(t, Unknown, r.Resolve(configTopic, "installing").Kind)
}

func TestResolvePrefersLaterScriptOverUnresolvableEntry(t *testing.T) {
	r := New("tedge")
	require.NoError(t, r.RegisterWorkflow(operations.Workflow{
		Name:   "declared",
		Filter: operations.Filter{Operation: "configuration", Request: "update"},
		States: map[string]operations.StateSpec{"init": {}},
	}))
	require.NoError(t, r.RegisterWorkflow(operations.Workflow{
		Name:   "scripted",
		Filter: operations.Filter{Operation: "configuration"},
		States: map[string]operations.StateSpec{"init": {Script: "/bin/check"}},
	}))

	action := r.Resolve(configTopic, "init")
	assert.Equal(t, RunScript, action.Kind)
	assert.Equal(t, "/bin/check", action.Script)
	assert.Equal(t, "scripted", action.Workflow)
}

func TestResolveIsDeterministic(t *testing.T) {
	handler := make(chan operations.Message, 1)
	r := New("tedge")
	require.NoError(t, r.RegisterWorkflow(configWorkflow(map[string]operations.StateSpec{
		"init": {Script: "/bin/check"},
	})))
	require.NoError(t, r.Register(configWorkflow(map[string]operations.StateSpec{
		"scheduled": {},
	}), handler))
	require.NoError(t, r.Initialize())

	for status, kind := range map[string]ActionKind{
		"scheduled":  Forward,
		"init":       RunScript,
		"installing": Unknown,
	} {
		first := r.Resolve(configTopic, status)
		second := r.Resolve(configTopic, status)
		assert.Equal(t, kind, first.Kind, status)
		assert.Equal(t, first, second, status)
	}
}

func TestResolveSkipsNonMatchingFilters(t *testing.T) {
	handler := make(chan operations.Message, 1)

	r := New("tedge")
	require.NoError(t, r.Register(operations.Workflow{
		Filter: operations.Filter{Operation: "software"},
		States: map[string]operations.StateSpec{"init": {}},
	}, handler))

	assert.Equal(t, Unknown, r.Resolve(configTopic, "init").Kind)
	assert.Equal(t, Forward, r.Resolve("tedge/operations/main/software/install/3", "init").Kind)
	assert.Equal(t, Unknown, r.Resolve("other/operations/main/software/install/3", "init").Kind)
}

func TestResolveExternalBeatsScript(t *testing.T) {
	r := New("tedge")
	require.NoError(t, r.RegisterWorkflow(configWorkflow(map[string]operations.StateSpec{
		"init": {Owner: "remote", Script: "/bin/never"},
	})))

	action := r.Resolve(configTopic, "init")
	assert.Equal(t, External, action.Kind)
	assert.Equal(t, "remote", action.Owner)
	assert.Equal(t, "configuration", action.Workflow)
}

func TestRegisterReportsInvalidWorkflows(t *testing.T) {
	r := New("tedge")

	err := r.RegisterWorkflow(operations.Workflow{
		Filter: operations.Filter{Operation: "a/b"},
		States: map[string]operations.StateSpec{"init": {}},
	})
	require.Error(t, err)

	err = r.RegisterWorkflow(operations.Workflow{Filter: operations.Filter{Operation: "x"}})
	require.Error(t, err)
	assert.Equal(t, operations.ErrCodeInvalidWorkflow, operations.ErrorCode(err))

	assert.Empty(t, r.Entries())
}

func TestRegisterAfterInitializeFails(t *testing.T) {
	r := New("")
	require.NoError(t, r.RegisterWorkflow(configWorkflow(map[string]operations.StateSpec{"init": {}})))
	require.NoError(t, r.Initialize())
	assert.True(t, r.Initialized())

	err := r.RegisterWorkflow(configWorkflow(map[string]operations.StateSpec{"scheduled": {}}))
	require.Error(t, err)
	assert.Equal(t, operations.ErrCodeRegistryFrozen, operations.ErrorCode(err))

	err = r.Initialize()
	assert.Equal(t, operations.ErrCodeRegistryFrozen, operations.ErrorCode(err))

	// a declarative tedge state without script or handler resolves to nothing
	assert.Equal(t, Unknown, r.Resolve(configTopic, "init").Kind)
}

func TestEntries(t *testing.T) {
	r := New("tedge")
	require.NoError(t, r.RegisterWorkflow(configWorkflow(map[string]operations.StateSpec{
		"init": {Script: "/bin/check"},
	})))
	require.NoError(t, r.Register(operations.Workflow{
		Filter: operations.Filter{},
		States: map[string]operations.StateSpec{"init": {Owner: "mapper"}},
	}, make(chan operations.Message)))

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "tedge/operations/+/configuration/update/+", entries[0].Pattern)
	assert.Equal(t, "tedge", entries[0].States["init"].Owner)
	assert.False(t, entries[0].HasHandler)
	assert.Equal(t, "tedge/operations/+/+/+/+", entries[1].Pattern)
	assert.True(t, entries[1].HasHandler)

	assert.Equal(t, []string{
		"tedge/operations/+/configuration/update/+",
		"tedge/operations/+/+/+/+",
	}, r.Patterns())
}

func TestActionKindString(t *testing.T) {
	assert.Equal(t, "forward", Forward.String())
	assert.Equal(t, "script", RunScript.String())
	assert.Equal(t, "invalid", ActionKind(99).String())
}
