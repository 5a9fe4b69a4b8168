package router_test

import (
	"testing"

	"github.com/goliatone/go-operations/router"
	"github.com/stretchr/testify/assert"
)

func TestMakeRouteMatcher_MQTTStyle(t *testing.T) {
	mqttMatcher := router.MakeRouteMatcher(router.MakeRouteMatcherOptions{
		Separator:        "/",
		OnlyFinalSegment: true,
	})

	testCases := []struct {
		name    string
		pattern string
		topic   string
		want    bool
	}{
		{"Exact match", "a/b/c", "a/b/c", true},
		{"Exact mismatch", "a/b/c", "a/b/d", false},
		{"Exact match with empty segments", "a//c", "a//c", true},

		// single level wildcard "+"
		{"Single wildcard middle", "a/+/c", "a/b/c", true},
		{"Single wildcard start", "+/b/c", "a/b/c", true},
		{"Single wildcard end", "a/b/+", "a/b/c", true},
		{"Multiple single wildcards", "+/+/+", "a/b/c", true},
		{"Single wildcard no match", "a/+/c", "a/c", false},
		{"Single wildcard too many topic segments", "a/+/c", "a/b/c/d", false},
		{"Single wildcard too few topic segments", "a/+/c/d", "a/b/c", false},

		// multi level wildcard #
		{"Multi wildcard matches everything", "#", "a/b/c", true},
		{"Multi wildcard at end", "a/#", "a/b/c", true},
		{"Multi wildcard matches parent", "a/b/#", "a/b", true},
		{"Multi wildcard matches zero levels", "a/#", "a", true},
		{"Multi wildcard must be at the end", "a/#/c", "a/b/c", false},
		{"Topic longer than multi wildcard", "a/b", "a/b/#", false},

		{"Empty pattern and topic", "", "", true},
		{"Empty topic", "a/b", "", false},
		{"Empty pattern", "", "a/b", false},
		{"Pattern is just single wildcard no match", "+", "a/b", false},

		// operation topics
		{"Operation filter", "tedge/operations/+/configuration/update/+", "tedge/operations/main/configuration/update/1", true},
		{"Operation filter wrong request", "tedge/operations/+/configuration/update/+", "tedge/operations/main/configuration/get/1", false},
		{"Operation catch all", "tedge/operations/+/+/+/+", "tedge/operations/a/b/c/d", true},
		{"Operation catch all short topic", "tedge/operations/+/+/+/+", "tedge/operations/a/b/c", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := mqttMatcher(tc.pattern, tc.topic)
			if got != tc.want {
				t.Errorf("mqttMatcher(pattern: %q, topic: %q) = %v; want %v", tc.pattern, tc.topic, got, tc.want)
			}
		})
	}
}

func TestMakeRouteMatcher_HashAnywhere(t *testing.T) {
	matcher := router.MakeRouteMatcher(router.MakeRouteMatcherOptions{
		Separator: ".",
	})

	assert.True(t, matcher("a.#.c", "a.b.c"))
	assert.True(t, matcher("a.#.d", "a.b.c.d"))
	assert.True(t, matcher("a.#.c", "a.c"))
	assert.False(t, matcher("a.#.d", "a.b.c.e"))
	assert.True(t, matcher("a.+.#", "a.b"))
}

func TestValidatePattern(t *testing.T) {
	assert.NoError(t, router.ValidatePattern("tedge/operations/+/+/+/+"))
	assert.NoError(t, router.ValidatePattern("a/#"))
	assert.NoError(t, router.ValidatePattern("#"))
	assert.Error(t, router.ValidatePattern(""))
	assert.Error(t, router.ValidatePattern("a/#/c"))
	assert.Error(t, router.ValidatePattern("a/b+/c"))
	assert.Error(t, router.ValidatePattern("a/#b"))
}

func TestIsWildcard(t *testing.T) {
	assert.True(t, router.IsWildcard("a/+/c"))
	assert.True(t, router.IsWildcard("a/#"))
	assert.False(t, router.IsWildcard("a/b/c"))
}
