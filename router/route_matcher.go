package router

import (
	"fmt"
	"strings"
)

// MakeRouteMatcherOptions configures the route matching behavior
type MakeRouteMatcherOptions struct {
	Separator        string // separator for splitting pattern/topic (default: "/")
	OnlyFinalSegment bool   // if true, # only matches as the final segment
}

// MakeRouteMatcher creates a pattern matching function with MQTT wildcard
// semantics: "+" matches one segment and "#" matches the remaining ones.
// The returned function has the signature func(pattern, topic string) bool.
func MakeRouteMatcher(opts ...MakeRouteMatcherOptions) func(pattern, topic string) bool {
	separator := "/"
	onlyFinalSegment := true

	if len(opts) > 0 {
		if opts[0].Separator != "" {
			separator = opts[0].Separator
		}
		onlyFinalSegment = opts[0].OnlyFinalSegment
	}

	return func(pattern, topic string) bool {
		if pattern == topic {
			return true
		}
		return matchSegments(
			strings.Split(pattern, separator),
			strings.Split(topic, separator),
			onlyFinalSegment,
		)
	}
}

func matchSegments(patternParts, topicParts []string, onlyFinal bool) bool {
	pLen, tLen := len(patternParts), len(topicParts)
	pi, ti := 0, 0

	for pi < pLen && ti < tLen {
		pPart := patternParts[pi]
		if pPart == "#" {
			if pi == pLen-1 {
				return true
			}
			if onlyFinal {
				return false
			}
			// "#" in the middle: try every split of the remaining topic
			for skip := ti; skip <= tLen; skip++ {
				if matchSegments(patternParts[pi+1:], topicParts[skip:], onlyFinal) {
					return true
				}
			}
			return false
		}
		if pPart != topicParts[ti] && pPart != "+" {
			return false
		}
		pi++
		ti++
	}

	if pi == pLen && ti == tLen {
		return true
	}
	// "a/b/#" also matches the parent "a/b"
	if pi == pLen-1 && patternParts[pi] == "#" {
		return ti == tLen
	}
	return false
}

// ValidatePattern checks MQTT wildcard placement: wildcards must fill a
// whole segment and "#" may only appear last.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	parts := strings.Split(pattern, "/")
	for i, part := range parts {
		if strings.ContainsAny(part, "+#") && len(part) > 1 {
			return fmt.Errorf("wildcard must occupy a whole segment in %q", pattern)
		}
		if part == "#" && i != len(parts)-1 {
			return fmt.Errorf("# must be the last segment in %q", pattern)
		}
	}
	return nil
}

// IsWildcard reports whether pattern contains MQTT wildcards.
func IsWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "+#")
}
