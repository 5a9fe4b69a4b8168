package operations

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-operations/router"
)

const (
	// DefaultRoot is the topic prefix used when none is configured.
	DefaultRoot = "tedge"
	// OperationsSegment follows the root in every operation topic.
	OperationsSegment = "operations"
)

var topicMatcher = router.MakeRouteMatcher(router.MakeRouteMatcherOptions{
	Separator:        "/",
	OnlyFinalSegment: true,
})

// OperationKey identifies one instance of an operation request.
type OperationKey struct {
	Subsystem string `json:"subsystem"`
	Operation string `json:"operation"`
	Request   string `json:"request"`
	Instance  string `json:"instance"`
}

// Topic renders the key as <root>/operations/{subsystem}/{operation}/{request}/{instance}.
func (k OperationKey) Topic(root string) string {
	return strings.Join([]string{
		normalizeRoot(root), OperationsSegment,
		k.Subsystem, k.Operation, k.Request, k.Instance,
	}, "/")
}

func (k OperationKey) String() string {
	return strings.Join([]string{k.Subsystem, k.Operation, k.Request, k.Instance}, "/")
}

// Validate checks that every segment is present and free of topic metacharacters.
func (k OperationKey) Validate() error {
	for _, seg := range k.segments() {
		if seg.value == "" {
			return NewError(ErrMalformedTopic, fmt.Sprintf("missing %s segment", seg.name), nil, map[string]any{"key": k.String()})
		}
		if err := checkSegment(seg.name, seg.value); err != nil {
			return NewError(ErrMalformedTopic, err.Error(), nil, map[string]any{"key": k.String()})
		}
	}
	return nil
}

type segment struct{ name, value string }

func (k OperationKey) segments() []segment {
	return []segment{
		{"subsystem", k.Subsystem},
		{"operation", k.Operation},
		{"request", k.Request},
		{"instance", k.Instance},
	}
}

// DecodeTopic parses an operation topic under root.
func DecodeTopic(root, topic string) (OperationKey, error) {
	parts := strings.Split(topic, "/")
	prefix := strings.Split(normalizeRoot(root), "/")

	if len(parts) != len(prefix)+5 {
		return OperationKey{}, malformedTopic(topic, "unexpected segment count")
	}
	for i, p := range prefix {
		if parts[i] != p {
			return OperationKey{}, malformedTopic(topic, "unexpected root")
		}
	}
	rest := parts[len(prefix):]
	if rest[0] != OperationsSegment {
		return OperationKey{}, malformedTopic(topic, "not an operation topic")
	}

	key := OperationKey{
		Subsystem: rest[1],
		Operation: rest[2],
		Request:   rest[3],
		Instance:  rest[4],
	}
	if err := key.Validate(); err != nil {
		return OperationKey{}, malformedTopic(topic, err.Error())
	}
	return key, nil
}

func malformedTopic(topic, reason string) error {
	return NewError(ErrMalformedTopic, "Not an operation topic: "+topic, nil, map[string]any{
		"topic":  topic,
		"reason": reason,
	})
}

// Filter selects operation topics. Empty fields match any value.
type Filter struct {
	Subsystem string `json:"subsystem,omitempty" yaml:"subsystem,omitempty" toml:"subsystem,omitempty"`
	Operation string `json:"operation,omitempty" yaml:"operation,omitempty" toml:"operation,omitempty"`
	Request   string `json:"request,omitempty" yaml:"request,omitempty" toml:"request,omitempty"`
}

// Validate rejects filter values that would corrupt the rendered pattern.
func (f Filter) Validate() error {
	fields := []segment{
		{"subsystem", f.Subsystem},
		{"operation", f.Operation},
		{"request", f.Request},
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		if err := checkSegment(field.name, field.value); err != nil {
			return NewError(ErrInvalidFilter, err.Error(), nil, map[string]any{
				"field": field.name,
				"value": field.value,
			})
		}
	}
	return nil
}

// Pattern renders the filter as a topic pattern; the instance is always "+".
func (f Filter) Pattern(root string) (string, error) {
	if err := f.Validate(); err != nil {
		return "", err
	}
	return strings.Join([]string{
		normalizeRoot(root), OperationsSegment,
		wildcard(f.Subsystem), wildcard(f.Operation), wildcard(f.Request), "+",
	}, "/"), nil
}

// Matches reports whether key falls under the filter.
func (f Filter) Matches(key OperationKey) bool {
	return (f.Subsystem == "" || f.Subsystem == key.Subsystem) &&
		(f.Operation == "" || f.Operation == key.Operation) &&
		(f.Request == "" || f.Request == key.Request)
}

func (f Filter) String() string {
	return strings.Join([]string{wildcard(f.Subsystem), wildcard(f.Operation), wildcard(f.Request)}, "/")
}

// SubscriptionPattern matches every operation topic under root.
func SubscriptionPattern(root string) string {
	return Filter{}.mustPattern(root)
}

func (f Filter) mustPattern(root string) string {
	p, err := f.Pattern(root)
	if err != nil {
		panic(err)
	}
	return p
}

// TopicMatches applies MQTT wildcard matching of topic against pattern.
func TopicMatches(pattern, topic string) bool {
	return topicMatcher(pattern, topic)
}

func wildcard(value string) string {
	if value == "" {
		return "+"
	}
	return value
}

func checkSegment(name, value string) error {
	if strings.ContainsAny(value, "/+#") {
		return fmt.Errorf("%s %q contains a reserved topic character", name, value)
	}
	return nil
}

func normalizeRoot(root string) string {
	root = strings.Trim(root, "/")
	if root == "" {
		return DefaultRoot
	}
	return root
}
