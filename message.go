package operations

import (
	"encoding/json"
	"unicode/utf8"
)

const (
	StatusField = "status"
	ReasonField = "reason"

	StatusInit       = "init"
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
)

// Message is one state snapshot of an operation instance. Status always
// mirrors the "status" field of JSON.
type Message struct {
	Key    OperationKey
	Status string
	JSON   map[string]any
}

// NewMessage returns a snapshot holding only its status.
func NewMessage(key OperationKey, status string) Message {
	return Message{
		Key:    key,
		Status: status,
		JSON:   map[string]any{StatusField: status},
	}
}

// Type names the operation kind, eg. "configuration/update".
func (m Message) Type() string {
	return m.Key.Operation + "/" + m.Key.Request
}

func (m Message) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return err
	}
	if m.Status == "" {
		return nil
	}
	if s, ok := m.JSON[StatusField].(string); !ok || s != m.Status {
		return NewError(ErrMissingStatus, "status out of sync with payload", nil, map[string]any{
			"key":    m.Key.String(),
			"status": m.Status,
		})
	}
	return nil
}

// Cleared reports whether the snapshot is the empty retained payload that
// ends an operation.
func (m Message) Cleared() bool {
	return m.Status == ""
}

// Clone returns a deep copy of the snapshot.
func (m Message) Clone() Message {
	m.JSON = cloneJSON(m.JSON)
	return m
}

// WithStatus returns a copy moved to status, keeping every other field.
func (m Message) WithStatus(status string) Message {
	out := m.Clone()
	if out.JSON == nil {
		out.JSON = map[string]any{}
	}
	out.Status = status
	out.JSON[StatusField] = status
	return out
}

// FailedWith returns a copy moved to "failed" with the given reason.
func (m Message) FailedWith(reason string) Message {
	out := m.WithStatus(StatusFailed)
	out.JSON[ReasonField] = reason
	return out
}

// WithJSON replaces the snapshot with obj, taking the status from it.
func (m Message) WithJSON(obj map[string]any) (Message, error) {
	status, ok := obj[StatusField].(string)
	if !ok {
		return m, NewError(ErrMissingStatus, "", nil, map[string]any{"key": m.Key.String()})
	}
	return Message{Key: m.Key, Status: status, JSON: cloneJSON(obj)}, nil
}

// Set returns a copy with field set to value. Setting "status" moves the snapshot.
func (m Message) Set(field string, value any) Message {
	if field == StatusField {
		if s, ok := value.(string); ok {
			return m.WithStatus(s)
		}
	}
	out := m.Clone()
	if out.JSON == nil {
		out.JSON = map[string]any{}
	}
	out.JSON[field] = value
	return out
}

// String returns a string field of the payload.
func (m Message) String(field string) (string, bool) {
	v, ok := m.JSON[field].(string)
	return v, ok
}

// Payload encodes the snapshot. A cleared snapshot encodes to an empty payload.
func (m Message) Payload() ([]byte, error) {
	if m.Cleared() {
		return []byte{}, nil
	}
	obj := m.JSON
	if obj == nil {
		obj = map[string]any{}
	}
	if s, ok := obj[StatusField].(string); !ok || s != m.Status {
		obj = cloneJSON(obj)
		obj[StatusField] = m.Status
	}
	return json.Marshal(obj)
}

// DecodeMessage builds a snapshot from a transport delivery. An empty
// payload decodes to a cleared snapshot.
func DecodeMessage(root, topic string, payload []byte) (Message, error) {
	key, err := DecodeTopic(root, topic)
	if err != nil {
		return Message{}, err
	}

	if len(payload) == 0 {
		return Message{Key: key, JSON: map[string]any{}}, nil
	}

	meta := map[string]any{"topic": topic}
	if !utf8.Valid(payload) {
		return Message{}, NewError(ErrInvalidPayload, "Not an UTF-8 message", nil, meta)
	}

	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return Message{}, NewError(ErrInvalidPayload, "Not a JSON message", err, meta)
	}

	status, ok := obj[StatusField].(string)
	if !ok {
		return Message{}, NewError(ErrMissingStatus, "Missing status", nil, meta)
	}

	return Message{Key: key, Status: status, JSON: obj}, nil
}

func cloneJSON(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return cloneJSON(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
