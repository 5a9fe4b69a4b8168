package store

import (
	"context"
	"sort"
	"time"

	operations "github.com/goliatone/go-operations"
)

// Record is the latest snapshot observed for an operation instance.
type Record struct {
	Key       operations.OperationKey `json:"key"`
	Status    string                  `json:"status"`
	Payload   map[string]any          `json:"payload"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Message rebuilds the snapshot held by the record.
func (r Record) Message() operations.Message {
	return operations.Message{Key: r.Key, Status: r.Status, JSON: r.Payload}.Clone()
}

// Store keeps the latest snapshot per operation key. Cleared snapshots
// remove the record.
type Store interface {
	Put(ctx context.Context, msg operations.Message) error
	Get(ctx context.Context, key operations.OperationKey) (Record, error)
	Delete(ctx context.Context, key operations.OperationKey) error
	List(ctx context.Context, filter operations.Filter) ([]Record, error)
}

func newRecord(msg operations.Message, now time.Time) Record {
	msg = msg.Clone()
	return Record{
		Key:       msg.Key,
		Status:    msg.Status,
		Payload:   msg.JSON,
		UpdatedAt: now.UTC(),
	}
}

func notFound(key operations.OperationKey) error {
	return operations.NewError(operations.ErrOperationNotFound, "", nil, map[string]any{"key": key.String()})
}

// IsNotFound reports whether err means the operation has no record.
func IsNotFound(err error) bool {
	return operations.HasCode(err, operations.ErrCodeOperationNotFound)
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key.String() < records[j].Key.String()
	})
}
