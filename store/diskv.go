package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/peterbourgon/diskv/v3"

	operations "github.com/goliatone/go-operations"
)

// DiskvStore persists snapshots as one JSON file per operation key.
type DiskvStore struct {
	dv  *diskv.Diskv
	now func() time.Time
}

// NewDiskvStore stores records flat under path.
func NewDiskvStore(path string) *DiskvStore {
	flatTransform := func(s string) []string { return []string{} }
	return &DiskvStore{
		dv: diskv.New(diskv.Options{
			BasePath:     path,
			Transform:    flatTransform,
			CacheSizeMax: 1024 * 1024,
		}),
		now: time.Now,
	}
}

func diskKey(key operations.OperationKey) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key.String()))
}

func (s *DiskvStore) Put(ctx context.Context, msg operations.Message) error {
	if msg.Cleared() {
		return s.Delete(ctx, msg.Key)
	}
	data, err := json.Marshal(newRecord(msg, s.now()))
	if err != nil {
		return err
	}
	return s.dv.Write(diskKey(msg.Key), data)
}

func (s *DiskvStore) Get(_ context.Context, key operations.OperationKey) (Record, error) {
	k := diskKey(key)
	if !s.dv.Has(k) {
		return Record{}, notFound(key)
	}
	return s.read(k)
}

func (s *DiskvStore) read(k string) (Record, error) {
	data, err := s.dv.Read(k)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *DiskvStore) Delete(_ context.Context, key operations.OperationKey) error {
	k := diskKey(key)
	if !s.dv.Has(k) {
		return nil
	}
	return s.dv.Erase(k)
}

func (s *DiskvStore) List(ctx context.Context, filter operations.Filter) ([]Record, error) {
	cancel := make(chan struct{})
	defer close(cancel)

	var out []Record
	for k := range s.dv.Keys(cancel) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := s.read(k)
		if err != nil {
			// erased between listing and reading
			continue
		}
		if filter.Matches(rec.Key) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out, nil
}
