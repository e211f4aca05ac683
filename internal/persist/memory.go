package persist

import (
	"context"
	"fmt"
	"sort"
)

// MemoryStore is a non-durable table for tests and throwaway sessions.
type MemoryStore struct {
	ids map[string]int32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]int32)}
}

func (s *MemoryStore) LookupSceneID(_ context.Context, key string) (int32, bool, error) {
	id, ok := s.ids[key]
	return id, ok, nil
}

func (s *MemoryStore) AssignSceneID(_ context.Context, key string, id int32) error {
	if existing, ok := s.ids[key]; ok && existing != id {
		return fmt.Errorf("%w: %q already has id %d", ErrKeyConflict, key, existing)
	}
	s.ids[key] = id
	return nil
}

func (s *MemoryStore) MaxSceneID(context.Context) (int32, error) {
	var max int32
	for _, id := range s.ids {
		if id > max {
			max = id
		}
	}
	return max, nil
}

func (s *MemoryStore) List(context.Context) ([]SceneIDRow, error) {
	rows := make([]SceneIDRow, 0, len(s.ids))
	for k, id := range s.ids {
		rows = append(rows, SceneIDRow{Key: k, NetID: id})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].NetID < rows[j].NetID })
	return rows, nil
}

func (s *MemoryStore) Close() error { return nil }
