package persist

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrReadOnly is returned when a shipped table is asked to assign a new ID.
var ErrReadOnly = errors.New("scene id table is read-only")

// TableStore serves a scene ID table exported by WriteTable. Clients load it
// instead of opening the host's database.
type TableStore struct {
	mem *MemoryStore
}

// LoadTable reads a YAML list of {key, net_id} rows.
func LoadTable(path string) (*TableStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene id table: %w", err)
	}
	return ParseTable(raw)
}

func ParseTable(raw []byte) (*TableStore, error) {
	var rows []SceneIDRow
	if err := yaml.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse scene id table: %w", err)
	}
	mem := NewMemoryStore()
	seen := make(map[int32]string, len(rows))
	for _, r := range rows {
		if r.Key == "" || r.NetID <= 0 {
			return nil, fmt.Errorf("scene id table: bad row %q=%d", r.Key, r.NetID)
		}
		if prev, dup := seen[r.NetID]; dup {
			return nil, fmt.Errorf("scene id table: id %d used by %q and %q", r.NetID, prev, r.Key)
		}
		seen[r.NetID] = r.Key
		if err := mem.AssignSceneID(context.Background(), r.Key, r.NetID); err != nil {
			return nil, fmt.Errorf("scene id table: %w", err)
		}
	}
	return &TableStore{mem: mem}, nil
}

// WriteTable exports rows in the format LoadTable reads.
func WriteTable(path string, rows []SceneIDRow) error {
	raw, err := yaml.Marshal(rows)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func (s *TableStore) LookupSceneID(ctx context.Context, key string) (int32, bool, error) {
	return s.mem.LookupSceneID(ctx, key)
}

func (s *TableStore) AssignSceneID(_ context.Context, key string, _ int32) error {
	return fmt.Errorf("%w: %q", ErrReadOnly, key)
}

func (s *TableStore) MaxSceneID(ctx context.Context) (int32, error) {
	return s.mem.MaxSceneID(ctx)
}

func (s *TableStore) List(ctx context.Context) ([]SceneIDRow, error) {
	return s.mem.List(ctx)
}

func (s *TableStore) Close() error { return nil }
