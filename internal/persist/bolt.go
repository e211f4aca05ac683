package persist

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const sceneIDBucket = "scene_ids"

// BoltStore keeps the scene ID table in a local BoltDB file, the form that
// ships next to a scene build.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the BoltDB file at path.
func OpenBolt(path string) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sceneIDBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) LookupSceneID(ctx context.Context, key string) (int32, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	var (
		id int32
		ok bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(sceneIDBucket)).Get([]byte(key))
		if v == nil {
			return nil
		}
		if len(v) != 4 {
			return fmt.Errorf("corrupt scene id for %q", key)
		}
		id = int32(binary.LittleEndian.Uint32(v))
		ok = true
		return nil
	})
	return id, ok, err
}

func (s *BoltStore) AssignSceneID(ctx context.Context, key string, id int32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(sceneIDBucket))
		if v := b.Get([]byte(key)); v != nil {
			existing := int32(binary.LittleEndian.Uint32(v))
			if existing == id {
				return nil
			}
			return fmt.Errorf("%w: %q already has id %d", ErrKeyConflict, key, existing)
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(id))
		return b.Put([]byte(key), buf[:])
	})
}

func (s *BoltStore) MaxSceneID(ctx context.Context) (int32, error) {
	rows, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	var max int32
	for _, r := range rows {
		if r.NetID > max {
			max = r.NetID
		}
	}
	return max, nil
}

func (s *BoltStore) List(ctx context.Context) ([]SceneIDRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []SceneIDRow
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sceneIDBucket)).ForEach(func(k, v []byte) error {
			if len(v) != 4 {
				return fmt.Errorf("corrupt scene id for %q", k)
			}
			rows = append(rows, SceneIDRow{Key: string(k), NetID: int32(binary.LittleEndian.Uint32(v))})
			return nil
		})
	})
	return rows, err
}
