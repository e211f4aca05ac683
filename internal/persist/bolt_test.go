package persist

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestBoltStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ids", "scene_ids.db")

	s, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	if err := s.AssignSceneID(ctx, "mine/lift", 3); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := s.AssignSceneID(ctx, "mine/lift", 3); err != nil {
		t.Fatalf("idempotent assign: %v", err)
	}
	if err := s.AssignSceneID(ctx, "mine/lift", 4); !errors.Is(err, ErrKeyConflict) {
		t.Fatalf("conflicting assign: err = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	id, ok, err := s.LookupSceneID(ctx, "mine/lift")
	if err != nil || !ok || id != 3 {
		t.Fatalf("lookup = %d %v %v", id, ok, err)
	}
	if _, ok, _ := s.LookupSceneID(ctx, "missing"); ok {
		t.Fatal("missing key reported present")
	}
	max, err := s.MaxSceneID(ctx)
	if err != nil || max != 3 {
		t.Fatalf("max = %d %v", max, err)
	}
}

func TestStoresAgreeOnContract(t *testing.T) {
	bolt, err := OpenBolt(filepath.Join(t.TempDir(), "ids.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer bolt.Close()

	for name, s := range map[string]Store{"memory": NewMemoryStore(), "bbolt": bolt} {
		t.Run(name, func(t *testing.T) { checkStoreContract(t, s) })
	}
}

// checkStoreContract expects an empty store.
func checkStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	if max, _ := s.MaxSceneID(ctx); max != 0 {
		t.Fatalf("empty max = %d", max)
	}
	for i, key := range []string{"a", "b", "c"} {
		if err := s.AssignSceneID(ctx, key, int32(i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AssignSceneID(ctx, "b", 2); err != nil {
		t.Fatalf("idempotent assign: %v", err)
	}
	if err := s.AssignSceneID(ctx, "b", 7); !errors.Is(err, ErrKeyConflict) {
		t.Fatalf("conflicting assign: err = %v", err)
	}
	if id, ok, err := s.LookupSceneID(ctx, "c"); err != nil || !ok || id != 3 {
		t.Fatalf("lookup = %d %v %v", id, ok, err)
	}
	if _, ok, err := s.LookupSceneID(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing key: ok=%v err=%v", ok, err)
	}
	rows, err := s.List(ctx)
	if err != nil || len(rows) != 3 {
		t.Fatalf("list = %v %v", rows, err)
	}
	for i, r := range rows {
		if r.NetID != int32(i+1) {
			t.Fatalf("list not ordered by id: %v", rows)
		}
	}
	if max, _ := s.MaxSceneID(ctx); max != 3 {
		t.Fatalf("max = %d", max)
	}
}
