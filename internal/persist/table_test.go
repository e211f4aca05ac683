package persist

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestTableRoundTripFromBolt(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	bolt, err := OpenBolt(filepath.Join(dir, "ids.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer bolt.Close()
	for key, id := range map[string]int32{"camp/fire": 1, "camp/lantern": 2, "mine/lever": 3} {
		if err := bolt.AssignSceneID(ctx, key, id); err != nil {
			t.Fatal(err)
		}
	}
	rows, err := bolt.List(ctx)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "scene_ids.yaml")
	if err := WriteTable(path, rows); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	table, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}

	if id, ok, _ := table.LookupSceneID(ctx, "mine/lever"); !ok || id != 3 {
		t.Fatalf("lookup = %d %v", id, ok)
	}
	if max, _ := table.MaxSceneID(ctx); max != 3 {
		t.Fatalf("max = %d", max)
	}
	if err := table.AssignSceneID(ctx, "mine/cart", 4); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("assign err = %v", err)
	}
}

func TestParseTableRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"no key":       "- {net_id: 1}\n",
		"zero id":      "- {key: a, net_id: 0}\n",
		"shared id":    "- {key: a, net_id: 1}\n- {key: b, net_id: 1}\n",
		"key conflict": "- {key: a, net_id: 1}\n- {key: a, net_id: 2}\n",
		"not a list":   "key: a\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable([]byte(raw))
			if err == nil || !strings.Contains(err.Error(), "scene id table") {
				t.Fatalf("err = %v", err)
			}
		})
	}
}
