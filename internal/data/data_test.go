package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const prefabYAML = `
player: player
prefabs:
  - name: player
    behaviours: [player, inventory]
  - name: lantern
    behaviours: [item]
`

const sceneYAML = `
scenes:
  - index: 1
    name: camp
    objects:
      - key: lantern-1
        prefab: lantern
        props:
          item: {kind: lantern}
      - key: gate
        prefab: gate
  - index: 0
`

func TestLoadPrefabTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefabs.yaml")
	if err := os.WriteFile(path, []byte(prefabYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := LoadPrefabTable(path)
	if err != nil {
		t.Fatalf("LoadPrefabTable: %v", err)
	}
	if tbl.Count() != 2 || tbl.Player != "player" {
		t.Fatalf("count = %d player = %q", tbl.Count(), tbl.Player)
	}
	if got := tbl.All()[1].Name; got != "lantern" {
		t.Fatalf("index 1 = %q", got)
	}
	p := tbl.Get("player")
	if p == nil || len(p.Behaviours) != 2 || p.Behaviours[1] != "inventory" {
		t.Fatalf("player = %+v", p)
	}
	if tbl.Get("missing") != nil {
		t.Fatal("unknown prefab found")
	}
}

func TestParsePrefabTableRejects(t *testing.T) {
	cases := map[string]string{
		"duplicate":      "prefabs: [{name: a}, {name: a}]",
		"unnamed":        "prefabs: [{behaviours: [item]}]",
		"missing player": "player: hero\nprefabs: [{name: a}]",
		"bad yaml":       "prefabs: [",
	}
	for name, doc := range cases {
		if _, err := ParsePrefabTable([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadSceneTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenes.yaml")
	if err := os.WriteFile(path, []byte(sceneYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := LoadSceneTable(path)
	if err != nil {
		t.Fatalf("LoadSceneTable: %v", err)
	}
	if idx := tbl.Indices(); len(idx) != 2 || idx[0] != 0 || idx[1] != 1 {
		t.Fatalf("indices = %v", idx)
	}
	camp := tbl.Get(1)
	if camp == nil || len(camp.Objects) != 2 {
		t.Fatalf("camp = %+v", camp)
	}
	if got := camp.ObjectKey(camp.Objects[0]); got != "camp/lantern-1" {
		t.Fatalf("key = %q", got)
	}
	if camp.Objects[0].Props["item"]["kind"] != "lantern" {
		t.Fatalf("props = %v", camp.Objects[0].Props)
	}
	if name := tbl.Get(0).Name; name != "scene-0" {
		t.Fatalf("default name = %q", name)
	}
}

func TestParseSceneTableRejects(t *testing.T) {
	cases := map[string]string{
		"duplicate index": "scenes: [{index: 1}, {index: 1, name: b}]",
		"duplicate name":  "scenes: [{index: 1, name: a}, {index: 2, name: a}]",
		"duplicate key":   "scenes: [{index: 1, objects: [{key: k, prefab: p}, {key: k, prefab: p}]}]",
		"no prefab":       "scenes: [{index: 1, objects: [{key: k}]}]",
	}
	for name, doc := range cases {
		_, err := ParseSceneTable([]byte(doc))
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if !strings.Contains(err.Error(), "scene") {
			t.Errorf("%s: error %q lacks context", name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadSceneTable(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := LoadPrefabTable(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
