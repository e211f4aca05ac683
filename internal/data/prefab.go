package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PrefabEntry is one spawnable template: a name and its behaviours in wire order.
type PrefabEntry struct {
	Name       string   `yaml:"name"`
	Behaviours []string `yaml:"behaviours"`
}

type prefabFile struct {
	Player  string        `yaml:"player"`
	Prefabs []PrefabEntry `yaml:"prefabs"`
}

// PrefabTable holds the prefab catalog. The position of an entry is its
// prefab index on the wire, so every peer must load the same file.
type PrefabTable struct {
	Player  string
	entries []PrefabEntry
	byName  map[string]int
}

// Get returns a prefab by name, or nil if none.
func (t *PrefabTable) Get(name string) *PrefabEntry {
	i, ok := t.byName[name]
	if !ok {
		return nil
	}
	return &t.entries[i]
}

// All returns the prefabs in index order.
func (t *PrefabTable) All() []PrefabEntry {
	return t.entries
}

// Count returns the number of prefabs.
func (t *PrefabTable) Count() int {
	return len(t.entries)
}

// LoadPrefabTable loads the prefab catalog from a YAML file.
func LoadPrefabTable(path string) (*PrefabTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prefab catalog: %w", err)
	}
	return ParsePrefabTable(raw)
}

// ParsePrefabTable parses and validates a prefab catalog document.
func ParsePrefabTable(raw []byte) (*PrefabTable, error) {
	var f prefabFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse prefab catalog: %w", err)
	}
	t := &PrefabTable{
		Player:  f.Player,
		entries: f.Prefabs,
		byName:  make(map[string]int, len(f.Prefabs)),
	}
	for i, e := range f.Prefabs {
		if e.Name == "" {
			return nil, fmt.Errorf("prefab %d has no name", i)
		}
		if _, dup := t.byName[e.Name]; dup {
			return nil, fmt.Errorf("prefab %q defined twice", e.Name)
		}
		t.byName[e.Name] = i
	}
	if f.Player != "" && t.Get(f.Player) == nil {
		return nil, fmt.Errorf("player prefab %q not defined", f.Player)
	}
	return t, nil
}
