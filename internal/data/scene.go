package data

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// PlacedObject is one object authored into a scene. Key is stable across
// runs and becomes the object's durable scene key. Props are keyed by
// behaviour name.
type PlacedObject struct {
	Key    string                       `yaml:"key"`
	Prefab string                       `yaml:"prefab"`
	Props  map[string]map[string]string `yaml:"props"`
}

// SceneEntry is one loadable scene.
type SceneEntry struct {
	Index   int32          `yaml:"index"`
	Name    string         `yaml:"name"`
	Objects []PlacedObject `yaml:"objects"`
}

type sceneFile struct {
	Scenes []SceneEntry `yaml:"scenes"`
}

// SceneTable holds every scene indexed by scene index.
type SceneTable struct {
	scenes map[int32]*SceneEntry
}

// Get returns the scene with the given index, or nil if none.
func (t *SceneTable) Get(index int32) *SceneEntry {
	return t.scenes[index]
}

// Indices returns the scene indices in ascending order.
func (t *SceneTable) Indices() []int32 {
	out := make([]int32, 0, len(t.scenes))
	for idx := range t.scenes {
		out = append(out, idx)
	}
	slices.Sort(out)
	return out
}

// Count returns the number of scenes.
func (t *SceneTable) Count() int {
	return len(t.scenes)
}

// ObjectKey returns the durable scene key of a placed object.
func (s *SceneEntry) ObjectKey(o PlacedObject) string {
	return s.Name + "/" + o.Key
}

// LoadSceneTable loads the scene manifest from a YAML file.
func LoadSceneTable(path string) (*SceneTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene manifest: %w", err)
	}
	return ParseSceneTable(raw)
}

// ParseSceneTable parses and validates a scene manifest document.
func ParseSceneTable(raw []byte) (*SceneTable, error) {
	var f sceneFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse scene manifest: %w", err)
	}
	t := &SceneTable{scenes: make(map[int32]*SceneEntry, len(f.Scenes))}
	names := make(map[string]bool, len(f.Scenes))
	for i := range f.Scenes {
		s := &f.Scenes[i]
		if _, dup := t.scenes[s.Index]; dup {
			return nil, fmt.Errorf("scene index %d defined twice", s.Index)
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("scene-%d", s.Index)
		}
		if names[s.Name] {
			return nil, fmt.Errorf("scene name %q defined twice", s.Name)
		}
		names[s.Name] = true
		keys := make(map[string]bool, len(s.Objects))
		for _, o := range s.Objects {
			if o.Key == "" || o.Prefab == "" {
				return nil, fmt.Errorf("scene %q: object needs key and prefab", s.Name)
			}
			if keys[o.Key] {
				return nil, fmt.Errorf("scene %q: key %q used twice", s.Name, o.Key)
			}
			keys[o.Key] = true
		}
		t.scenes[s.Index] = s
	}
	return t, nil
}
