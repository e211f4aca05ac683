package replica

import (
	"errors"
	"fmt"
)

var ErrUnknownPrefab = errors.New("unknown prefab")

// BehaviourFactory builds a fresh behaviour with its NetVars declared.
type BehaviourFactory func() Behaviour

// PrefabDef names a prefab and the behaviours it carries, in wire order.
type PrefabDef struct {
	Name       string
	Behaviours []string
}

// Catalog is the prefab table both ends index by position.
type Catalog struct {
	defs      []PrefabDef
	byName    map[string]int32
	factories map[string]BehaviourFactory
	player    int32
}

// NewCatalog validates defs against the factories. playerPrefab names the
// def used for PrefabPlayer; empty means no player prefab.
func NewCatalog(defs []PrefabDef, factories map[string]BehaviourFactory, playerPrefab string) (*Catalog, error) {
	c := &Catalog{
		defs:      defs,
		byName:    make(map[string]int32, len(defs)),
		factories: factories,
		player:    -1,
	}
	for i, d := range defs {
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("prefab %q defined twice", d.Name)
		}
		for _, b := range d.Behaviours {
			if _, ok := factories[b]; !ok {
				return nil, fmt.Errorf("prefab %q: unknown behaviour %q", d.Name, b)
			}
		}
		c.byName[d.Name] = int32(i)
	}
	if playerPrefab != "" {
		idx, ok := c.byName[playerPrefab]
		if !ok {
			return nil, fmt.Errorf("player prefab %q not in catalog", playerPrefab)
		}
		c.player = idx
	}
	return c, nil
}

func (c *Catalog) Len() int { return len(c.defs) }

// Index returns the catalog index of a named prefab.
func (c *Catalog) Index(name string) (int32, bool) {
	idx, ok := c.byName[name]
	return idx, ok
}

// Instantiate builds an unregistered object from the prefab at index.
// PrefabPlayer resolves to the configured player prefab.
func (c *Catalog) Instantiate(prefab int32) (*Object, error) {
	idx := prefab
	if prefab == PrefabPlayer {
		idx = c.player
	}
	if idx < 0 || int(idx) >= len(c.defs) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPrefab, prefab)
	}
	obj := c.build(c.defs[idx])
	obj.Prefab = prefab
	return obj, nil
}

// InstantiateByName builds an object from a named template. The result keeps
// the PrefabScene sentinel; callers decide how it is registered.
func (c *Catalog) InstantiateByName(name string) (*Object, error) {
	idx, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrefab, name)
	}
	return c.build(c.defs[idx]), nil
}

func (c *Catalog) build(d PrefabDef) *Object {
	obj := NewObject(d.Name)
	for _, name := range d.Behaviours {
		obj.Add(c.factories[name]())
	}
	return obj
}
