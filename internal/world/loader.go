package world

import (
	"context"
	"fmt"
	"slices"

	"github.com/quarryline/netsync/internal/data"
	"github.com/quarryline/netsync/internal/replica"
	"go.uber.org/zap"
)

// NewCatalog builds the replica catalog from a prefab table using the
// behaviours this package provides.
func NewCatalog(prefabs *data.PrefabTable) (*replica.Catalog, error) {
	defs := make([]replica.PrefabDef, 0, prefabs.Count())
	for _, p := range prefabs.All() {
		defs = append(defs, replica.PrefabDef{Name: p.Name, Behaviours: p.Behaviours})
	}
	return replica.NewCatalog(defs, Factories(), prefabs.Player)
}

// ManifestLoader builds scene objects from the scene manifest and registers
// them under their durable keys. It finishes synchronously.
type ManifestLoader struct {
	scenes  *data.SceneTable
	prefabs *data.PrefabTable
	catalog *replica.Catalog
	log     *zap.Logger
}

func NewManifestLoader(scenes *data.SceneTable, prefabs *data.PrefabTable, catalog *replica.Catalog, log *zap.Logger) *ManifestLoader {
	return &ManifestLoader{scenes: scenes, prefabs: prefabs, catalog: catalog, log: log}
}

func (l *ManifestLoader) LoadScene(ctx context.Context, scene int32, objects *replica.Registry, done func(error)) {
	done(l.load(ctx, scene, objects))
}

func (l *ManifestLoader) load(ctx context.Context, scene int32, objects *replica.Registry) error {
	entry := l.scenes.Get(scene)
	if entry == nil {
		return fmt.Errorf("scene %d not in manifest", scene)
	}
	for _, placed := range entry.Objects {
		obj, err := l.build(placed)
		if err != nil {
			return fmt.Errorf("scene %q object %q: %w", entry.Name, placed.Key, err)
		}
		if _, err := objects.RegisterScene(ctx, obj, entry.ObjectKey(placed)); err != nil {
			return fmt.Errorf("scene %q object %q: %w", entry.Name, placed.Key, err)
		}
	}
	l.log.Debug("scene built", zap.String("scene", entry.Name), zap.Int("objects", len(entry.Objects)))
	return nil
}

func (l *ManifestLoader) build(placed data.PlacedObject) (*replica.Object, error) {
	obj, err := l.catalog.InstantiateByName(placed.Prefab)
	if err != nil {
		return nil, err
	}
	def := l.prefabs.Get(placed.Prefab)
	if def == nil {
		return nil, fmt.Errorf("prefab %q missing from table", placed.Prefab)
	}
	for name := range placed.Props {
		if !slices.Contains(def.Behaviours, name) {
			return nil, fmt.Errorf("props for %q, which prefab %q lacks", name, placed.Prefab)
		}
	}
	for i, b := range obj.Behaviours() {
		props := placed.Props[def.Behaviours[i]]
		if len(props) == 0 {
			continue
		}
		c, ok := b.(Configurable)
		if !ok {
			return nil, fmt.Errorf("behaviour %q takes no props", def.Behaviours[i])
		}
		if err := c.Configure(props); err != nil {
			return nil, err
		}
	}
	obj.Name = placed.Key
	return obj, nil
}

