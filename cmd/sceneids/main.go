// sceneids assigns stable network IDs to every object in the scene manifest
// and writes the resulting table. Clients never allocate scene IDs, so the
// table must be built on the host side and shipped with the game data; a
// client reads the exported file with store driver "table".
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/quarryline/netsync/internal/config"
	"github.com/quarryline/netsync/internal/data"
	"github.com/quarryline/netsync/internal/persist"
	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/replica"
	"github.com/quarryline/netsync/internal/world"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: sceneids <netsync.toml> [output.yaml]")
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgPath string, rest []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	prefabs, err := data.LoadPrefabTable(cfg.Data.PrefabCatalog)
	if err != nil {
		return err
	}
	scenes, err := data.LoadSceneTable(cfg.Data.SceneManifest)
	if err != nil {
		return err
	}
	catalog, err := world.NewCatalog(prefabs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	store, err := persist.Open(ctx, cfg.Store, zap.NewNop())
	if err != nil {
		return err
	}
	defer store.Close()

	before, err := store.MaxSceneID(ctx)
	if err != nil {
		return err
	}

	// One registry per scene: IDs are unique across the whole manifest, but
	// objects from different scenes are never live together.
	loader := world.NewManifestLoader(scenes, prefabs, catalog, zap.NewNop())
	for _, idx := range scenes.Indices() {
		reg := replica.NewRegistry(replica.Options{
			Role:         protocol.RoleHost,
			SceneIDLimit: cfg.Session.SceneIDLimit,
			Store:        store,
			Catalog:      catalog,
		})
		var loadErr error
		loader.LoadScene(ctx, idx, reg, func(err error) { loadErr = err })
		if loadErr != nil {
			return fmt.Errorf("scene %d: %w", idx, loadErr)
		}
	}

	rows, err := store.List(ctx)
	if err != nil {
		return err
	}
	after, err := store.MaxSceneID(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Scene IDs: %d total, %d newly assigned\n", len(rows), after-before)

	if len(rest) == 0 {
		return nil
	}
	if err := persist.WriteTable(rest[0], rows); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", rest[0])
	return nil
}
