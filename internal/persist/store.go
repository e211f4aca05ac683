// Package persist holds the durable table that maps scene-object keys to
// network IDs, so scene objects keep their IDs across sessions and edits.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/quarryline/netsync/internal/config"
	"go.uber.org/zap"
)

var ErrKeyConflict = errors.New("scene key already assigned")

// SceneIDRow is one persisted entry.
type SceneIDRow struct {
	Key   string `yaml:"key"`
	NetID int32  `yaml:"net_id"`
}

// Store is implemented by every scene ID backend.
type Store interface {
	LookupSceneID(ctx context.Context, key string) (int32, bool, error)
	AssignSceneID(ctx context.Context, key string, id int32) error
	MaxSceneID(ctx context.Context) (int32, error)
	List(ctx context.Context) ([]SceneIDRow, error)
	Close() error
}

// Open builds the configured backend. Postgres runs pending migrations.
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "bbolt":
		return OpenBolt(cfg.Path)
	case "table":
		return LoadTable(cfg.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
