package persist

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/quarryline/netsync/internal/config"
	"go.uber.org/zap"
)

// Set NETSYNC_TEST_POSTGRES_DSN to a scratch database to run these. The
// scene_object_ids table is emptied first.
func openTestRepo(t *testing.T) *SceneIDRepo {
	t.Helper()
	dsn := os.Getenv("NETSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NETSYNC_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := OpenPostgres(ctx, config.StoreConfig{Driver: "postgres", DSN: dsn}, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	if _, err := repo.db.Pool.Exec(ctx, `TRUNCATE scene_object_ids`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return repo
}

func TestSceneIDRepoContract(t *testing.T) {
	checkStoreContract(t, openTestRepo(t))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	repo := openTestRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := RunMigrations(ctx, repo.db.Pool, zap.NewNop()); err != nil {
		t.Fatalf("second run: %v", err)
	}
}
