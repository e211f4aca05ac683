package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SceneIDRepo is the Postgres-backed scene ID table, shared by every
// machine that hosts the same world.
type SceneIDRepo struct {
	db *DB
}

func NewSceneIDRepo(db *DB) *SceneIDRepo {
	return &SceneIDRepo{db: db}
}

func (r *SceneIDRepo) LookupSceneID(ctx context.Context, key string) (int32, bool, error) {
	var id int32
	err := r.db.Pool.QueryRow(ctx,
		`SELECT net_id FROM scene_object_ids WHERE scene_key = $1`, key,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// AssignSceneID inserts a key. Re-assigning a key to a different ID fails.
func (r *SceneIDRepo) AssignSceneID(ctx context.Context, key string, id int32) error {
	tag, err := r.db.Pool.Exec(ctx,
		`INSERT INTO scene_object_ids (scene_key, net_id) VALUES ($1, $2)
		 ON CONFLICT (scene_key) DO NOTHING`, key, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		existing, ok, err := r.LookupSceneID(ctx, key)
		if err != nil {
			return err
		}
		if !ok || existing != id {
			return fmt.Errorf("%w: %q already has id %d", ErrKeyConflict, key, existing)
		}
	}
	return nil
}

func (r *SceneIDRepo) MaxSceneID(ctx context.Context) (int32, error) {
	var max int32
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(net_id), 0) FROM scene_object_ids`,
	).Scan(&max)
	return max, err
}

func (r *SceneIDRepo) List(ctx context.Context) ([]SceneIDRow, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT scene_key, net_id FROM scene_object_ids ORDER BY net_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SceneIDRow
	for rows.Next() {
		var row SceneIDRow
		if err := rows.Scan(&row.Key, &row.NetID); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func (r *SceneIDRepo) Close() error {
	r.db.Close()
	return nil
}
