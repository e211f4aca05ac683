package session

import (
	"context"

	"github.com/quarryline/netsync/internal/replica"
)

// SceneLoader builds a scene's objects and registers them. It may finish
// synchronously or later; either way it calls done exactly once on the
// tick goroutine.
type SceneLoader interface {
	LoadScene(ctx context.Context, scene int32, objects *replica.Registry, done func(error))
}

// SceneLoaderFunc adapts a synchronous load function to SceneLoader.
type SceneLoaderFunc func(ctx context.Context, scene int32, objects *replica.Registry) error

func (f SceneLoaderFunc) LoadScene(ctx context.Context, scene int32, objects *replica.Registry, done func(error)) {
	done(f(ctx, scene, objects))
}

// EmptyScenes loads nothing. Scenes then hold only runtime-spawned objects.
var EmptyScenes SceneLoader = SceneLoaderFunc(func(context.Context, int32, *replica.Registry) error { return nil })
