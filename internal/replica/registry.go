package replica

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/quarryline/netsync/internal/protocol"
	"go.uber.org/zap"
)

var (
	ErrIDSpaceExhausted      = errors.New("runtime network ID space exhausted")
	ErrSceneIDSpaceExhausted = errors.New("scene network ID space exhausted")
	ErrAlreadyRegistered     = errors.New("network ID already registered")
	ErrNoSceneStore          = errors.New("no scene ID store configured")
	ErrInvalidID             = errors.New("network ID outside its range")
	ErrUnknownSceneKey       = errors.New("scene key has no persisted network ID")
)

// DefaultSceneIDLimit is the top of the reserved scene ID range [1, limit].
const DefaultSceneIDLimit int32 = 1 << 20

// SceneIDStore is the durable table of scene-object keys to network IDs.
type SceneIDStore interface {
	LookupSceneID(ctx context.Context, key string) (int32, bool, error)
	AssignSceneID(ctx context.Context, key string, id int32) error
	MaxSceneID(ctx context.Context) (int32, error)
}

type Options struct {
	Role         protocol.Role
	Local        protocol.Identity
	SceneIDLimit int32 // default DefaultSceneIDLimit
	RuntimeIDTop int32 // default math.MaxInt32
	Store        SceneIDStore
	Catalog      *Catalog
	Callbacks    CallbackInvoker
	Log          *zap.Logger
}

// Registry maps network IDs to live objects for one session. It is touched
// only from the session's tick goroutine.
type Registry struct {
	role      protocol.Role
	local     protocol.Identity
	sceneMax  int32
	top       int32
	store     SceneIDStore
	catalog   *Catalog
	callbacks CallbackInvoker
	log       *zap.Logger

	objects map[int32]*Object
	order   []*Object // insertion order
}

func NewRegistry(opts Options) *Registry {
	if opts.SceneIDLimit <= 0 {
		opts.SceneIDLimit = DefaultSceneIDLimit
	}
	if opts.RuntimeIDTop <= 0 {
		opts.RuntimeIDTop = math.MaxInt32
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Registry{
		role:      opts.Role,
		local:     opts.Local,
		sceneMax:  opts.SceneIDLimit,
		top:       opts.RuntimeIDTop,
		store:     opts.Store,
		catalog:   opts.Catalog,
		callbacks: opts.Callbacks,
		log:       opts.Log,
		objects:   make(map[int32]*Object, 256),
	}
}

func (r *Registry) Role() protocol.Role            { return r.role }
func (r *Registry) Local() protocol.Identity       { return r.local }
func (r *Registry) Catalog() *Catalog              { return r.catalog }
func (r *Registry) SceneIDLimit() int32            { return r.sceneMax }
func (r *Registry) Len() int                       { return len(r.objects) }
func (r *Registry) SetLocal(id protocol.Identity)  { r.local = id }
func (r *Registry) IsSceneID(id int32) bool        { return id >= 1 && id <= r.sceneMax }
func (r *Registry) IsRuntimeID(id int32) bool      { return id > r.sceneMax && id <= r.top }
func (r *Registry) SetCallbacks(c CallbackInvoker) { r.callbacks = c }

// Lookup resolves a network ID. A miss is a normal transient state.
func (r *Registry) Lookup(netID int32) (*Object, bool) {
	obj, ok := r.objects[netID]
	return obj, ok
}

// RegisterScene registers a scene-placed object under the ID persisted for
// key. On the host an unseen key allocates and persists the next scene ID;
// clients only resolve keys that already exist.
func (r *Registry) RegisterScene(ctx context.Context, obj *Object, key string) (int32, error) {
	if r.store == nil {
		return 0, ErrNoSceneStore
	}
	id, ok, err := r.store.LookupSceneID(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("lookup scene id %q: %w", key, err)
	}
	if !ok && r.role == protocol.RoleClient {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSceneKey, key)
	}
	if !ok {
		max, err := r.store.MaxSceneID(ctx)
		if err != nil {
			return 0, fmt.Errorf("max scene id: %w", err)
		}
		id = max + 1
		if id > r.sceneMax {
			r.log.Error("scene ID space exhausted", zap.String("key", key), zap.Int32("limit", r.sceneMax))
			return 0, ErrSceneIDSpaceExhausted
		}
		if err := r.store.AssignSceneID(ctx, key, id); err != nil {
			return 0, fmt.Errorf("assign scene id %q: %w", key, err)
		}
		r.log.Debug("scene ID assigned", zap.String("key", key), zap.Int32("net_id", id))
	}
	if !r.IsSceneID(id) {
		return 0, fmt.Errorf("%w: scene key %q has id %d", ErrInvalidID, key, id)
	}
	if live, ok := r.objects[id]; ok {
		if live == obj {
			return id, nil
		}
		return 0, fmt.Errorf("%w: %d (scene key %q)", ErrAlreadyRegistered, id, key)
	}

	obj.Prefab = PrefabScene
	obj.SceneKey = key
	obj.Persistent = false
	r.attach(obj, id)
	return id, nil
}

// Allocate finds a free runtime ID, searching downward from the top of the
// ID space and never entering the scene range. Host only.
func (r *Registry) Allocate() (int32, error) {
	for id := r.top; id > r.sceneMax; id-- {
		if _, used := r.objects[id]; !used {
			return id, nil
		}
	}
	r.log.Error("runtime network ID space exhausted",
		zap.Int32("top", r.top),
		zap.Int32("scene_limit", r.sceneMax),
		zap.Int("registered", len(r.objects)),
	)
	return 0, ErrIDSpaceExhausted
}

// Register attaches a runtime object. netID 0 asks the registry to allocate.
func (r *Registry) Register(obj *Object, netID int32) (int32, error) {
	if netID == 0 {
		id, err := r.Allocate()
		if err != nil {
			return 0, err
		}
		netID = id
	}
	if !r.IsRuntimeID(netID) {
		return 0, fmt.Errorf("%w: runtime id %d", ErrInvalidID, netID)
	}
	if _, used := r.objects[netID]; used {
		return 0, fmt.Errorf("%w: %d", ErrAlreadyRegistered, netID)
	}
	r.attach(obj, netID)
	return netID, nil
}

// SpawnFromPrefab instantiates a catalog prefab, marks it persistent across
// scene transitions, assigns netID (0 allocates) and owner, and registers it.
func (r *Registry) SpawnFromPrefab(prefab int32, owner protocol.Identity, netID int32) (*Object, error) {
	if r.catalog == nil {
		return nil, fmt.Errorf("%w: no catalog", ErrUnknownPrefab)
	}
	obj, err := r.catalog.Instantiate(prefab)
	if err != nil {
		return nil, err
	}
	obj.Owner = owner
	obj.Persistent = true
	if _, err := r.Register(obj, netID); err != nil {
		return nil, err
	}
	return obj, nil
}

func (r *Registry) attach(obj *Object, id int32) {
	obj.NetID = id
	obj.registry = r
	obj.destroyed = false
	for i, b := range obj.behaviours {
		base := b.NetBase()
		base.object = obj
		base.index = i
	}
	r.objects[id] = obj
	r.order = append(r.order, obj)

	for _, b := range obj.behaviours {
		if s, ok := b.(Spawner); ok {
			s.OnNetworkSpawn()
		}
	}
}

// Destroy removes the object with netID. Destroying an unknown or already
// destroyed ID is a no-op and returns false.
func (r *Registry) Destroy(netID int32) bool {
	obj, ok := r.objects[netID]
	if !ok {
		return false
	}
	delete(r.objects, netID)
	r.order = slices.DeleteFunc(slices.Clone(r.order), func(o *Object) bool { return o == obj })
	obj.destroyed = true

	for _, b := range obj.behaviours {
		if d, ok := b.(Destroyer); ok {
			d.OnNetworkDestroy()
		}
	}
	return true
}

// PurgeScene destroys every object that does not survive scene transitions.
func (r *Registry) PurgeScene() int {
	var ids []int32
	for _, o := range r.order {
		if !o.Persistent {
			ids = append(ids, o.NetID)
		}
	}
	for _, id := range ids {
		r.Destroy(id)
	}
	return len(ids)
}

// Clear destroys every object. Used at session teardown.
func (r *Registry) Clear() {
	for _, o := range slices.Clone(r.order) {
		r.Destroy(o.NetID)
	}
}

// PlayerOf returns the player object owned by identity.
func (r *Registry) PlayerOf(id protocol.Identity) (*Object, bool) {
	for _, o := range r.order {
		if o.IsPlayer() && o.Owner == id {
			return o, true
		}
	}
	return nil, false
}

// All enumerates live objects in insertion order.
func (r *Registry) All() iter.Seq[*Object] {
	return r.filter(func(*Object) bool { return true })
}

// SceneObjects enumerates scene-placed objects in insertion order.
func (r *Registry) SceneObjects() iter.Seq[*Object] {
	return r.filter(func(o *Object) bool { return o.IsScene() })
}

// PersistentObjects enumerates runtime-spawned objects that need a spawn
// message before their state can be applied remotely.
func (r *Registry) PersistentObjects() iter.Seq[*Object] {
	return r.filter(func(o *Object) bool { return !o.IsScene() })
}

// filter captures the order slice at call time; Destroy never mutates a
// captured slice in place, so enumeration is stable within one pass.
func (r *Registry) filter(keep func(*Object) bool) iter.Seq[*Object] {
	return func(yield func(*Object) bool) {
		for _, o := range r.order {
			if o.destroyed || !keep(o) {
				continue
			}
			if !yield(o) {
				return
			}
		}
	}
}
