package replica

import "github.com/quarryline/netsync/internal/protocol"

// Prefab index sentinels.
const (
	PrefabScene  int32 = -1 // placed in a scene; peers already have it once the scene loads
	PrefabPlayer int32 = -2 // the catalog's player prefab
)

// Object is the identity of one networked entity. It exclusively owns its
// behaviours; the Registry only indexes it.
type Object struct {
	NetID      int32
	Prefab     int32
	Owner      protocol.Identity
	SceneKey   string // durable key of a scene-placed object
	Persistent bool   // survives scene transitions
	Name       string

	behaviours []Behaviour
	registry   *Registry
	destroyed  bool
}

// NewObject creates an unregistered object with its behaviours in wire order.
func NewObject(name string, behaviours ...Behaviour) *Object {
	o := &Object{Name: name, Prefab: PrefabScene}
	for _, b := range behaviours {
		o.Add(b)
	}
	return o
}

// Add appends a behaviour. Order defines the component index and must match
// on every peer, so it is only allowed before registration.
func (o *Object) Add(b Behaviour) {
	if o.registry != nil {
		panic("replica: Add after registration")
	}
	base := b.NetBase()
	base.object = o
	base.index = len(o.behaviours)
	o.behaviours = append(o.behaviours, b)
}

func (o *Object) Behaviours() []Behaviour { return o.behaviours }

// Behaviour returns the behaviour at a component index.
func (o *Object) Behaviour(index int32) (Behaviour, bool) {
	if index < 0 || int(index) >= len(o.behaviours) {
		return nil, false
	}
	return o.behaviours[index], true
}

func (o *Object) IsScene() bool    { return o.Prefab == PrefabScene }
func (o *Object) IsPlayer() bool   { return o.Prefab == PrefabPlayer }
func (o *Object) Registered() bool { return o.registry != nil && !o.destroyed }
func (o *Object) Destroyed() bool  { return o.destroyed }

// Find returns the first behaviour of type T on o.
func Find[T Behaviour](o *Object) (T, bool) {
	for _, b := range o.behaviours {
		if t, ok := b.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}
