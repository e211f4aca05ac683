package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/quarryline/netsync/internal/core/event"
	"github.com/quarryline/netsync/internal/net"
	"github.com/quarryline/netsync/internal/net/packet"
	"github.com/quarryline/netsync/internal/persist"
	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/replica"
)

const (
	prefabCrate  int32 = 0
	prefabPlayer int32 = 1

	tickDT = 50 * time.Millisecond
)

type avatar struct {
	replica.Base
	HP *replica.NetVar[int32]
	X  *replica.NetVar[float32]
}

func newAvatar() replica.Behaviour {
	a := &avatar{
		HP: replica.Int32("hp", 100),
		X:  replica.Float32("x", 0).OwnerWritable(),
	}
	a.Track(a.HP, a.X)
	return a
}

type counter struct {
	replica.Base
	N    *replica.NetVar[int32]
	seen []int32
}

func newCounter() replica.Behaviour {
	c := &counter{N: replica.Int32("n", 0)}
	c.N.OnChange(func(_, cur int32) { c.seen = append(c.seen, cur) })
	c.Track(c.N)
	return c
}

func newCatalog(t *testing.T) *replica.Catalog {
	t.Helper()
	cat, err := replica.NewCatalog(
		[]replica.PrefabDef{
			{Name: "crate", Behaviours: []string{"counter"}},
			{Name: "player", Behaviours: []string{"avatar"}},
		},
		map[string]replica.BehaviourFactory{"counter": newCounter, "avatar": newAvatar},
		"player",
	)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return cat
}

func newProtocol() *protocol.Registry {
	reg := protocol.NewRegistry()
	protocol.RegisterCore(reg)
	return reg
}

func lampKey(scene int32) string { return fmt.Sprintf("scene-%d/lamp", scene) }

// lampScenes places one counter object per scene.
func lampScenes() SceneLoader {
	return SceneLoaderFunc(func(ctx context.Context, scene int32, objects *replica.Registry) error {
		_, err := objects.RegisterScene(ctx, replica.NewObject("lamp", newCounter()), lampKey(scene))
		return err
	})
}

// asyncLoader finishes immediately when auto is set, otherwise waits for finish.
type asyncLoader struct {
	auto    bool
	pending func(error)
	scenes  []int32
}

func (l *asyncLoader) LoadScene(ctx context.Context, scene int32, objects *replica.Registry, done func(error)) {
	l.scenes = append(l.scenes, scene)
	if l.auto {
		done(nil)
		return
	}
	l.pending = done
}

func (l *asyncLoader) finish() {
	if l.pending != nil {
		done := l.pending
		l.pending = nil
		done(nil)
	}
}

type stepper interface {
	BeginTick(time.Duration)
	PollTransport()
	ReceiveAll()
	RunDeferred()
	PostUpdate()
	Replicate()
	Flush()
	Bus() *event.Bus
}

// step runs one tick in phase order.
func step(s stepper) {
	s.BeginTick(tickDT)
	s.PollTransport()
	s.ReceiveAll()
	s.Bus().SwapBuffers()
	s.Bus().DispatchAll()
	s.RunDeferred()
	s.PostUpdate()
	s.Replicate()
	s.Flush()
}

type rig struct {
	t       *testing.T
	lb      *net.Loopback
	store   *persist.MemoryStore
	host    *Host
	clients []*Client
}

func newRig(t *testing.T, mod func(*HostOptions)) *rig {
	t.Helper()
	lb := net.NewLoopback()
	store := persist.NewMemoryStore()
	opts := HostOptions{
		Options: Options{
			Transport: lb.Host(),
			Protocol:  newProtocol(),
			Objects: replica.NewRegistry(replica.Options{
				Role: protocol.RoleHost, Local: 1, Store: store, Catalog: newCatalog(t),
			}),
		},
		Loader: lampScenes(),
	}
	if mod != nil {
		mod(&opts)
	}
	h := NewHost(opts)
	if err := h.Start(1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return &rig{t: t, lb: lb, store: store, host: h}
}

func (r *rig) join(id protocol.Identity, mod func(*ClientOptions)) *Client {
	r.t.Helper()
	ep, conn := r.lb.Dial()
	opts := ClientOptions{
		Options: Options{
			Transport: ep,
			Protocol:  newProtocol(),
			Objects: replica.NewRegistry(replica.Options{
				Role: protocol.RoleClient, Local: id, Store: r.store, Catalog: newCatalog(r.t),
			}),
		},
		HostConn: conn,
		Name:     fmt.Sprintf("p%d", id),
		Loader:   lampScenes(),
	}
	if mod != nil {
		mod(&opts)
	}
	c := NewClient(opts)
	if err := c.Connect(); err != nil {
		r.t.Fatalf("Connect: %v", err)
	}
	r.clients = append(r.clients, c)
	return c
}

func (r *rig) tick(n int) {
	for i := 0; i < n; i++ {
		step(r.host)
		for _, c := range r.clients {
			step(c)
		}
	}
}

func (r *rig) settle() { r.tick(6) }

func find[T replica.Behaviour](t *testing.T, reg *replica.Registry, netID int32) T {
	t.Helper()
	obj, ok := reg.Lookup(netID)
	if !ok {
		t.Fatalf("object %d not registered", netID)
	}
	b, ok := replica.Find[T](obj)
	if !ok {
		t.Fatalf("object %d lacks behaviour", netID)
	}
	return b
}

func sceneLamp(t *testing.T, reg *replica.Registry) *counter {
	t.Helper()
	for obj := range reg.SceneObjects() {
		if c, ok := replica.Find[*counter](obj); ok {
			return c
		}
	}
	t.Fatal("no scene lamp registered")
	return nil
}

func playerOf(t *testing.T, reg *replica.Registry, id protocol.Identity) *replica.Object {
	t.Helper()
	obj, ok := reg.PlayerOf(id)
	if !ok {
		t.Fatalf("no player for identity %d", id)
	}
	return obj
}

func counterUpdate(netID, component, value int32) *protocol.NetVarUpdate {
	w := packet.NewWriter()
	w.WriteD(value)
	m := &protocol.NetVarUpdate{Mask: 1, Fields: w.Bytes()}
	m.Object = netID
	m.Component = component
	return m
}

func marshal(t *testing.T, reg *protocol.Registry, m protocol.Message) []byte {
	t.Helper()
	raw, _, err := reg.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return raw
}

func decodeAll(t *testing.T, reg *protocol.Registry, raws [][]byte) []protocol.Message {
	t.Helper()
	var out []protocol.Message
	for _, raw := range raws {
		m, _, err := reg.Decode(raw)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		out = append(out, m)
	}
	return out
}
