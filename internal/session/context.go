// Package session is the explicit per-session networking context: peers,
// the tag-keyed dispatch table, the outbox, the deferred-task queue and the
// Host and Client roles built on them. Everything here runs on the single
// tick goroutine; transports marshal their I/O onto it through Poll and
// Receive.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/quarryline/netsync/internal/core/event"
	"github.com/quarryline/netsync/internal/metrics"
	"github.com/quarryline/netsync/internal/net"
	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/replica"
	"go.uber.org/zap"
)

var (
	ErrNotAdmitted = errors.New("peer not admitted")
	ErrNoPeer      = errors.New("no such peer")
)

// DefaultMaxMessagesPerTick bounds how many messages one peer may have
// dispatched per tick.
const DefaultMaxMessagesPerTick = 64

// Inbound is one decoded message on its way to a handler. Object and
// Behaviour are resolved for object and component kinds.
type Inbound struct {
	From      *Peer
	Msg       protocol.Message
	Spec      *protocol.Spec
	Object    *replica.Object
	Behaviour replica.Behaviour
}

// HandlerFunc handles one message kind.
type HandlerFunc func(s *Context, in *Inbound)

type Options struct {
	Role      protocol.Role
	Transport net.Transport
	Protocol  *protocol.Registry
	Objects   *replica.Registry
	Bus       *event.Bus
	Metrics   *metrics.Metrics

	MaxMessagesPerTick int

	// BaseContext bounds store lookups made while loading scenes.
	BaseContext context.Context
	Log         *zap.Logger
}

type outbound struct {
	raw       []byte
	name      string
	reliable  bool
	to        *Peer // nil = broadcast
	except    *Peer
	broadcast bool
}

type deferredTask struct {
	due  uint64
	name string
	fn   func()
}

// Context is one session's networking state. It replaces process-wide
// singletons: every entry point receives it explicitly, and several may
// coexist in one process.
type Context struct {
	role      protocol.Role
	transport net.Transport
	proto     *protocol.Registry
	objects   *replica.Registry
	bus       *event.Bus
	metrics   *metrics.Metrics
	base      context.Context
	log       *zap.Logger

	handlers [256]HandlerFunc

	peers map[net.ConnID]*Peer
	order []*Peer

	outbox   []outbound
	deferred []deferredTask

	tick       uint64
	elapsed    time.Duration
	maxPerTick int

	// Installed by the role. gate rejects messages before routing; hold
	// diverts messages (the client's loading buffer).
	gate func(p *Peer, spec *protocol.Spec) bool
	hold func(p *Peer, msg protocol.Message, spec *protocol.Spec) bool
}

func newContext(opts Options) *Context {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.MaxMessagesPerTick <= 0 {
		opts.MaxMessagesPerTick = DefaultMaxMessagesPerTick
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Bus == nil {
		opts.Bus = event.NewBus()
	}
	return &Context{
		role:       opts.Role,
		transport:  opts.Transport,
		proto:      opts.Protocol,
		objects:    opts.Objects,
		bus:        opts.Bus,
		metrics:    opts.Metrics,
		base:       opts.BaseContext,
		log:        opts.Log.With(zap.Stringer("role", opts.Role)),
		peers:      make(map[net.ConnID]*Peer),
		maxPerTick: opts.MaxMessagesPerTick,
	}
}

func (c *Context) Role() protocol.Role          { return c.role }
func (c *Context) Local() protocol.Identity     { return c.objects.Local() }
func (c *Context) Objects() *replica.Registry   { return c.objects }
func (c *Context) Protocol() *protocol.Registry { return c.proto }
func (c *Context) Bus() *event.Bus              { return c.bus }
func (c *Context) Metrics() *metrics.Metrics    { return c.metrics }
func (c *Context) Log() *zap.Logger             { return c.log }
func (c *Context) Tick() uint64                 { return c.tick }
func (c *Context) Elapsed() time.Duration       { return c.elapsed }

// Handle installs the handler for tag. Installing two handlers for one tag
// is a programming error.
func (c *Context) Handle(tag protocol.Tag, fn HandlerFunc) {
	if c.handlers[tag] != nil {
		panic(fmt.Sprintf("session: handler for %s installed twice", c.proto.Name(tag)))
	}
	c.handlers[tag] = fn
}

// Peer returns the live peer on conn.
func (c *Context) Peer(conn net.ConnID) (*Peer, bool) {
	p, ok := c.peers[conn]
	return p, ok
}

// PeerByIdentity returns the joined peer with the given identity.
func (c *Context) PeerByIdentity(id protocol.Identity) (*Peer, bool) {
	for _, p := range c.order {
		if p.Joined() && p.Identity == id {
			return p, true
		}
	}
	return nil, false
}

// Peers enumerates live peers in connection order.
func (c *Context) Peers() iter.Seq[*Peer] {
	order := c.order
	return func(yield func(*Peer) bool) {
		for _, p := range order {
			if p.Alive() && !yield(p) {
				return
			}
		}
	}
}

// PeerCount returns the number of live peers.
func (c *Context) PeerCount() int { return len(c.peers) }

func (c *Context) addPeer(p *Peer) {
	c.peers[p.Conn] = p
	c.order = append(c.order, p)
	c.metrics.SetPeers(len(c.peers))
}

// dropPeer forgets p and closes its connection. Nothing from p is
// dispatched afterwards, including the rest of a batch being processed.
func (c *Context) dropPeer(p *Peer) {
	if p.closed {
		return
	}
	p.closed = true
	delete(c.peers, p.Conn)
	c.order = slices.DeleteFunc(slices.Clone(c.order), func(o *Peer) bool { return o == p })
	if err := c.transport.Close(p.Conn); err != nil && !errors.Is(err, net.ErrUnknownConn) {
		p.log.Debug("close connection", zap.Error(err))
	}
	c.metrics.SetPeers(len(c.peers))
}

// BeginTick advances the tick counter and session clock.
func (c *Context) BeginTick(dt time.Duration) {
	c.tick++
	c.elapsed += dt
}

// Defer schedules fn to run in the deferred phase ticks ticks from now.
// A zero delay still waits for the next deferred phase.
func (c *Context) Defer(ticks int, name string, fn func()) {
	if ticks < 1 {
		ticks = 1
	}
	c.deferred = append(c.deferred, deferredTask{due: c.tick + uint64(ticks), name: name, fn: fn})
}

// PendingDeferred returns the number of scheduled tasks.
func (c *Context) PendingDeferred() int { return len(c.deferred) }

// RunDeferred runs every task that is due, in scheduling order. Tasks
// scheduled while running wait for a later tick.
func (c *Context) RunDeferred() {
	if len(c.deferred) == 0 {
		return
	}
	tasks := c.deferred
	c.deferred = nil
	for _, t := range tasks {
		if t.due > c.tick {
			c.deferred = append(c.deferred, t)
			continue
		}
		c.log.Debug("deferred task", zap.String("task", t.name), zap.Uint64("tick", c.tick))
		c.safeRun(t.name, t.fn)
	}
}

// ReceiveAll drains each peer's inbound batch and dispatches it in order.
func (c *Context) ReceiveAll() {
	for _, p := range slices.Clone(c.order) {
		if !p.Alive() {
			continue
		}
		for _, raw := range c.transport.Receive(p.Conn, c.maxPerTick) {
			c.Dispatch(p, raw)
		}
	}
}

// Dispatch runs one raw message through the pipeline: peer validity,
// decode, filter, role gate, hold, resolve, handler. Every failure drops
// this message only.
func (c *Context) Dispatch(p *Peer, raw []byte) {
	if !p.Alive() {
		c.metrics.Dropped(metrics.ReasonDeadPeer)
		return
	}
	msg, spec, err := c.proto.Decode(raw)
	if err != nil {
		reason := metrics.ReasonDecode
		if errors.Is(err, protocol.ErrUnknownTag) {
			reason = metrics.ReasonUnknownTag
		}
		p.log.Warn("dropping undecodable message", zap.Int("len", len(raw)), zap.Error(err))
		c.metrics.Dropped(reason)
		return
	}
	c.metrics.Received(spec.Name)

	if !spec.Filter.Allows(c.role) {
		p.log.Warn("dropping message not meant for this role",
			zap.String("msg", spec.Name),
			zap.Stringer("filter", spec.Filter),
		)
		c.metrics.Dropped(metrics.ReasonFilter)
		return
	}
	if c.gate != nil && !c.gate(p, spec) {
		return
	}
	if c.hold != nil && c.hold(p, msg, spec) {
		return
	}
	c.route(p, msg, spec)
}

func (c *Context) route(p *Peer, msg protocol.Message, spec *protocol.Spec) {
	in := &Inbound{From: p, Msg: msg, Spec: spec}

	if spec.Kind != protocol.KindControl {
		om, ok := msg.(protocol.ObjectMessage)
		if !ok {
			p.log.Warn("object message without object header", zap.String("msg", spec.Name))
			c.metrics.Dropped(metrics.ReasonDecode)
			return
		}
		obj, ok := c.objects.Lookup(om.ObjectID())
		if !ok {
			// Benign race: the object may have been destroyed in flight.
			p.log.Debug("target object not found", zap.String("msg", spec.Name), zap.Int32("net_id", om.ObjectID()))
			c.metrics.Dropped(metrics.ReasonUnresolved)
			return
		}
		in.Object = obj

		if spec.Kind == protocol.KindComponent {
			cm, ok := msg.(protocol.ComponentMessage)
			if !ok {
				p.log.Warn("component message without component header", zap.String("msg", spec.Name))
				c.metrics.Dropped(metrics.ReasonDecode)
				return
			}
			b, ok := obj.Behaviour(cm.ComponentIndex())
			if !ok {
				p.log.Warn("component index out of range",
					zap.String("msg", spec.Name),
					zap.Int32("net_id", obj.NetID),
					zap.Int32("component", cm.ComponentIndex()),
					zap.Int("components", len(obj.Behaviours())),
				)
				c.metrics.Dropped(metrics.ReasonComponent)
				return
			}
			in.Behaviour = b
		}
	}

	h := c.handlers[spec.Tag]
	if h == nil {
		p.log.Warn("no handler for message", zap.String("msg", spec.Name))
		c.metrics.Dropped(metrics.ReasonNoHandler)
		return
	}
	c.safeCall(h, in)
}

// safeCall runs a handler with panic recovery so one bad message cannot
// stop the tick.
func (c *Context) safeCall(h HandlerFunc, in *Inbound) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler panic",
				zap.String("msg", in.Spec.Name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			c.metrics.Dropped(metrics.ReasonPanic)
		}
	}()
	h(c, in)
}

func (c *Context) safeRun(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("deferred task panic", zap.String("task", name), zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Send queues msg for one peer. The outbox is written in the output phase,
// in queue order.
func (c *Context) Send(p *Peer, msg protocol.Message) error {
	if !p.Alive() {
		return ErrNoPeer
	}
	return c.enqueue(msg, p, nil, false)
}

// Broadcast queues msg for every joined peer.
func (c *Context) Broadcast(msg protocol.Message) error {
	return c.enqueue(msg, nil, nil, true)
}

// BroadcastExcept queues msg for every joined peer other than except.
func (c *Context) BroadcastExcept(msg protocol.Message, except *Peer) error {
	return c.enqueue(msg, nil, except, true)
}

func (c *Context) enqueue(msg protocol.Message, to, except *Peer, broadcast bool) error {
	raw, spec, err := c.proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if len(raw) > net.MaxFrameSize {
		return fmt.Errorf("marshal %s: %d bytes exceeds frame size", spec.Name, len(raw))
	}
	c.outbox = append(c.outbox, outbound{
		raw:       raw,
		name:      spec.Name,
		reliable:  spec.Reliable,
		to:        to,
		except:    except,
		broadcast: broadcast,
	})
	return nil
}

// Outbox returns the number of queued outbound messages.
func (c *Context) Outbox() int { return len(c.outbox) }

// Flush writes the outbox to the transport.
func (c *Context) Flush() {
	if len(c.outbox) == 0 {
		return
	}
	out := c.outbox
	c.outbox = nil
	for _, m := range out {
		if !m.broadcast {
			if !m.to.Alive() {
				continue
			}
			c.write(m.to, m)
			continue
		}
		if m.except == nil && c.allJoined() {
			if err := c.transport.Broadcast(m.raw, m.reliable); err != nil {
				c.log.Debug("broadcast failed", zap.String("msg", m.name), zap.Error(err))
			}
			c.metrics.Sent(m.name)
			continue
		}
		for _, p := range c.order {
			if p == m.except || !p.Joined() {
				continue
			}
			c.write(p, m)
		}
	}
}

func (c *Context) write(p *Peer, m outbound) {
	if err := c.transport.Send(p.Conn, m.raw, m.reliable); err != nil {
		p.log.Debug("send failed", zap.String("msg", m.name), zap.Error(err))
		return
	}
	c.metrics.Sent(m.name)
}

func (c *Context) allJoined() bool {
	for _, p := range c.order {
		if !p.Joined() {
			return false
		}
	}
	return true
}

// Replicate flushes every dirty behaviour into a NetVarUpdate for all
// joined peers. On a client only owner-writable fields can be dirty, and the
// only peer is the host.
func (c *Context) Replicate() {
	for obj := range c.objects.All() {
		for _, b := range obj.Behaviours() {
			upd, ok := b.NetBase().DirtyUpdate()
			if !ok {
				continue
			}
			if err := c.Broadcast(upd); err != nil {
				c.log.Error("queue NetVarUpdate", zap.Int32("net_id", obj.NetID), zap.Error(err))
			}
		}
	}
}

// RefreshGauges publishes registry and peer sizes.
func (c *Context) RefreshGauges() {
	c.metrics.SetObjects(c.objects.Len())
	c.metrics.SetPeers(len(c.peers))
}

// Teardown closes every peer and destroys every object.
func (c *Context) Teardown() {
	c.Flush()
	for _, p := range slices.Clone(c.order) {
		c.dropPeer(p)
	}
	c.objects.Clear()
	c.deferred = nil
	if err := c.transport.Shutdown(); err != nil {
		c.log.Debug("transport shutdown", zap.Error(err))
	}
}

// kick flushes what was queued, tells p why it is being dropped and closes it.
func (c *Context) kick(p *Peer, reason string) {
	c.Flush()
	raw, spec, err := c.proto.Marshal(&protocol.Disconnect{Reason: reason})
	if err == nil {
		if err := c.transport.Send(p.Conn, raw, true); err == nil {
			c.metrics.Sent(spec.Name)
		}
	}
	c.dropPeer(p)
}
