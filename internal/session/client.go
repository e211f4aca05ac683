package session

import (
	"errors"
	"fmt"

	"github.com/quarryline/netsync/internal/core/event"
	"github.com/quarryline/netsync/internal/net"
	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/replica"
	"go.uber.org/zap"
)

type ClientState int

const (
	ClientDisconnected ClientState = iota
	ClientConnecting
	ClientConnected
)

func (s ClientState) String() string {
	switch s {
	case ClientDisconnected:
		return "disconnected"
	case ClientConnecting:
		return "connecting"
	case ClientConnected:
		return "connected"
	}
	return fmt.Sprintf("ClientState(%d)", int(s))
}

type ClientOptions struct {
	Options
	HostConn net.ConnID
	Name     string
	Password string
	Loader   SceneLoader // default EmptyScenes
}

type heldMessage struct {
	msg  protocol.Message
	spec *protocol.Spec
}

// Client is the non-authoritative role. While a scene loads it holds
// object-targeted messages in arrival order and replays them one tick after
// the load completes.
type Client struct {
	*Context

	host     *Peer
	state    ClientState
	loader   SceneLoader
	name     string
	password string

	ignoreObjectUpdates bool
	held                []heldMessage

	scene      int32
	loadSeq    uint64
	loadedSent bool
}

func NewClient(opts ClientOptions) *Client {
	opts.Role = protocol.RoleClient
	if opts.Loader == nil {
		opts.Loader = EmptyScenes
	}
	c := &Client{
		Context:  newContext(opts.Options),
		loader:   opts.Loader,
		name:     opts.Name,
		password: opts.Password,
	}
	c.host = newPeer(opts.HostConn, "host", c.log)
	c.addPeer(c.host)
	c.hold = c.holdObjectMessage

	c.Handle(protocol.TagSceneChange, c.onSceneChange)
	c.Handle(protocol.TagSpawnPrefab, c.onSpawnPrefab)
	c.Handle(protocol.TagDestroyObject, c.onDestroyObject)
	c.Handle(protocol.TagDisconnect, c.onDisconnect)
	c.Handle(protocol.TagNetVarUpdate, c.onNetVarUpdate)
	return c
}

func (c *Client) State() ClientState { return c.state }
func (c *Client) Scene() int32       { return c.scene }
func (c *Client) HostPeer() *Peer    { return c.host }

// IgnoringObjectUpdates reports whether object messages are being held.
func (c *Client) IgnoringObjectUpdates() bool { return c.ignoreObjectUpdates }

// Paused reports whether local gameplay should stand still: not connected
// yet, or a scene is loading and object updates are held.
func (c *Client) Paused() bool { return c.state != ClientConnected || c.ignoreObjectUpdates }

// Held returns the number of object messages waiting for replay.
func (c *Client) Held() int { return len(c.held) }

// Connect introduces this client to the host. The client becomes connected
// when the host sends the first SceneChange.
func (c *Client) Connect() error {
	if c.state != ClientDisconnected || !c.host.Alive() {
		return fmt.Errorf("connect: client %s", c.state)
	}
	c.state = ClientConnecting
	return c.Send(c.host, &protocol.Hello{Identity: c.Local(), Name: c.name, Password: c.password})
}

// Leave tells the host this client is going and tears the session down.
func (c *Client) Leave(reason string) {
	if c.host.Alive() {
		c.Send(c.host, &protocol.Disconnect{Reason: reason})
		c.Flush()
	}
	c.lost(reason)
	c.Teardown()
}

// PollTransport notices the host going away.
func (c *Client) PollTransport() {
	for _, ev := range c.transport.Poll() {
		switch ev.Kind {
		case net.EventConnClosed:
			if ev.Conn == c.host.Conn {
				c.lost("connection closed")
			}
		case net.EventConnRequested:
			c.transport.Close(ev.Conn)
		}
	}
}

// PostUpdate exists so both roles share one system layout.
func (c *Client) PostUpdate() {}

func (c *Client) holdObjectMessage(_ *Peer, msg protocol.Message, spec *protocol.Spec) bool {
	if !c.ignoreObjectUpdates || spec.Kind == protocol.KindControl {
		return false
	}
	c.held = append(c.held, heldMessage{msg: msg, spec: spec})
	c.metrics.SetBuffered(len(c.held))
	c.log.Debug("holding object message while loading", zap.String("msg", spec.Name), zap.Int("held", len(c.held)))
	return true
}

func (c *Client) onSceneChange(_ *Context, in *Inbound) {
	m := in.Msg.(*protocol.SceneChange)
	if c.state == ClientConnecting {
		c.state = ClientConnected
		c.host.State = PeerConnected
		c.log.Info("connected to host")
	}

	c.ignoreObjectUpdates = true
	c.loadedSent = false
	c.scene = m.Scene
	c.loadSeq++
	seq := c.loadSeq

	purged := c.objects.PurgeScene()
	c.log.Info("loading scene", zap.Int32("scene", m.Scene), zap.Int("purged", purged))
	event.Emit(c.bus, event.SceneChanged{Scene: m.Scene})

	c.loader.LoadScene(c.base, m.Scene, c.objects, func(err error) {
		if seq != c.loadSeq {
			return
		}
		if err != nil {
			c.log.Error("scene load failed", zap.Int32("scene", m.Scene), zap.Error(err))
		}
		c.Defer(1, "finish-loading-next-tick", func() { c.finishLoading(seq) })
	})
}

// finishLoading stops holding, replays held messages in arrival order and
// reports LoadedIn when this client's player already exists.
func (c *Client) finishLoading(seq uint64) {
	if seq != c.loadSeq {
		return
	}
	c.ignoreObjectUpdates = false
	held := c.held
	c.held = nil
	c.metrics.SetBuffered(0)
	for _, h := range held {
		if !c.host.Alive() {
			break
		}
		c.route(c.host, h.msg, h.spec)
	}
	c.log.Debug("scene loaded", zap.Int32("scene", c.scene), zap.Int("replayed", len(held)))
	c.signalLoaded()
}

func (c *Client) signalLoaded() {
	if c.loadedSent || c.ignoreObjectUpdates || !c.host.Joined() {
		return
	}
	if _, ok := c.objects.PlayerOf(c.Local()); !ok {
		return
	}
	c.Send(c.host, &protocol.LoadedIn{})
	c.loadedSent = true
}

func (c *Client) onSpawnPrefab(_ *Context, in *Inbound) {
	m := in.Msg.(*protocol.SpawnPrefab)
	if existing, ok := c.objects.Lookup(m.NetID); ok {
		if existing.Prefab == m.Prefab && existing.Owner == m.Owner {
			c.log.Debug("spawn of existing object", zap.Int32("net_id", m.NetID))
		} else {
			c.log.Warn("spawn collides with live object",
				zap.Int32("net_id", m.NetID),
				zap.Int32("prefab", m.Prefab),
				zap.Int32("live_prefab", existing.Prefab),
			)
		}
		return
	}
	obj, err := c.objects.SpawnFromPrefab(m.Prefab, m.Owner, m.NetID)
	if err != nil {
		if errors.Is(err, replica.ErrUnknownPrefab) {
			c.log.Warn("spawn of unknown prefab", zap.Int32("prefab", m.Prefab), zap.Int32("net_id", m.NetID))
		} else {
			c.log.Warn("spawn failed", zap.Int32("net_id", m.NetID), zap.Error(err))
		}
		return
	}
	event.Emit(c.bus, event.ObjectSpawned{NetID: obj.NetID, Prefab: obj.Prefab, Owner: obj.Owner})
	if obj.IsPlayer() && obj.Owner == c.Local() {
		c.host.Player = obj
		c.signalLoaded()
	}
}

func (c *Client) onDestroyObject(_ *Context, in *Inbound) {
	m := in.Msg.(*protocol.DestroyObject)
	if !c.objects.Destroy(m.NetID) {
		c.log.Debug("destroy of unknown object", zap.Int32("net_id", m.NetID))
		return
	}
	event.Emit(c.bus, event.ObjectDestroyed{NetID: m.NetID})
}

func (c *Client) onDisconnect(_ *Context, in *Inbound) {
	m := in.Msg.(*protocol.Disconnect)
	c.log.Info("disconnected by host", zap.String("reason", m.Reason))
	c.lost(m.Reason)
}

func (c *Client) onNetVarUpdate(_ *Context, in *Inbound) {
	m := in.Msg.(*protocol.NetVarUpdate)
	if _, err := in.Behaviour.NetBase().Apply(m); err != nil {
		c.log.Warn("malformed NetVarUpdate",
			zap.Int32("net_id", m.Object),
			zap.Int32("component", m.Component),
			zap.Error(err),
		)
	}
}

func (c *Client) lost(reason string) {
	if c.state == ClientDisconnected && !c.host.Alive() {
		return
	}
	c.state = ClientDisconnected
	c.ignoreObjectUpdates = false
	c.held = nil
	c.metrics.SetBuffered(0)
	c.dropPeer(c.host)
	event.Emit(c.bus, event.PeerDisconnected{Conn: uint64(c.host.Conn), Reason: reason})
}
