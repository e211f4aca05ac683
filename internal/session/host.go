package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/quarryline/netsync/internal/core/event"
	"github.com/quarryline/netsync/internal/metrics"
	"github.com/quarryline/netsync/internal/net"
	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/replica"
	"go.uber.org/zap"
)

type HostState int

const (
	HostIdle HostState = iota
	HostListening
	HostStopped
)

func (s HostState) String() string {
	switch s {
	case HostIdle:
		return "idle"
	case HostListening:
		return "listening"
	case HostStopped:
		return "stopped"
	}
	return fmt.Sprintf("HostState(%d)", int(s))
}

// SceneState is the host's scene-load cycle.
type SceneState int

const (
	SceneStable SceneState = iota
	SceneBroadcastingChange
	SceneWaitingForPeers
)

func (s SceneState) String() string {
	switch s {
	case SceneStable:
		return "stable"
	case SceneBroadcastingChange:
		return "broadcasting-change"
	case SceneWaitingForPeers:
		return "waiting-for-peers"
	}
	return fmt.Sprintf("SceneState(%d)", int(s))
}

type HostOptions struct {
	Options
	Admission              Admission   // default AcceptAll
	Loader                 SceneLoader // default EmptyScenes
	LoadingTimeout         time.Duration
	HelloTimeout           time.Duration // 0 lets a silent connection wait forever
	KeepPlayerOnDisconnect bool
}

// Host is the authoritative role: it admits peers, owns canonical objects,
// bootstraps joiners with a snapshot and gates time on scene loads.
type Host struct {
	*Context

	admission      Admission
	loader         SceneLoader
	loadingTimeout time.Duration
	helloTimeout   time.Duration
	keepPlayers    bool

	state    HostState
	scene    SceneState
	current  int32
	sceneSeq uint64
}

func NewHost(opts HostOptions) *Host {
	opts.Role = protocol.RoleHost
	if opts.Admission == nil {
		opts.Admission = AcceptAll{}
	}
	if opts.Loader == nil {
		opts.Loader = EmptyScenes
	}
	h := &Host{
		Context:        newContext(opts.Options),
		admission:      opts.Admission,
		loader:         opts.Loader,
		loadingTimeout: opts.LoadingTimeout,
		helloTimeout:   opts.HelloTimeout,
		keepPlayers:    opts.KeepPlayerOnDisconnect,
	}
	h.gate = h.admit
	h.Handle(protocol.TagHello, h.onHello)
	h.Handle(protocol.TagLoadedIn, h.onLoadedIn)
	h.Handle(protocol.TagDisconnect, h.onDisconnect)
	h.Handle(protocol.TagNetVarUpdate, h.onNetVarUpdate)
	return h
}

func (h *Host) State() HostState       { return h.state }
func (h *Host) SceneState() SceneState { return h.scene }
func (h *Host) Scene() int32           { return h.current }

// Paused reports whether gameplay time should stand still: a scene change is
// in flight or peers are still loading it. system.GameplaySystem honours it.
func (h *Host) Paused() bool { return h.scene != SceneStable }

// Start begins listening and loads the first scene. When the local identity
// is set, the host gets its own player object.
func (h *Host) Start(scene int32) error {
	if h.state != HostIdle {
		return fmt.Errorf("host already %s", h.state)
	}
	h.state = HostListening
	if h.Local() != protocol.NoIdentity && h.objects.Catalog() != nil {
		if _, ok := h.objects.PlayerOf(h.Local()); !ok {
			if _, err := h.objects.SpawnFromPrefab(replica.PrefabPlayer, h.Local(), 0); err != nil {
				return fmt.Errorf("spawn host player: %w", err)
			}
		}
	}
	h.log.Info("host started", zap.Int32("scene", scene))
	return h.ChangeScene(scene)
}

// Stop kicks every peer and tears the session down.
func (h *Host) Stop(reason string) {
	if h.state == HostStopped {
		return
	}
	for p := range h.Peers() {
		h.kick(p, reason)
	}
	h.Teardown()
	h.state = HostStopped
	h.log.Info("host stopped", zap.String("reason", reason))
}

// PollTransport accepts connection requests and reaps closed connections.
func (h *Host) PollTransport() {
	for _, ev := range h.transport.Poll() {
		switch ev.Kind {
		case net.EventConnRequested:
			if h.state != HostListening {
				h.transport.Close(ev.Conn)
				continue
			}
			if err := h.transport.Accept(ev.Conn); err != nil {
				h.log.Warn("accept failed", zap.Uint64("conn", uint64(ev.Conn)), zap.Error(err))
				continue
			}
			p := newPeer(ev.Conn, ev.Addr, h.log)
			p.connectedAt = h.elapsed
			h.addPeer(p)
			p.log.Info("peer connecting", zap.String("addr", ev.Addr))
		case net.EventConnClosed:
			if p, ok := h.peers[ev.Conn]; ok {
				h.removePeer(p, "connection closed", false)
			}
		}
	}
}

// admit only lets Hello and Disconnect through before a peer has joined.
func (h *Host) admit(p *Peer, spec *protocol.Spec) bool {
	switch {
	case p.State == PeerConnected && spec.Tag == protocol.TagHello:
		p.log.Warn("duplicate Hello")
	case p.State != PeerConnected && spec.Tag != protocol.TagHello && spec.Tag != protocol.TagDisconnect:
		p.log.Warn("message before Hello", zap.String("msg", spec.Name))
	default:
		return true
	}
	h.metrics.Dropped(metrics.ReasonFilter)
	return false
}

func (h *Host) onHello(_ *Context, in *Inbound) {
	m := in.Msg.(*protocol.Hello)
	p := in.From

	if err := h.admission.Admit(m); err != nil {
		p.log.Info("peer rejected", zap.Uint64("identity", uint64(m.Identity)), zap.Error(err))
		h.kick(p, "not admitted")
		return
	}
	if _, taken := h.PeerByIdentity(m.Identity); taken || m.Identity == h.Local() {
		p.log.Info("peer rejected: identity in use", zap.Uint64("identity", uint64(m.Identity)))
		h.kick(p, "identity in use")
		return
	}

	p.Identity = m.Identity
	p.Name = m.Name
	p.State = PeerConnected
	p.log = p.log.With(zap.Uint64("identity", uint64(p.Identity)))
	h.join(p)
}

// join spawns or reuses the peer's player, sends the current scene and then
// the snapshot. Spawns precede state so the remote can allocate first.
func (h *Host) join(p *Peer) {
	player, reused := h.objects.PlayerOf(p.Identity)
	if !reused {
		var err error
		player, err = h.objects.SpawnFromPrefab(replica.PrefabPlayer, p.Identity, 0)
		if err != nil {
			p.log.Error("cannot spawn player", zap.Error(err))
			h.kick(p, "server full")
			return
		}
		for _, m := range SpawnMessages(player) {
			h.BroadcastExcept(m, p)
		}
		event.Emit(h.bus, event.ObjectSpawned{NetID: player.NetID, Prefab: player.Prefab, Owner: player.Owner})
	}
	p.Player = player

	h.Send(p, &protocol.SceneChange{Scene: h.current})
	p.Loading = true
	p.loadingSince = h.elapsed
	n := h.sendSnapshot(p)

	p.log.Info("peer joined",
		zap.String("name", p.Name),
		zap.Int32("player", player.NetID),
		zap.Bool("reused_player", reused),
		zap.Int("snapshot_objects", n),
	)
	event.Emit(h.bus, event.PeerConnected{Conn: uint64(p.Conn), Identity: p.Identity, Name: p.Name})
}

func (h *Host) onLoadedIn(_ *Context, in *Inbound) {
	p := in.From
	if !p.Loading {
		p.log.Debug("LoadedIn while not loading")
		return
	}
	p.Loading = false
	p.log.Info("peer finished loading", zap.Int32("scene", h.current))
	event.Emit(h.bus, event.PeerLoaded{Conn: uint64(p.Conn), Identity: p.Identity})
}

func (h *Host) onDisconnect(_ *Context, in *Inbound) {
	m := in.Msg.(*protocol.Disconnect)
	h.removePeer(in.From, m.Reason, false)
}

// onNetVarUpdate accepts owner-writable fields from the owning peer, applies
// them and relays them to everyone else.
func (h *Host) onNetVarUpdate(_ *Context, in *Inbound) {
	m := in.Msg.(*protocol.NetVarUpdate)
	base := in.Behaviour.NetBase()
	if err := base.CheckSender(m.Mask, in.From.Identity); err != nil {
		in.From.log.Warn("rejecting NetVarUpdate",
			zap.Int32("net_id", m.Object),
			zap.Int32("component", m.Component),
			zap.Error(err),
		)
		h.metrics.Dropped(metrics.ReasonAuthority)
		return
	}
	if _, err := base.Apply(m); err != nil {
		in.From.log.Warn("malformed NetVarUpdate", zap.Int32("net_id", m.Object), zap.Error(err))
		h.metrics.Dropped(metrics.ReasonDecode)
		return
	}
	h.BroadcastExcept(m, in.From)
}

// Kick disconnects a peer with a reason.
func (h *Host) Kick(conn net.ConnID, reason string) error {
	p, ok := h.peers[conn]
	if !ok {
		return ErrNoPeer
	}
	h.removePeer(p, reason, true)
	return nil
}

func (h *Host) removePeer(p *Peer, reason string, notify bool) {
	if !p.Alive() {
		return
	}
	joined := p.Joined()
	if notify {
		h.kick(p, reason)
	} else {
		h.dropPeer(p)
	}
	p.log.Info("peer disconnected", zap.String("reason", reason))
	if !joined {
		return
	}

	if p.Player != nil && !h.keepPlayers && !p.Player.Destroyed() {
		id := p.Player.NetID
		if h.objects.Destroy(id) {
			h.Broadcast(&protocol.DestroyObject{NetID: id})
			event.Emit(h.bus, event.ObjectDestroyed{NetID: id})
		}
	}
	event.Emit(h.bus, event.PeerDisconnected{Conn: uint64(p.Conn), Identity: p.Identity, Reason: reason})
}

// ChangeScene broadcasts SceneChange, marks every joined peer loading, tears
// down the current scene and loads the new one. The snapshot of the new
// scene goes out one tick after loading so teardown side effects settle.
func (h *Host) ChangeScene(scene int32) error {
	if h.state != HostListening {
		return fmt.Errorf("change scene: host %s", h.state)
	}
	h.current = scene
	h.scene = SceneBroadcastingChange
	h.sceneSeq++
	seq := h.sceneSeq

	h.Broadcast(&protocol.SceneChange{Scene: scene})
	for p := range h.Peers() {
		if p.Joined() {
			p.Loading = true
			p.loadingSince = h.elapsed
		}
	}
	purged := h.objects.PurgeScene()
	h.log.Info("scene change", zap.Int32("scene", scene), zap.Int("purged", purged))
	event.Emit(h.bus, event.SceneChanged{Scene: scene})

	h.loader.LoadScene(h.base, scene, h.objects, func(err error) {
		h.sceneLoaded(seq, err)
	})
	return nil
}

func (h *Host) sceneLoaded(seq uint64, err error) {
	if seq != h.sceneSeq {
		return
	}
	if err != nil {
		h.log.Error("scene load failed", zap.Int32("scene", h.current), zap.Error(err))
	}
	h.Defer(1, "scene-snapshot", func() {
		if seq != h.sceneSeq {
			return
		}
		n := h.broadcastSceneState()
		h.scene = SceneWaitingForPeers
		h.log.Debug("scene snapshot sent", zap.Int32("scene", h.current), zap.Int("objects", n))
	})
}

// PostUpdate kicks peers that never said Hello or are stuck loading, and
// lifts the loading barrier once no joined peer is loading.
func (h *Host) PostUpdate() {
	if h.helloTimeout > 0 {
		for p := range h.Peers() {
			if !p.Joined() && h.elapsed-p.connectedAt > h.helloTimeout {
				p.log.Info("no Hello in time", zap.Duration("timeout", h.helloTimeout))
				h.removePeer(p, "hello timeout", true)
			}
		}
	}
	if h.loadingTimeout > 0 {
		for p := range h.Peers() {
			if p.Joined() && p.Loading && h.elapsed-p.loadingSince > h.loadingTimeout {
				p.log.Info("loading timed out", zap.Duration("timeout", h.loadingTimeout))
				h.removePeer(p, "loading timeout", true)
			}
		}
	}
	if h.scene != SceneWaitingForPeers {
		return
	}
	for p := range h.Peers() {
		if p.Joined() && p.Loading {
			return
		}
	}
	h.scene = SceneStable
	h.log.Info("scene stable", zap.Int32("scene", h.current))
	event.Emit(h.bus, event.SceneStable{Scene: h.current})
}

// Spawn instantiates a prefab on the host and announces it to every peer.
func (h *Host) Spawn(prefab int32, owner protocol.Identity) (*replica.Object, error) {
	obj, err := h.objects.SpawnFromPrefab(prefab, owner, 0)
	if err != nil {
		if errors.Is(err, replica.ErrIDSpaceExhausted) {
			h.log.Error("spawn failed", zap.Int32("prefab", prefab), zap.Error(err))
		}
		return nil, err
	}
	for _, m := range SpawnMessages(obj) {
		h.Broadcast(m)
	}
	event.Emit(h.bus, event.ObjectSpawned{NetID: obj.NetID, Prefab: obj.Prefab, Owner: obj.Owner})
	return obj, nil
}

// Despawn destroys an object and tells every peer.
func (h *Host) Despawn(netID int32) bool {
	if !h.objects.Destroy(netID) {
		return false
	}
	h.Broadcast(&protocol.DestroyObject{NetID: netID})
	event.Emit(h.bus, event.ObjectDestroyed{NetID: netID})
	return true
}
