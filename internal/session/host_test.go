package session

import (
	"testing"

	"github.com/quarryline/netsync/internal/config"
	"github.com/quarryline/netsync/internal/core/event"
	"github.com/quarryline/netsync/internal/net"
	"github.com/quarryline/netsync/internal/protocol"
	"golang.org/x/crypto/bcrypt"
)

func TestJoinBootstrapsNewPeer(t *testing.T) {
	r := newRig(t, nil)
	sceneLamp(t, r.host.Objects()).N.Set(7)
	crate, err := r.host.Spawn(prefabCrate, protocol.NoIdentity)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	find[*counter](t, r.host.Objects(), crate.NetID).N.Set(3)

	c := r.join(2, nil)
	r.settle()

	if c.State() != ClientConnected {
		t.Fatalf("client state = %s", c.State())
	}
	if c.IgnoringObjectUpdates() {
		t.Fatal("client still ignoring object updates after load")
	}
	p, ok := r.host.PeerByIdentity(2)
	if !ok {
		t.Fatal("host has no peer for identity 2")
	}
	if p.Loading {
		t.Fatal("peer still loading on the host")
	}

	hostSide := playerOf(t, r.host.Objects(), 2)
	clientSide := playerOf(t, c.Objects(), 2)
	if hostSide.NetID != clientSide.NetID || p.Player != hostSide {
		t.Fatalf("player net id host=%d client=%d", hostSide.NetID, clientSide.NetID)
	}
	playerOf(t, c.Objects(), 1)

	if got := sceneLamp(t, c.Objects()).N.Get(); got != 7 {
		t.Fatalf("scene lamp on client = %d, want 7", got)
	}
	if got := find[*counter](t, c.Objects(), crate.NetID).N.Get(); got != 3 {
		t.Fatalf("crate on client = %d, want 3", got)
	}
	if r.host.Paused() {
		t.Fatal("host paused after a plain join")
	}
}

func TestJoinSendsSceneThenSpawnBeforeState(t *testing.T) {
	r := newRig(t, nil)
	r.tick(1)
	crate, _ := r.host.Spawn(prefabCrate, protocol.NoIdentity)

	ep, conn := r.lb.Dial()
	proto := newProtocol()
	ep.Send(conn, marshal(t, proto, &protocol.Hello{Identity: 9, Name: "raw"}), true)
	r.tick(1)

	msgs := decodeAll(t, proto, ep.Receive(conn, 0))
	if len(msgs) == 0 {
		t.Fatal("nothing sent to the joining peer")
	}
	if sc, ok := msgs[0].(*protocol.SceneChange); !ok || sc.Scene != 1 {
		t.Fatalf("first message = %T %+v, want SceneChange(1)", msgs[0], msgs[0])
	}

	spawned := map[int32]bool{}
	sawCrate := false
	for _, m := range msgs[1:] {
		switch m := m.(type) {
		case *protocol.SpawnPrefab:
			spawned[m.NetID] = true
		case *protocol.NetVarUpdate:
			if r.host.Objects().IsRuntimeID(m.Object) && !spawned[m.Object] {
				t.Fatalf("state for %d sent before its spawn", m.Object)
			}
			if m.Object == crate.NetID {
				sawCrate = true
			}
		}
	}
	if !sawCrate || !spawned[crate.NetID] {
		t.Fatal("snapshot missing the runtime crate")
	}
}

func TestClientOwnedFieldsReplicateThroughHost(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(2, nil)
	b := r.join(3, nil)
	r.settle()

	own := playerOf(t, a.Objects(), 2)
	find[*avatar](t, a.Objects(), own.NetID).X.Set(3.5)
	r.settle()

	if got := find[*avatar](t, r.host.Objects(), own.NetID).X.Get(); got != 3.5 {
		t.Fatalf("host x = %v, want 3.5", got)
	}
	if got := find[*avatar](t, b.Objects(), own.NetID).X.Get(); got != 3.5 {
		t.Fatalf("relayed x = %v, want 3.5", got)
	}

	// Host-authority field forged by its owner.
	forged := counterUpdate(own.NetID, 0, 1)
	a.Send(a.HostPeer(), forged)
	// Owner field of someone else's player.
	bx := &protocol.NetVarUpdate{Mask: 2, Fields: []byte{0, 0, 0x20, 0x41}}
	bx.Object, bx.Component = own.NetID, 0
	b.Send(b.HostPeer(), bx)
	r.settle()

	if got := find[*avatar](t, r.host.Objects(), own.NetID).HP.Get(); got != 100 {
		t.Fatalf("host hp = %d after forged update", got)
	}
	if got := find[*avatar](t, b.Objects(), own.NetID).HP.Get(); got != 100 {
		t.Fatalf("forged hp relayed: %d", got)
	}
	if got := find[*avatar](t, r.host.Objects(), own.NetID).X.Get(); got != 3.5 {
		t.Fatalf("host x = %v after stranger write", got)
	}
}

func TestSceneChangeWaitsForPeers(t *testing.T) {
	r := newRig(t, nil)
	slow := &asyncLoader{auto: true}
	a := r.join(2, nil)
	b := r.join(3, func(o *ClientOptions) { o.Loader = slow })
	r.settle()

	var stable []int32
	event.Subscribe(r.host.Bus(), func(e event.SceneStable) { stable = append(stable, e.Scene) })

	slow.auto = false
	if err := r.host.ChangeScene(2); err != nil {
		t.Fatalf("ChangeScene: %v", err)
	}
	if !r.host.Paused() {
		t.Fatal("host not paused during scene change")
	}
	r.tick(10)
	if r.host.SceneState() != SceneWaitingForPeers {
		t.Fatalf("scene state = %s, want waiting-for-peers", r.host.SceneState())
	}
	if a.Scene() != 2 || b.Scene() != 2 {
		t.Fatalf("client scenes = %d, %d", a.Scene(), b.Scene())
	}
	if !b.IgnoringObjectUpdates() {
		t.Fatal("slow client stopped ignoring before its load finished")
	}

	slow.finish()
	r.settle()
	if r.host.SceneState() != SceneStable || r.host.Paused() {
		t.Fatalf("scene state = %s after all peers loaded", r.host.SceneState())
	}
	if len(stable) != 1 || stable[0] != 2 {
		t.Fatalf("SceneStable events = %v", stable)
	}

	hostLamp := sceneLamp(t, r.host.Objects())
	if hostLamp.Object().SceneKey != lampKey(2) {
		t.Fatalf("host still has scene key %q", hostLamp.Object().SceneKey)
	}
	if got := sceneLamp(t, b.Objects()).Object().NetID; got != hostLamp.Object().NetID {
		t.Fatalf("client lamp id %d, host %d", got, hostLamp.Object().NetID)
	}
	// Players survive the transition.
	playerOf(t, a.Objects(), 3)
	playerOf(t, b.Objects(), 2)
}

func TestLoadingTimeoutKicksStalledPeer(t *testing.T) {
	r := newRig(t, func(o *HostOptions) { o.LoadingTimeout = 3 * tickDT })
	stuck := &asyncLoader{}
	c := r.join(2, func(o *ClientOptions) { o.Loader = stuck })
	r.tick(12)

	if r.host.PeerCount() != 0 {
		t.Fatalf("stalled peer still connected (%d peers)", r.host.PeerCount())
	}
	if c.State() != ClientDisconnected {
		t.Fatalf("client state = %s", c.State())
	}
	if _, ok := r.host.Objects().PlayerOf(2); ok {
		t.Fatal("kicked peer's player survived")
	}
}

func TestDisconnectDestroysPlayer(t *testing.T) {
	r := newRig(t, nil)
	a := r.join(2, nil)
	b := r.join(3, nil)
	r.settle()
	playerOf(t, b.Objects(), 2)

	a.Leave("bye")
	r.settle()

	if _, ok := r.host.PeerByIdentity(2); ok {
		t.Fatal("departed peer still registered")
	}
	if _, ok := r.host.Objects().PlayerOf(2); ok {
		t.Fatal("host kept departed player")
	}
	if _, ok := b.Objects().PlayerOf(2); ok {
		t.Fatal("other client kept departed player")
	}
}

func TestKeptPlayerIsReusedOnRejoin(t *testing.T) {
	r := newRig(t, func(o *HostOptions) { o.KeepPlayerOnDisconnect = true })
	a := r.join(2, nil)
	r.settle()
	before := playerOf(t, r.host.Objects(), 2).NetID

	a.Leave("brb")
	r.settle()
	if _, ok := r.host.Objects().PlayerOf(2); !ok {
		t.Fatal("player not kept")
	}

	again := r.join(2, nil)
	r.settle()
	if got := playerOf(t, again.Objects(), 2).NetID; got != before {
		t.Fatalf("rejoin player id = %d, want reused %d", got, before)
	}
	if again.State() != ClientConnected {
		t.Fatalf("rejoined client state = %s", again.State())
	}
}

func TestPasswordAdmission(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("sesame"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	policy, err := NewPasswordPolicy(string(hash), "")
	if err != nil {
		t.Fatalf("NewPasswordPolicy: %v", err)
	}
	r := newRig(t, func(o *HostOptions) { o.Admission = policy })

	wrong := r.join(2, func(o *ClientOptions) { o.Password = "guess" })
	right := r.join(3, func(o *ClientOptions) { o.Password = "sesame" })
	r.settle()

	if wrong.State() != ClientDisconnected {
		t.Fatalf("wrong password client state = %s", wrong.State())
	}
	if right.State() != ClientConnected {
		t.Fatalf("right password client state = %s", right.State())
	}
	if _, ok := r.host.Objects().PlayerOf(2); ok {
		t.Fatal("rejected peer got a player")
	}
}

func TestDuplicateIdentityIsRejected(t *testing.T) {
	r := newRig(t, nil)
	first := r.join(2, nil)
	r.settle()
	second := r.join(2, nil)
	r.settle()

	if first.State() != ClientConnected {
		t.Fatalf("first client state = %s", first.State())
	}
	if second.State() != ClientDisconnected {
		t.Fatalf("duplicate client state = %s", second.State())
	}
	if r.host.PeerCount() != 1 {
		t.Fatalf("peers = %d, want 1", r.host.PeerCount())
	}
}

func TestMessagesBeforeHelloAreDropped(t *testing.T) {
	r := newRig(t, nil)
	r.tick(1)
	ep, conn := r.lb.Dial()
	proto := newProtocol()
	ep.Send(conn, marshal(t, proto, &protocol.LoadedIn{}), true)
	r.tick(1)

	p, ok := r.host.Peer(conn)
	if !ok {
		t.Fatal("connection not accepted")
	}
	if p.Joined() {
		t.Fatal("peer joined without Hello")
	}
}

func TestSilentConnectionIsKicked(t *testing.T) {
	r := newRig(t, func(o *HostOptions) { o.HelloTimeout = 3 * tickDT })
	a := r.join(2, nil)
	ep, conn := r.lb.Dial()
	r.tick(8)

	if _, ok := r.host.Peer(conn); ok {
		t.Fatal("connection without Hello still held")
	}
	var closed bool
	for _, ev := range ep.Poll() {
		closed = closed || ev.Kind == net.EventConnClosed
	}
	if !closed {
		t.Fatal("silent connection was not closed")
	}
	if r.host.PeerCount() != 1 || a.State() != ClientConnected {
		t.Fatalf("joined peer affected: peers=%d state=%s", r.host.PeerCount(), a.State())
	}
}

func TestNewAdmission(t *testing.T) {
	if _, err := NewAdmission(configAdmission("accept_all", "", "")); err != nil {
		t.Fatalf("accept_all: %v", err)
	}
	if _, err := NewAdmission(configAdmission("password", "", "")); err == nil {
		t.Fatal("password policy without secret accepted")
	}
	if _, err := NewAdmission(configAdmission("password", "not-a-hash", "")); err == nil {
		t.Fatal("malformed hash accepted")
	}
	if _, err := NewAdmission(configAdmission("nope", "", "")); err == nil {
		t.Fatal("unknown policy accepted")
	}
	if err := (AcceptAll{}).Admit(&protocol.Hello{}); err == nil {
		t.Fatal("peer without identity admitted")
	}
}

func configAdmission(policy, hash, password string) config.AdmissionConfig {
	return config.AdmissionConfig{Policy: policy, PasswordHash: hash, Password: password}
}
