package session

import (
	"time"

	"github.com/quarryline/netsync/internal/net"
	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/replica"
	"go.uber.org/zap"
)

// PeerState is the per-connection join state.
type PeerState int

const (
	PeerConnecting PeerState = iota // accepted, no Hello yet
	PeerConnected                   // joined: identity known, receives broadcasts
)

func (s PeerState) String() string {
	if s == PeerConnected {
		return "connected"
	}
	return "connecting"
}

// Peer is a remote endpoint. On the host there is one per client; on a
// client the single peer is the host.
type Peer struct {
	Conn     net.ConnID
	Addr     string
	Identity protocol.Identity
	Name     string
	State    PeerState

	// Player is the peer's avatar. Nil before spawn.
	Player *replica.Object

	// Loading is true between SceneChange sent and LoadedIn received.
	Loading      bool
	loadingSince time.Duration
	connectedAt  time.Duration

	closed bool
	log    *zap.Logger
}

func newPeer(conn net.ConnID, addr string, log *zap.Logger) *Peer {
	return &Peer{
		Conn: conn,
		Addr: addr,
		log:  log.With(zap.Uint64("conn", uint64(conn))),
	}
}

// Alive reports whether messages from this peer may still be dispatched.
func (p *Peer) Alive() bool { return p != nil && !p.closed }

// Joined reports whether the peer completed Hello.
func (p *Peer) Joined() bool { return p.Alive() && p.State == PeerConnected }

func (p *Peer) Log() *zap.Logger { return p.log }
