package event

import (
	"github.com/quarryline/netsync/internal/protocol"
)

// Session lifecycle events. Emitted from the tick goroutine, delivered one
// tick later.

type PeerConnected struct {
	Conn     uint64
	Identity protocol.Identity
	Name     string
}

type PeerDisconnected struct {
	Conn     uint64
	Identity protocol.Identity
	Reason   string
}

type PeerLoaded struct {
	Conn     uint64
	Identity protocol.Identity
}

type SceneChanged struct {
	Scene int32
}

// SceneStable fires on the host once every peer reported loaded.
type SceneStable struct {
	Scene int32
}

type ObjectSpawned struct {
	NetID  int32
	Prefab int32
	Owner  protocol.Identity
}

type ObjectDestroyed struct {
	NetID int32
}
