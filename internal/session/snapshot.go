package session

import (
	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/replica"
)

// SpawnMessages returns what a remote needs to reconstruct obj: a
// SpawnPrefab for runtime objects, then one full NetVarUpdate per behaviour
// that has fields. Spawn always precedes state.
func SpawnMessages(obj *replica.Object) []protocol.Message {
	var msgs []protocol.Message
	if !obj.IsScene() {
		msgs = append(msgs, &protocol.SpawnPrefab{Prefab: obj.Prefab, NetID: obj.NetID, Owner: obj.Owner})
	}
	return append(msgs, StateMessages(obj)...)
}

// StateMessages returns one full NetVarUpdate per behaviour with fields.
func StateMessages(obj *replica.Object) []protocol.Message {
	var msgs []protocol.Message
	for _, b := range obj.Behaviours() {
		base := b.NetBase()
		if len(base.Fields()) == 0 {
			continue
		}
		msgs = append(msgs, base.FullUpdate())
	}
	return msgs
}

// sendSnapshot queues the join bootstrap for p: every persistent object
// (spawn, then state) followed by every scene object's state.
func (c *Context) sendSnapshot(p *Peer) int {
	n := 0
	for obj := range c.objects.PersistentObjects() {
		for _, m := range SpawnMessages(obj) {
			c.Send(p, m)
		}
		n++
	}
	for obj := range c.objects.SceneObjects() {
		for _, m := range StateMessages(obj) {
			c.Send(p, m)
		}
		n++
	}
	return n
}

// broadcastSceneState queues the state of every scene object for all joined peers.
func (c *Context) broadcastSceneState() int {
	n := 0
	for obj := range c.objects.SceneObjects() {
		for _, m := range StateMessages(obj) {
			c.Broadcast(m)
		}
		n++
	}
	return n
}
