package handler

import (
	"github.com/quarryline/netsync/internal/protocol"
	"github.com/quarryline/netsync/internal/session"
	"go.uber.org/zap"
)

// VoiceSink receives voice frames for playback. Frames may be missing or
// out of order.
type VoiceSink interface {
	Voice(speaker int32, data []byte)
}

// DiscardVoice drops every frame.
type DiscardVoice struct{}

func (DiscardVoice) Voice(int32, []byte) {}

// HandleVoiceData plays a voice frame locally. On the host it is also relayed
// to every other peer, but only when the sender speaks through its own player.
func HandleVoiceData(s *session.Context, in *session.Inbound, deps *Deps) {
	m := in.Msg.(*protocol.VoiceData)
	if s.Role() == protocol.RoleHost {
		if in.From.Player == nil || in.From.Player != in.Object {
			in.From.Log().Warn("voice from an object the peer does not own", zap.Int32("net_id", m.Object))
			return
		}
		s.BroadcastExcept(m, in.From)
	}
	deps.Voice.Voice(m.Object, m.Data)
}

// SendVoice queues a voice frame from the local player. A host sends it to
// every peer, a client to the host.
func SendVoice(s *session.Context, player int32, data []byte) error {
	m := &protocol.VoiceData{Data: data}
	m.Object = player
	return s.Broadcast(m)
}
