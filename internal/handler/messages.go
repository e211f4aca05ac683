package handler

import (
	"github.com/quarryline/netsync/internal/net/packet"
	"github.com/quarryline/netsync/internal/protocol"
)

// Gameplay message tags.
const (
	TagPickUpItemRequest = protocol.TagGameplayBase + iota
	TagPickUpItemSuccess
)

// PickUpItemRequest asks the host to put the targeted item into Slot of the
// sender's inventory.
type PickUpItemRequest struct {
	protocol.ComponentHeader
	Slot int32
}

func (*PickUpItemRequest) Tag() protocol.Tag { return TagPickUpItemRequest }

func (m *PickUpItemRequest) Encode(w *packet.Writer) { w.WriteD(m.Slot) }

// PickUpItemSuccess tells clients that Player now holds the targeted item in Slot.
type PickUpItemSuccess struct {
	protocol.ComponentHeader
	Player int32
	Slot   int32
}

func (*PickUpItemSuccess) Tag() protocol.Tag { return TagPickUpItemSuccess }

func (m *PickUpItemSuccess) Encode(w *packet.Writer) {
	w.WriteD(m.Player)
	w.WriteD(m.Slot)
}

// RegisterMessages adds the gameplay messages to a protocol registry. Both
// ends must call it.
func RegisterMessages(reg *protocol.Registry) {
	reg.Register(protocol.Spec{
		Tag: TagPickUpItemRequest, Name: "PickUpItemRequest",
		Kind: protocol.KindComponent, Filter: protocol.FilterHostOnly, Reliable: true,
		Decode: func(h protocol.Header, r *packet.Reader) (protocol.Message, error) {
			m := &PickUpItemRequest{ComponentHeader: protocol.ComponentHeader{Object: h.Object, Component: h.Component}}
			m.Slot = r.ReadD()
			return m, nil
		},
	})
	reg.Register(protocol.Spec{
		Tag: TagPickUpItemSuccess, Name: "PickUpItemSuccess",
		Kind: protocol.KindComponent, Filter: protocol.FilterClientOnly, Reliable: true,
		Decode: func(h protocol.Header, r *packet.Reader) (protocol.Message, error) {
			m := &PickUpItemSuccess{ComponentHeader: protocol.ComponentHeader{Object: h.Object, Component: h.Component}}
			m.Player = r.ReadD()
			m.Slot = r.ReadD()
			return m, nil
		},
	})
}
