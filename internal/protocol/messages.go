package protocol

import "github.com/quarryline/netsync/internal/net/packet"

// Core message tags. Gameplay messages start at TagGameplayBase.
const (
	TagHello         Tag = 1
	TagSceneChange   Tag = 2
	TagSpawnPrefab   Tag = 3
	TagDestroyObject Tag = 4
	TagLoadedIn      Tag = 5
	TagDisconnect    Tag = 6

	TagNetVarUpdate Tag = 16
	TagVoiceData    Tag = 17

	TagGameplayBase Tag = 32
)

// Hello is the first message a client sends. It carries the identity the
// transport cannot provide, plus an optional join password.
type Hello struct {
	Identity Identity
	Name     string
	Password string
}

func (*Hello) Tag() Tag { return TagHello }

func (m *Hello) Encode(w *packet.Writer) {
	w.WriteQ(uint64(m.Identity))
	w.WriteS(m.Name)
	w.WriteS(m.Password)
}

// SceneChange tells clients to load the scene with the given index.
type SceneChange struct {
	Scene int32
}

func (*SceneChange) Tag() Tag { return TagSceneChange }

func (m *SceneChange) Encode(w *packet.Writer) { w.WriteD(m.Scene) }

// SpawnPrefab instantiates a catalog prefab on the receiver.
type SpawnPrefab struct {
	Prefab int32
	NetID  int32
	Owner  Identity
}

func (*SpawnPrefab) Tag() Tag { return TagSpawnPrefab }

func (m *SpawnPrefab) Encode(w *packet.Writer) {
	w.WriteD(m.Prefab)
	w.WriteD(m.NetID)
	w.WriteQ(uint64(m.Owner))
}

// DestroyObject removes a networked object on the receiver.
type DestroyObject struct {
	NetID int32
}

func (*DestroyObject) Tag() Tag { return TagDestroyObject }

func (m *DestroyObject) Encode(w *packet.Writer) { w.WriteD(m.NetID) }

// LoadedIn is the loading-barrier signal sent by a client once its scene is ready.
type LoadedIn struct{}

func (*LoadedIn) Tag() Tag { return TagLoadedIn }

func (*LoadedIn) Encode(*packet.Writer) {}

// Disconnect announces a graceful leave (client) or a kick (host).
type Disconnect struct {
	Reason string
}

func (*Disconnect) Tag() Tag { return TagDisconnect }

func (m *Disconnect) Encode(w *packet.Writer) { w.WriteS(m.Reason) }

// NetVarUpdate carries the replicated fields of one behaviour. Bit i of Mask
// is set when field i (declaration order) is present in Fields.
type NetVarUpdate struct {
	ComponentHeader
	Mask   uint32
	Fields []byte
}

func (*NetVarUpdate) Tag() Tag { return TagNetVarUpdate }

func (m *NetVarUpdate) Encode(w *packet.Writer) {
	w.WriteDU(m.Mask)
	w.WriteBytes(m.Fields)
}

// VoiceData is compressed audio from a player's avatar. Loss-tolerant.
type VoiceData struct {
	ObjectHeader
	Data []byte
}

func (*VoiceData) Tag() Tag { return TagVoiceData }

func (m *VoiceData) Encode(w *packet.Writer) { w.WriteBytes(m.Data) }

// RegisterCore registers the messages every session understands.
func RegisterCore(reg *Registry) {
	reg.Register(Spec{
		Tag: TagHello, Name: "Hello", Kind: KindControl, Filter: FilterHostOnly, Reliable: true,
		Decode: func(_ Header, r *packet.Reader) (Message, error) {
			return &Hello{Identity: Identity(r.ReadQ()), Name: r.ReadS(), Password: r.ReadS()}, nil
		},
	})
	reg.Register(Spec{
		Tag: TagSceneChange, Name: "SceneChange", Kind: KindControl, Filter: FilterClientOnly, Reliable: true,
		Decode: func(_ Header, r *packet.Reader) (Message, error) {
			return &SceneChange{Scene: r.ReadD()}, nil
		},
	})
	reg.Register(Spec{
		Tag: TagSpawnPrefab, Name: "SpawnPrefab", Kind: KindControl, Filter: FilterClientOnly, Reliable: true,
		Decode: func(_ Header, r *packet.Reader) (Message, error) {
			return &SpawnPrefab{Prefab: r.ReadD(), NetID: r.ReadD(), Owner: Identity(r.ReadQ())}, nil
		},
	})
	reg.Register(Spec{
		Tag: TagDestroyObject, Name: "DestroyObject", Kind: KindControl, Filter: FilterClientOnly, Reliable: true,
		Decode: func(_ Header, r *packet.Reader) (Message, error) {
			return &DestroyObject{NetID: r.ReadD()}, nil
		},
	})
	reg.Register(Spec{
		Tag: TagLoadedIn, Name: "LoadedIn", Kind: KindControl, Filter: FilterHostOnly, Reliable: true,
		Decode: func(Header, *packet.Reader) (Message, error) {
			return &LoadedIn{}, nil
		},
	})
	reg.Register(Spec{
		Tag: TagDisconnect, Name: "Disconnect", Kind: KindControl, Filter: FilterAll, Reliable: true,
		Decode: func(_ Header, r *packet.Reader) (Message, error) {
			return &Disconnect{Reason: r.ReadS()}, nil
		},
	})
	reg.Register(Spec{
		Tag: TagNetVarUpdate, Name: "NetVarUpdate", Kind: KindComponent, Filter: FilterAll, Reliable: true,
		Decode: func(h Header, r *packet.Reader) (Message, error) {
			m := &NetVarUpdate{ComponentHeader: ComponentHeader{Object: h.Object, Component: h.Component}}
			m.Mask = r.ReadDU()
			m.Fields = r.ReadRest()
			return m, nil
		},
	})
	reg.Register(Spec{
		Tag: TagVoiceData, Name: "VoiceData", Kind: KindObject, Filter: FilterAll, Reliable: false,
		Decode: func(h Header, r *packet.Reader) (Message, error) {
			return &VoiceData{ObjectHeader: ObjectHeader{Object: h.Object}, Data: r.ReadRest()}, nil
		},
	})
}
