package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/quarryline/netsync/internal/net/packet"
)

func coreRegistry() *Registry {
	reg := NewRegistry()
	RegisterCore(reg)
	return reg
}

func TestComponentHeaderLayout(t *testing.T) {
	reg := coreRegistry()
	m := &NetVarUpdate{Mask: 0b101, Fields: []byte{0xAA, 0xBB}}
	m.Object = 0x01020304
	m.Component = 2

	raw, spec, err := reg.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if spec.Kind != KindComponent || !spec.Reliable {
		t.Fatalf("spec = %+v", spec)
	}
	want := []byte{
		byte(TagNetVarUpdate),
		0x04, 0x03, 0x02, 0x01, // object id
		0x02, 0x00, 0x00, 0x00, // component index
		0x05, 0x00, 0x00, 0x00, // mask
		0xAA, 0xBB,
	}
	if !bytes.Equal(raw, want) {
		t.Fatalf("raw = % x\nwant  % x", raw, want)
	}

	got, _, err := reg.Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	upd := got.(*NetVarUpdate)
	if upd.Object != m.Object || upd.Component != 2 || upd.Mask != 0b101 || !bytes.Equal(upd.Fields, m.Fields) {
		t.Fatalf("decoded %+v", upd)
	}
}

func TestVoiceDataIsUnreliableObjectKind(t *testing.T) {
	reg := coreRegistry()
	m := &VoiceData{Data: []byte{9, 8, 7}}
	m.Object = 77
	raw, spec, err := reg.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if spec.Reliable || spec.Kind != KindObject {
		t.Fatalf("spec = %+v", spec)
	}
	got, _, err := reg.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if v := got.(*VoiceData); v.Object != 77 || !bytes.Equal(v.Data, m.Data) {
		t.Fatalf("decoded %+v", v)
	}
}

func TestDecodeErrors(t *testing.T) {
	reg := coreRegistry()
	hello, _, err := reg.Marshal(&Hello{Identity: 5, Name: "ada"})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		raw  []byte
		want error
	}{
		{"empty", nil, ErrEmpty},
		{"unknown tag", []byte{250, 1}, ErrUnknownTag},
		{"short header", []byte{byte(TagNetVarUpdate), 1, 2}, ErrShortPayload},
		{"short body", []byte{byte(TagSceneChange), 1}, ErrShortPayload},
		{"truncated string", hello[:len(hello)-2], ErrShortPayload},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, _, err := reg.Decode(c.raw); !errors.Is(err, c.want) {
				t.Fatalf("err = %v, want %v", err, c.want)
			}
		})
	}
}

func TestMarshalUnknownTag(t *testing.T) {
	reg := NewRegistry()
	if _, _, err := reg.Marshal(&LoadedIn{}); !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("err = %v", err)
	}
	if got := reg.Name(TagLoadedIn); got != "tag(5)" {
		t.Fatalf("Name = %q", got)
	}
}

func TestDuplicateTagPanics(t *testing.T) {
	reg := coreRegistry()
	defer func() {
		if recover() == nil {
			t.Fatal("duplicate registration did not panic")
		}
	}()
	reg.Register(Spec{
		Tag: TagHello, Name: "Other", Decode: func(Header, *packet.Reader) (Message, error) { return &LoadedIn{}, nil },
	})
}

func TestFilterAllows(t *testing.T) {
	cases := []struct {
		f          Filter
		host, peer bool
	}{
		{FilterAll, true, true},
		{FilterHostOnly, true, false},
		{FilterClientOnly, false, true},
	}
	for _, c := range cases {
		if c.f.Allows(RoleHost) != c.host || c.f.Allows(RoleClient) != c.peer {
			t.Errorf("%s: host=%v client=%v", c.f, c.f.Allows(RoleHost), c.f.Allows(RoleClient))
		}
	}
}

func TestCoreFilters(t *testing.T) {
	reg := coreRegistry()
	want := map[Tag]Filter{
		TagHello:         FilterHostOnly,
		TagSceneChange:   FilterClientOnly,
		TagSpawnPrefab:   FilterClientOnly,
		TagDestroyObject: FilterClientOnly,
		TagLoadedIn:      FilterHostOnly,
		TagDisconnect:    FilterAll,
	}
	for tag, f := range want {
		spec, ok := reg.Lookup(tag)
		if !ok || spec.Filter != f || spec.Kind != KindControl {
			t.Errorf("%s: %+v", reg.Name(tag), spec)
		}
	}
}
