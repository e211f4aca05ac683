package protocol

import (
	"fmt"

	"github.com/quarryline/netsync/internal/net/packet"
)

// DecodeFunc builds a typed message from the body reader. The kind header has
// already been consumed and is passed in h.
type DecodeFunc func(h Header, r *packet.Reader) (Message, error)

// Spec describes one message kind.
type Spec struct {
	Tag      Tag
	Name     string
	Kind     Kind
	Filter   Filter
	Reliable bool
	Decode   DecodeFunc
}

// Registry maps tags to specs. Registration happens once at session setup;
// lookups are read-only afterwards.
type Registry struct {
	specs [256]*Spec
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a spec. Registering the same tag twice is a programming error.
func (reg *Registry) Register(s Spec) {
	if s.Decode == nil {
		panic(fmt.Sprintf("protocol: spec %q has no decoder", s.Name))
	}
	if prev := reg.specs[s.Tag]; prev != nil {
		panic(fmt.Sprintf("protocol: tag %d registered twice (%s, %s)", s.Tag, prev.Name, s.Name))
	}
	spec := s
	reg.specs[s.Tag] = &spec
}

// Lookup returns the spec for a tag.
func (reg *Registry) Lookup(tag Tag) (*Spec, bool) {
	s := reg.specs[tag]
	return s, s != nil
}

// Name returns a printable name for a tag, registered or not.
func (reg *Registry) Name(tag Tag) string {
	if s := reg.specs[tag]; s != nil {
		return s.Name
	}
	return fmt.Sprintf("tag(%d)", tag)
}

// Decode parses one raw message. It never panics on malformed input.
func (reg *Registry) Decode(raw []byte) (Message, *Spec, error) {
	if len(raw) == 0 {
		return nil, nil, ErrEmpty
	}
	tag := Tag(raw[0])
	spec := reg.specs[tag]
	if spec == nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}

	r := packet.NewReader(raw)
	var h Header
	switch spec.Kind {
	case KindObject:
		h.Object = r.ReadD()
	case KindComponent:
		h.Object = r.ReadD()
		h.Component = r.ReadD()
	}
	if r.Err() != nil {
		return nil, spec, fmt.Errorf("%w: %s header", ErrShortPayload, spec.Name)
	}

	msg, err := spec.Decode(h, r)
	if err != nil {
		return nil, spec, fmt.Errorf("decode %s: %w", spec.Name, err)
	}
	if r.Err() != nil {
		return nil, spec, fmt.Errorf("%w: %s", ErrShortPayload, spec.Name)
	}
	return msg, spec, nil
}

// Marshal encodes msg with its tag and kind header.
func (reg *Registry) Marshal(msg Message) ([]byte, *Spec, error) {
	spec := reg.specs[msg.Tag()]
	if spec == nil {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownTag, msg.Tag())
	}
	w := packet.NewWriterWithTag(byte(spec.Tag))
	switch spec.Kind {
	case KindObject:
		om, ok := msg.(ObjectMessage)
		if !ok {
			return nil, spec, fmt.Errorf("%s: object kind without object header", spec.Name)
		}
		w.WriteD(om.ObjectID())
	case KindComponent:
		cm, ok := msg.(ComponentMessage)
		if !ok {
			return nil, spec, fmt.Errorf("%s: component kind without component header", spec.Name)
		}
		w.WriteD(cm.ObjectID())
		w.WriteD(cm.ComponentIndex())
	}
	msg.Encode(w)
	return w.Bytes(), spec, nil
}
