package replica

import (
	"errors"
	"fmt"

	"github.com/quarryline/netsync/internal/net/packet"
	"github.com/quarryline/netsync/internal/protocol"
	"go.uber.org/zap"
)

// MaxFields is the number of NetVars one behaviour may declare (one mask bit each).
const MaxFields = 32

var (
	ErrFieldLayout = errors.New("field layout mismatch")
	ErrAuthority   = errors.New("sender lacks write authority")
)

// Behaviour is one replicated component. Implementations embed Base.
type Behaviour interface {
	NetBase() *Base
}

// Spawner is implemented by behaviours that need a hook once their object is registered.
type Spawner interface {
	OnNetworkSpawn()
}

// Destroyer is implemented by behaviours that need a hook when their object is destroyed.
type Destroyer interface {
	OnNetworkDestroy()
}

// Base holds the replication state of one behaviour: its index inside the
// owning object and its NetVars in declaration order.
type Base struct {
	object *Object
	index  int
	fields []Field
}

func (b *Base) NetBase() *Base { return b }

// Track declares NetVars in wire order. It must be called before the owning
// object is registered, and the order must be identical on every peer.
func (b *Base) Track(fields ...Field) {
	if b.registered() {
		panic("replica: Track after registration")
	}
	if len(b.fields)+len(fields) > MaxFields {
		panic(fmt.Sprintf("replica: more than %d fields on one behaviour", MaxFields))
	}
	for _, f := range fields {
		f.bind(b)
		b.fields = append(b.fields, f)
	}
}

func (b *Base) Object() *Object { return b.object }
func (b *Base) Index() int      { return b.index }
func (b *Base) Fields() []Field { return b.fields }

// IsDirty reports whether any field awaits replication.
func (b *Base) IsDirty() bool {
	for _, f := range b.fields {
		if f.Dirty() {
			return true
		}
	}
	return false
}

// DirtyUpdate serialises the dirty fields into a NetVarUpdate and clears
// their dirty flags. It returns false when nothing is dirty.
func (b *Base) DirtyUpdate() (*protocol.NetVarUpdate, bool) {
	var mask uint32
	w := packet.NewWriter()
	for i, f := range b.fields {
		if !f.Dirty() {
			continue
		}
		mask |= 1 << i
		f.write(w)
		f.clearDirty()
	}
	if mask == 0 {
		return nil, false
	}
	return b.update(mask, w.Bytes()), true
}

// FullUpdate serialises every field regardless of dirty state. Dirty flags
// are left untouched.
func (b *Base) FullUpdate() *protocol.NetVarUpdate {
	var mask uint32
	w := packet.NewWriter()
	for i, f := range b.fields {
		mask |= 1 << i
		f.write(w)
	}
	return b.update(mask, w.Bytes())
}

func (b *Base) update(mask uint32, fields []byte) *protocol.NetVarUpdate {
	m := &protocol.NetVarUpdate{Mask: mask, Fields: fields}
	m.Component = int32(b.index)
	if b.object != nil {
		m.Object = b.object.NetID
	}
	return m
}

// CheckSender verifies that every field named in mask may be written by
// sender. Used by the host before applying a client-originated update.
func (b *Base) CheckSender(mask uint32, sender protocol.Identity) error {
	if err := b.checkMask(mask); err != nil {
		return err
	}
	if b.object == nil || sender == protocol.NoIdentity || b.object.Owner != sender {
		return ErrAuthority
	}
	for i, f := range b.fields {
		if mask&(1<<i) != 0 && f.Authority() != AuthorityOwner {
			return fmt.Errorf("%w: field %s", ErrAuthority, f.Name())
		}
	}
	return nil
}

func (b *Base) checkMask(mask uint32) error {
	if len(b.fields) < MaxFields && mask>>len(b.fields) != 0 {
		return fmt.Errorf("%w: mask %#x for %d fields", ErrFieldLayout, mask, len(b.fields))
	}
	return nil
}

// Apply decodes the fields present in m and assigns them in declaration
// order. Change callbacks fire only for fields whose value differs. The
// whole payload is decoded before any field is assigned, so a malformed
// payload changes nothing. Applying never marks fields dirty.
func (b *Base) Apply(m *protocol.NetVarUpdate) (int, error) {
	if err := b.checkMask(m.Mask); err != nil {
		return 0, err
	}
	r := packet.NewBodyReader(m.Fields)
	values := make([]any, len(b.fields))
	for i, f := range b.fields {
		if m.Mask&(1<<i) != 0 {
			values[i] = f.read(r)
		}
	}
	if err := r.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFieldLayout, err)
	}
	if r.Remaining() != 0 {
		return 0, fmt.Errorf("%w: %d trailing bytes", ErrFieldLayout, r.Remaining())
	}

	changed := 0
	for i, f := range b.fields {
		if m.Mask&(1<<i) == 0 {
			continue
		}
		if f.assign(values[i]) {
			changed++
		}
	}
	return changed, nil
}

func (b *Base) registered() bool {
	return b.object != nil && b.object.registry != nil
}

func (b *Base) canWrite(a Authority) bool {
	if !b.registered() {
		return false
	}
	reg := b.object.registry
	switch a {
	case AuthorityHost:
		return reg.role == protocol.RoleHost
	case AuthorityOwner:
		if b.object.Owner == protocol.NoIdentity {
			return reg.role == protocol.RoleHost
		}
		return b.object.Owner == reg.local
	}
	return false
}

func (b *Base) invoke(callback, field string, old, cur any) {
	if !b.registered() || b.object.registry.callbacks == nil {
		return
	}
	reg := b.object.registry
	ev := ChangeEvent{
		NetID:     b.object.NetID,
		Component: b.index,
		Field:     field,
		Old:       old,
		New:       cur,
	}
	if err := reg.callbacks.InvokeChange(callback, ev); err != nil {
		reg.log.Warn("change callback failed",
			zap.String("callback", callback),
			zap.Int32("net_id", ev.NetID),
			zap.String("field", field),
			zap.Error(err),
		)
	}
}
