package replica

import (
	"math"

	"github.com/quarryline/netsync/internal/net/packet"
	"github.com/quarryline/netsync/internal/protocol"
	"golang.org/x/text/unicode/norm"
)

// Authority says which side may originate writes to a NetVar.
type Authority int

const (
	AuthorityHost  Authority = iota // only the host writes
	AuthorityOwner                  // the owning identity writes; host writes when unowned
)

// Codec reads and writes one fixed-width field value. Equal replaces == for
// change detection when set. Canon maps a value to the form Read returns
// for it, so local and replicated copies compare equal.
type Codec[T comparable] struct {
	Write func(w *packet.Writer, v T)
	Read  func(r *packet.Reader) T
	Equal func(a, b T) bool
	Canon func(v T) T
}

func (c Codec[T]) equal(a, b T) bool {
	if c.Equal != nil {
		return c.Equal(a, b)
	}
	return a == b
}

func (c Codec[T]) canon(v T) T {
	if c.Canon != nil {
		return c.Canon(v)
	}
	return v
}

var (
	Int32Codec = Codec[int32]{
		Write: func(w *packet.Writer, v int32) { w.WriteD(v) },
		Read:  func(r *packet.Reader) int32 { return r.ReadD() },
	}
	BoolCodec = Codec[bool]{
		Write: func(w *packet.Writer, v bool) { w.WriteBool(v) },
		Read:  func(r *packet.Reader) bool { return r.ReadBool() },
	}
	Float32Codec = Codec[float32]{
		Write: func(w *packet.Writer, v float32) { w.WriteF(v) },
		Read:  func(r *packet.Reader) float32 { return r.ReadF() },
		// Bitwise, so NaN equals itself and -0 differs from +0 as on the wire.
		Equal: func(a, b float32) bool { return math.Float32bits(a) == math.Float32bits(b) },
	}
	StringCodec = Codec[string]{
		Write: func(w *packet.Writer, v string) { w.WriteS(v) },
		Read:  func(r *packet.Reader) string { return r.ReadS() },
		Canon: norm.NFC.String,
	}
	IdentityCodec = Codec[protocol.Identity]{
		Write: func(w *packet.Writer, v protocol.Identity) { w.WriteQ(uint64(v)) },
		Read:  func(r *packet.Reader) protocol.Identity { return protocol.Identity(r.ReadQ()) },
	}
)

// ChangeEvent is passed to named change callbacks.
type ChangeEvent struct {
	NetID     int32
	Component int
	Field     string
	Old       any
	New       any
}

// CallbackInvoker resolves named change callbacks (e.g. script functions).
type CallbackInvoker interface {
	InvokeChange(name string, ev ChangeEvent) error
}

// Field is the type-erased view of a NetVar used by Base for flush and apply.
type Field interface {
	Name() string
	Authority() Authority
	Dirty() bool

	bind(b *Base)
	clearDirty()
	write(w *packet.Writer)
	read(r *packet.Reader) any
	assign(v any) bool
}

// NetVar is a replicated field. Construct with NewVar or a typed helper and
// declare it on a behaviour with Base.Track.
type NetVar[T comparable] struct {
	name      string
	value     T
	dirty     bool
	authority Authority
	codec     Codec[T]
	onChange  func(old, cur T)
	callback  string
	owner     *Base
}

func NewVar[T comparable](name string, codec Codec[T], initial T) *NetVar[T] {
	return &NetVar[T]{name: name, value: codec.canon(initial), codec: codec}
}

func Int32(name string, initial int32) *NetVar[int32] { return NewVar(name, Int32Codec, initial) }
func Bool(name string, initial bool) *NetVar[bool]    { return NewVar(name, BoolCodec, initial) }
func Float32(name string, initial float32) *NetVar[float32] {
	return NewVar(name, Float32Codec, initial)
}
func String(name string, initial string) *NetVar[string] { return NewVar(name, StringCodec, initial) }
func IdentityVar(name string, initial protocol.Identity) *NetVar[protocol.Identity] {
	return NewVar(name, IdentityCodec, initial)
}

// OwnerWritable lets the owning identity originate writes.
func (v *NetVar[T]) OwnerWritable() *NetVar[T] {
	v.authority = AuthorityOwner
	return v
}

// OnChange installs a Go callback fired once per observed change.
func (v *NetVar[T]) OnChange(fn func(old, cur T)) *NetVar[T] {
	v.onChange = fn
	return v
}

// Callback names a callback resolved through the registry's CallbackInvoker.
func (v *NetVar[T]) Callback(name string) *NetVar[T] {
	v.callback = name
	return v
}

func (v *NetVar[T]) Name() string         { return v.name }
func (v *NetVar[T]) Authority() Authority { return v.authority }
func (v *NetVar[T]) Dirty() bool          { return v.dirty }
func (v *NetVar[T]) Get() T               { return v.value }

// Set assigns a new value. The change callback fires iff the value differs.
// The field is marked dirty only when the local side holds write authority;
// otherwise the write is local prediction and is not replicated. Before the
// owning object is registered, Set only initialises the value.
func (v *NetVar[T]) Set(val T) {
	val = v.codec.canon(val)
	if v.codec.equal(val, v.value) {
		return
	}
	old := v.value
	v.value = val
	if v.owner == nil || !v.owner.registered() {
		return
	}
	if v.owner.canWrite(v.authority) {
		v.dirty = true
	}
	v.fire(old, val)
}

func (v *NetVar[T]) fire(old, cur T) {
	if v.onChange != nil {
		v.onChange(old, cur)
	}
	if v.callback != "" && v.owner != nil {
		v.owner.invoke(v.callback, v.name, old, cur)
	}
}

func (v *NetVar[T]) bind(b *Base)              { v.owner = b }
func (v *NetVar[T]) clearDirty()               { v.dirty = false }
func (v *NetVar[T]) write(w *packet.Writer)    { v.codec.Write(w, v.value) }
func (v *NetVar[T]) read(r *packet.Reader) any { return v.codec.Read(r) }

func (v *NetVar[T]) assign(x any) bool {
	val, ok := x.(T)
	if !ok || v.codec.equal(val, v.value) {
		return false
	}
	old := v.value
	v.value = val
	v.fire(old, val)
	return true
}
