package packet

import (
	"encoding/binary"
	"errors"
	"math"

	"golang.org/x/text/unicode/norm"
)

// ErrShortRead is reported by Reader.Err when a field ran past the end of the payload.
var ErrShortRead = errors.New("packet: read past end of payload")

// Reader reads fixed-width fields from a raw message.
// Byte 0 is always the message tag.
type Reader struct {
	data  []byte
	off   int
	short bool
}

func NewReader(data []byte) *Reader {
	r := &Reader{data: data, off: 1} // skip tag byte
	if len(data) == 0 {
		r.off = 0
	}
	return r
}

// NewBodyReader reads a span that carries no tag byte (e.g. a NetVar field block).
func NewBodyReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) Tag() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	if r.off >= len(r.data) {
		r.short = true
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadBool reads 1 byte; any non-zero value is true.
func (r *Reader) ReadBool() bool {
	return r.ReadC() != 0
}

// ReadH reads 2 bytes as little-endian uint16.
func (r *Reader) ReadH() uint16 {
	if r.off+2 > len(r.data) {
		r.short = true
		r.off = len(r.data)
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadD reads 4 bytes as little-endian int32.
func (r *Reader) ReadD() int32 {
	return int32(r.ReadDU())
}

// ReadDU reads 4 bytes as little-endian uint32.
func (r *Reader) ReadDU() uint32 {
	if r.off+4 > len(r.data) {
		r.short = true
		r.off = len(r.data)
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// ReadQ reads 8 bytes as little-endian uint64.
func (r *Reader) ReadQ() uint64 {
	if r.off+8 > len(r.data) {
		r.short = true
		r.off = len(r.data)
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// ReadF reads an IEEE-754 float32 stored as 4 little-endian bytes.
func (r *Reader) ReadF() float32 {
	return math.Float32frombits(r.ReadDU())
}

// ReadS reads a u16 length-prefixed UTF-8 string and returns it in NFC form.
func (r *Reader) ReadS() string {
	n := int(r.ReadH())
	if r.short {
		return ""
	}
	if r.off+n > len(r.data) {
		r.short = true
		r.off = len(r.data)
		return ""
	}
	raw := r.data[r.off : r.off+n]
	r.off += n
	return norm.NFC.String(string(raw))
}

// ReadBytes reads n raw bytes.
func (r *Reader) ReadBytes(n int) []byte {
	if n < 0 || r.off+n > len(r.data) {
		r.short = true
		remaining := r.data[r.off:]
		r.off = len(r.data)
		return remaining
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// ReadRest returns a copy of every unread byte.
func (r *Reader) ReadRest() []byte {
	return r.ReadBytes(r.Remaining())
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err reports ErrShortRead if any read ran past the end of the payload.
func (r *Reader) Err() error {
	if r.short {
		return ErrShortRead
	}
	return nil
}
