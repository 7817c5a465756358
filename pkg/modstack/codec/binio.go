package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortBuffer is returned when a Reader runs past the end of its data.
var ErrShortBuffer = errors.New("unexpected end of data")

// BOM is the byte-order mark written after every native magic. Reading
// it back as big-endian yields 0xFEFF for big-endian data and 0xFFFE for
// little-endian data.
const BOM uint16 = 0xFEFF

// Writer appends fixed-width values in a chosen byte order.
type Writer struct {
	order binary.ByteOrder
	buf   []byte
}

// NewWriter returns a Writer using order.
func NewWriter(order binary.ByteOrder) *Writer {
	return &Writer{order: order}
}

// Bytes returns the encoded data.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Raw appends b verbatim.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

func (w *Writer) U8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) U16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) U32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) U64(v uint64) {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

func (w *Writer) Bool(v bool) { w.U8(boolByte(v)) }

// String writes a u32 length prefix followed by the bytes of s.
func (w *Writer) String(s string) {
	w.U32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// Blob writes a u32 length prefix followed by b.
func (w *Writer) Blob(b []byte) {
	w.U32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// PutU32 overwrites four already-written bytes at offset at.
func (w *Writer) PutU32(at int, v uint32) { w.order.PutUint32(w.buf[at:], v) }

// Header writes a 4-byte magic, the byte-order mark and a version.
func (w *Writer) Header(magic string, version uint16) {
	w.Raw([]byte(magic))
	w.U16(BOM)
	w.U16(version)
}

// Pad appends zero bytes until the length is a multiple of align.
func (w *Writer) Pad(align int) {
	if align <= 1 {
		return
	}
	for len(w.buf)%align != 0 {
		w.buf = append(w.buf, 0)
	}
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// Reader decodes fixed-width values. The first failure sticks: later
// reads return zero values and Err reports the original error.
type Reader struct {
	order binary.ByteOrder
	data  []byte
	off   int
	err   error
}

// NewReader returns a Reader over data using order.
func NewReader(data []byte, order binary.ByteOrder) *Reader {
	return &Reader{order: order, data: data}
}

// ReadHeader checks magic, detects the byte order from the BOM and
// returns a Reader positioned after the header together with the version.
func ReadHeader(data []byte, magic string) (*Reader, uint16, error) {
	if len(data) < 8 || string(data[:4]) != magic {
		return nil, 0, fmt.Errorf("missing %q header", magic)
	}
	var order binary.ByteOrder
	switch binary.BigEndian.Uint16(data[4:6]) {
	case BOM:
		order = binary.BigEndian
	case 0xFFFE:
		order = binary.LittleEndian
	default:
		return nil, 0, fmt.Errorf("invalid byte-order mark %#04x", binary.BigEndian.Uint16(data[4:6]))
	}
	r := NewReader(data, order)
	r.off = 6
	version := r.U16()
	return r, version, r.err
}

// Order is the byte order the reader decodes with.
func (r *Reader) Order() binary.ByteOrder { return r.order }

// Err returns the first error encountered.
func (r *Reader) Err() error { return r.err }

// Offset is the current read position.
func (r *Reader) Offset() int { return r.off }

// Remaining is the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d", ErrShortBuffer, n, r.off)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return r.order.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return r.order.Uint32(b)
}

func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return r.order.Uint64(b)
}

func (r *Reader) F64() float64 { return math.Float64frombits(r.U64()) }

func (r *Reader) Bool() bool { return r.U8() != 0 }

func (r *Reader) String() string { return string(r.Blob()) }

// Blob reads a u32 length-prefixed byte slice. The result aliases the
// underlying data.
func (r *Reader) Blob() []byte {
	n := r.U32()
	if r.err != nil {
		return nil
	}
	return r.take(int(n))
}

// Count reads a u32 element count and rejects counts that could not fit
// in the remaining data at minSize bytes per element.
func (r *Reader) Count(minSize int) int {
	n := int(r.U32())
	if r.err != nil {
		return 0
	}
	if minSize > 0 && n > r.Remaining()/minSize {
		r.err = fmt.Errorf("%w: %d elements cannot fit in %d bytes", ErrShortBuffer, n, r.Remaining())
		return 0
	}
	return n
}

// Slice returns data[off:off+n] without moving the cursor.
func (r *Reader) Slice(off, n int) []byte {
	if r.err != nil {
		return nil
	}
	if off < 0 || n < 0 || off+n > len(r.data) {
		r.err = fmt.Errorf("%w: range %d+%d outside %d bytes", ErrShortBuffer, off, n, len(r.data))
		return nil
	}
	return r.data[off : off+n]
}
