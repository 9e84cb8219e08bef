package cdf

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/samcharles93/gocdf/pkg/epochs"
)

// cursor reads control fields and values out of a file image. Control
// fields are always big-endian regardless of the data encoding.
type cursor struct {
	data []byte
	off  int
}

func newCursor(data []byte, off int64) *cursor {
	return &cursor{data: data, off: int(off)}
}

func (c *cursor) readN(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.data) {
		return nil, fmt.Errorf("%w: read of %d bytes at offset %d past image end", ErrBadRecord, n, c.off)
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b, nil
}

func (c *cursor) readI32() (int32, error) {
	b, err := c.readN(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (c *cursor) readI64() (int64, error) {
	b, err := c.readN(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// readName reads a fixed 256-byte NUL-padded name field.
func (c *cursor) readName() (string, error) {
	b, err := c.readN(256)
	if err != nil {
		return "", err
	}
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return strings.TrimRight(string(b[:i]), " "), nil
	}
	return strings.TrimRight(string(b), " "), nil
}

func (c *cursor) skip(n int) error {
	_, err := c.readN(n)
	return err
}

// recordBuf accumulates one internal record. The 8-byte size and 4-byte
// type header is filled in by finish.
type recordBuf struct {
	b []byte
}

func newRecordBuf(typ int32) *recordBuf {
	r := &recordBuf{b: make([]byte, 12, 64)}
	binary.BigEndian.PutUint32(r.b[8:], uint32(typ))
	return r
}

func (r *recordBuf) i32(v int32) *recordBuf {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	r.b = append(r.b, tmp[:]...)
	return r
}

func (r *recordBuf) i64(v int64) *recordBuf {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	r.b = append(r.b, tmp[:]...)
	return r
}

func (r *recordBuf) name(s string) *recordBuf {
	var field [256]byte
	copy(field[:], s)
	r.b = append(r.b, field[:]...)
	return r
}

func (r *recordBuf) raw(p []byte) *recordBuf {
	r.b = append(r.b, p...)
	return r
}

func (r *recordBuf) finish() []byte {
	binary.BigEndian.PutUint64(r.b[:8], uint64(len(r.b)))
	return r.b
}

// entrySeparator joins the strings of a multi-string CHAR attribute
// entry into one character block.
const entrySeparator = "\\N "

func splitEntryStrings(s string) []string {
	return strings.Split(s, entrySeparator)
}

func joinEntryStrings(parts []string) string {
	return strings.Join(parts, entrySeparator)
}

func encodeF32(v float32, order binary.ByteOrder) []byte {
	b := make([]byte, 4)
	order.PutUint32(b, math.Float32bits(v))
	return b
}

func encodeF64(v float64, order binary.ByteOrder) []byte {
	b := make([]byte, 8)
	order.PutUint64(b, math.Float64bits(v))
	return b
}

// decodeValues interprets count values of type t from b using the file's
// data encoding. Numeric types come back as typed slices, the epoch
// types as their pkg/epochs representations, and character data as
// strings of numElems bytes truncated at the first NUL.
func decodeValues(b []byte, t DataType, numElems, count int, order binary.ByteOrder) (any, error) {
	if numElems < 1 {
		numElems = 1
	}
	valueSize := t.Size()
	if valueSize == 0 {
		return nil, fmt.Errorf("%w: data type %d", ErrUnsupportedEncoding, t)
	}
	if t.IsString() {
		valueSize *= numElems
	}
	if len(b) < valueSize*count {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, valueSize*count, len(b))
	}

	switch t {
	case INT1, BYTE:
		out := make([]int8, count)
		for i := range out {
			out[i] = int8(b[i])
		}
		return out, nil
	case UINT1:
		out := make([]uint8, count)
		copy(out, b[:count])
		return out, nil
	case INT2:
		out := make([]int16, count)
		for i := range out {
			out[i] = int16(order.Uint16(b[i*2:]))
		}
		return out, nil
	case UINT2:
		out := make([]uint16, count)
		for i := range out {
			out[i] = order.Uint16(b[i*2:])
		}
		return out, nil
	case INT4:
		out := make([]int32, count)
		for i := range out {
			out[i] = int32(order.Uint32(b[i*4:]))
		}
		return out, nil
	case UINT4:
		out := make([]uint32, count)
		for i := range out {
			out[i] = order.Uint32(b[i*4:])
		}
		return out, nil
	case INT8:
		out := make([]int64, count)
		for i := range out {
			out[i] = int64(order.Uint64(b[i*8:]))
		}
		return out, nil
	case REAL4, FLOAT:
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(order.Uint32(b[i*4:]))
		}
		return out, nil
	case REAL8, DOUBLE:
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(order.Uint64(b[i*8:]))
		}
		return out, nil
	case EPOCH:
		out := make([]epochs.Epoch, count)
		for i := range out {
			out[i] = epochs.Epoch(math.Float64frombits(order.Uint64(b[i*8:])))
		}
		return out, nil
	case EPOCH16:
		out := make([]epochs.Epoch16, count)
		for i := range out {
			out[i] = epochs.Epoch16{
				Seconds:     math.Float64frombits(order.Uint64(b[i*16:])),
				Picoseconds: math.Float64frombits(order.Uint64(b[i*16+8:])),
			}
		}
		return out, nil
	case TT2000:
		out := make([]epochs.TT2000, count)
		for i := range out {
			out[i] = epochs.TT2000(order.Uint64(b[i*8:]))
		}
		return out, nil
	case CHAR, UCHAR:
		out := make([]string, count)
		for i := range out {
			raw := b[i*numElems : (i+1)*numElems]
			s := string(raw)
			if j := strings.IndexByte(s, 0); j >= 0 {
				s = s[:j]
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: data type %d", ErrUnsupportedEncoding, t)
	}
}

// encodeValues renders v as on-disk bytes of type t. Scalars and slices
// of the matching Go type are accepted; epoch values may also be given
// as their raw numeric forms or as parseable strings. The returned
// count is the number of values encoded.
func encodeValues(v any, t DataType, numElems int, order binary.ByteOrder) ([]byte, int, error) {
	if numElems < 1 {
		numElems = 1
	}
	switch t {
	case INT1, BYTE:
		vals, err := asSlice[int8](v)
		if err != nil {
			return nil, 0, err
		}
		out := make([]byte, len(vals))
		for i, x := range vals {
			out[i] = byte(x)
		}
		return out, len(vals), nil
	case UINT1:
		vals, err := asSlice[uint8](v)
		if err != nil {
			return nil, 0, err
		}
		return append([]byte(nil), vals...), len(vals), nil
	case INT2:
		return encodeFixed(v, 2, func(b []byte, x int16) { order.PutUint16(b, uint16(x)) })
	case UINT2:
		return encodeFixed(v, 2, func(b []byte, x uint16) { order.PutUint16(b, x) })
	case INT4:
		return encodeFixed(v, 4, func(b []byte, x int32) { order.PutUint32(b, uint32(x)) })
	case UINT4:
		return encodeFixed(v, 4, func(b []byte, x uint32) { order.PutUint32(b, x) })
	case INT8:
		return encodeFixed(v, 8, func(b []byte, x int64) { order.PutUint64(b, uint64(x)) })
	case REAL4, FLOAT:
		return encodeFixed(v, 4, func(b []byte, x float32) { order.PutUint32(b, math.Float32bits(x)) })
	case REAL8, DOUBLE:
		return encodeFixed(v, 8, func(b []byte, x float64) { order.PutUint64(b, math.Float64bits(x)) })
	case EPOCH:
		vals, err := epochSlice(v)
		if err != nil {
			return nil, 0, err
		}
		out := make([]byte, 0, len(vals)*8)
		for _, x := range vals {
			out = append(out, encodeF64(float64(x), order)...)
		}
		return out, len(vals), nil
	case EPOCH16:
		vals, err := epoch16Slice(v)
		if err != nil {
			return nil, 0, err
		}
		out := make([]byte, 0, len(vals)*16)
		for _, x := range vals {
			out = append(out, encodeF64(x.Seconds, order)...)
			out = append(out, encodeF64(x.Picoseconds, order)...)
		}
		return out, len(vals), nil
	case TT2000:
		vals, err := tt2000Slice(v)
		if err != nil {
			return nil, 0, err
		}
		out := make([]byte, 0, len(vals)*8)
		for _, x := range vals {
			var tmp [8]byte
			order.PutUint64(tmp[:], uint64(x))
			out = append(out, tmp[:]...)
		}
		return out, len(vals), nil
	case CHAR, UCHAR:
		vals, err := asSlice[string](v)
		if err != nil {
			return nil, 0, err
		}
		out := make([]byte, 0, len(vals)*numElems)
		for _, s := range vals {
			if len(s) > numElems {
				return nil, 0, fmt.Errorf("%w: string %q longer than %d elements", ErrBadSpec, s, numElems)
			}
			field := make([]byte, numElems)
			copy(field, s)
			for j := len(s); j < numElems; j++ {
				field[j] = ' '
			}
			out = append(out, field...)
		}
		return out, len(vals), nil
	default:
		return nil, 0, fmt.Errorf("%w: data type %d", ErrUnsupportedEncoding, t)
	}
}

func encodeFixed[T any](v any, width int, put func([]byte, T)) ([]byte, int, error) {
	vals, err := asSlice[T](v)
	if err != nil {
		return nil, 0, err
	}
	out := make([]byte, len(vals)*width)
	for i, x := range vals {
		put(out[i*width:], x)
	}
	return out, len(vals), nil
}

func asSlice[T any](v any) ([]T, error) {
	switch x := v.(type) {
	case T:
		return []T{x}, nil
	case []T:
		return x, nil
	default:
		var zero T
		return nil, fmt.Errorf("%w: value of type %T, want %T", ErrBadSpec, v, zero)
	}
}

func epochSlice(v any) ([]epochs.Epoch, error) {
	switch x := v.(type) {
	case epochs.Epoch:
		return []epochs.Epoch{x}, nil
	case []epochs.Epoch:
		return x, nil
	case float64:
		return []epochs.Epoch{epochs.Epoch(x)}, nil
	case []float64:
		out := make([]epochs.Epoch, len(x))
		for i := range x {
			out[i] = epochs.Epoch(x[i])
		}
		return out, nil
	case string:
		e, err := epochs.ParseEpoch(x)
		if err != nil {
			return nil, err
		}
		return []epochs.Epoch{e}, nil
	default:
		return nil, fmt.Errorf("%w: value of type %T for CDF_EPOCH", ErrBadSpec, v)
	}
}

func epoch16Slice(v any) ([]epochs.Epoch16, error) {
	switch x := v.(type) {
	case epochs.Epoch16:
		return []epochs.Epoch16{x}, nil
	case []epochs.Epoch16:
		return x, nil
	case string:
		e, err := epochs.ParseEpoch16(x)
		if err != nil {
			return nil, err
		}
		return []epochs.Epoch16{e}, nil
	default:
		return nil, fmt.Errorf("%w: value of type %T for CDF_EPOCH16", ErrBadSpec, v)
	}
}

func tt2000Slice(v any) ([]epochs.TT2000, error) {
	switch x := v.(type) {
	case epochs.TT2000:
		return []epochs.TT2000{x}, nil
	case []epochs.TT2000:
		return x, nil
	case int64:
		return []epochs.TT2000{epochs.TT2000(x)}, nil
	case []int64:
		out := make([]epochs.TT2000, len(x))
		for i := range x {
			out[i] = epochs.TT2000(x[i])
		}
		return out, nil
	case string:
		e, err := epochs.ParseTT2000(x)
		if err != nil {
			return nil, err
		}
		return []epochs.TT2000{e}, nil
	default:
		return nil, fmt.Errorf("%w: value of type %T for CDF_TIME_TT2000", ErrBadSpec, v)
	}
}
