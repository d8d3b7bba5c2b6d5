package dew

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
)

// Buf is the byte-buffer userdata exposed to scripts: a reference-typed
// blob that crosses the structural clone wire format as a UVAL entry,
// distinct from a plain string (no length-prefix text semantics, no
// short-string inlining).
type Buf []byte

// NewBuf wraps b as a Buf without copying.
func NewBuf(b []byte) Buf { return Buf(b) }

// Bytes returns the buffer's contents.
func (b Buf) Bytes() []byte { return []byte(b) }

// Len returns the buffer's length in bytes.
func (b Buf) Len() int { return len(b) }

// Wire format constants. Each value starts with one tag byte: low 4 bits
// are the type, bit 4 is the "has-ref" flag, and the upper 3 bits carry a
// small embedded value where applicable (a bool, a small unsigned int, or
// a small back-reference number).
const (
	wireNil byte = iota
	wireBool
	wireIntz
	wireInt
	wireFloat
	wireStr1
	wireStr4
	wireArray
	wireDict
	wireFun
	wireUval
	wireRefz
	wireRef
)

const (
	wireTypeMask   = 0x0F
	wireHasRef     = 0x10
	wireEmbedMask  = 0xE0
	wireEmbedShift = 5
)

// shortStringLimit is the inline threshold below which a string is never
// ref-tracked: it's cheaper to duplicate a short string than to chase a
// back-reference for one, matching a common small-string-optimization
// cutoff.
const shortStringLimit = 23

// wireVersion is the structclone format version carried in the header.
const wireVersion = 1

// uvalBuffer is the sole supported userdata kind's 1-byte type tag.
const uvalBuffer byte = 0

func writeTag(typ byte, hasRef bool, embed byte) byte {
	tag := typ & wireTypeMask
	if hasRef {
		tag |= wireHasRef
	}
	tag |= (embed << wireEmbedShift) & wireEmbedMask
	return tag
}

// cloneEncoder accumulates the value stream and the ordered list of
// referable values' first-occurrence offsets (the trailing refmap).
type cloneEncoder struct {
	out      []byte
	sliceRef map[uintptr]int
	strRef   map[string]int
	refCount int
}

// Encode serializes v into the structural clone wire format: a 4-byte
// header (version + ref count), the value stream, and a trailing refmap.
// Supports the closed set of dynamically-typed script values: nil, bool,
// integers (collapsed to int64), floats (collapsed to float64), string,
// []any, map[string]any, and Buf. Anything else fails with
// CodeNotSupported, matching the wire format's documented unsupported
// types (threads, light userdata, timers, descriptors, tasks, workers).
func Encode(v any) ([]byte, error) {
	e := &cloneEncoder{
		sliceRef: make(map[uintptr]int),
		strRef:   make(map[string]int),
	}
	if err := e.encodeValue(v); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	header[0] = writeTag(wireNil, false, byte(wireVersion))
	putU24(header[1:4], uint32(e.refCount))

	out := make([]byte, 0, 4+len(e.out)+e.refCount*4)
	out = append(out, header...)
	out = append(out, e.out...)
	// Trailing refmap: since refnos are assigned strictly in first-
	// occurrence (insertion) order, the map from refno to insertion order
	// is the identity permutation; emitted here for wire completeness
	// (decode reconstructs its own ref table during the forward pass and
	// does not need to parse this section).
	entryWide := e.refCount > 256
	for i := 1; i <= e.refCount; i++ {
		if entryWide {
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], uint32(i))
			out = append(out, b[:]...)
		} else {
			out = append(out, byte(i))
		}
	}
	return out, nil
}

func putU24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

func (e *cloneEncoder) byte1(b byte) { e.out = append(e.out, b) }

func (e *cloneEncoder) bytes(b []byte) { e.out = append(e.out, b...) }

func (e *cloneEncoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.bytes(b[:])
}

func (e *cloneEncoder) u24(v uint32) {
	var b [3]byte
	putU24(b[:], v)
	e.bytes(b[:])
}

// emitRef writes a back-reference to an already-assigned refno, using the
// 3-bit embedded REFZ form when it fits, else the 3-byte REF form.
func (e *cloneEncoder) emitRef(refno int) {
	if refno >= 1 && refno <= 7 {
		e.byte1(writeTag(wireRefz, false, byte(refno)))
		return
	}
	e.byte1(writeTag(wireRef, false, 0))
	e.u24(uint32(refno))
}

func (e *cloneEncoder) encodeValue(v any) error {
	if v == nil {
		e.byte1(writeTag(wireNil, false, 0))
		return nil
	}
	switch x := v.(type) {
	case bool:
		var b byte
		if x {
			b = 1
		}
		e.byte1(writeTag(wireBool, false, b))
		return nil

	case string:
		return e.encodeString(x)

	case Buf:
		return e.encodeBuf([]byte(x))
	case []byte:
		return e.encodeBuf(x)

	case []any:
		return e.encodeArray(x)

	case map[string]any:
		return e.encodeDict(x)
	}

	if n, ok := asInt64(v); ok {
		e.encodeInt(n)
		return nil
	}
	if f, ok := asFloat64(v); ok {
		e.encodeFloat(f)
		return nil
	}
	return NewError("encode", CodeNotSupported, fmt.Errorf("unsupported value of type %T", v))
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func (e *cloneEncoder) encodeInt(n int64) {
	if n >= 0 && n <= 7 {
		e.byte1(writeTag(wireIntz, false, byte(n)))
		return
	}
	e.byte1(writeTag(wireInt, false, 0))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	e.bytes(b[:])
}

func (e *cloneEncoder) encodeFloat(f float64) {
	e.byte1(writeTag(wireFloat, false, 0))
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	e.bytes(b[:])
}

func (e *cloneEncoder) encodeString(s string) error {
	if len(s) <= shortStringLimit {
		return e.writeStringBody(s, false)
	}
	if refno, ok := e.strRef[s]; ok {
		e.emitRef(refno)
		return nil
	}
	e.refCount++
	e.strRef[s] = e.refCount
	return e.writeStringBody(s, true)
}

func (e *cloneEncoder) writeStringBody(s string, hasRef bool) error {
	if len(s) < 256 {
		e.byte1(writeTag(wireStr1, hasRef, 0))
		e.byte1(byte(len(s)))
	} else {
		e.byte1(writeTag(wireStr4, hasRef, 0))
		e.u32(uint32(len(s)))
	}
	e.bytes([]byte(s))
	return nil
}

// identity returns a stable pointer-sized identity for a reference-typed
// Go value (slice or map), used to detect and preserve sharing the same
// way Clone's seen-map does.
func identity(v any) uintptr {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Map {
		return rv.Pointer()
	}
	return 0
}

func (e *cloneEncoder) encodeArray(arr []any) error {
	id := identity(arr)
	if id != 0 {
		if refno, ok := e.sliceRef[id]; ok {
			e.emitRef(refno)
			return nil
		}
		e.refCount++
		e.sliceRef[id] = e.refCount
	}
	e.byte1(writeTag(wireArray, id != 0, 0))
	e.u32(uint32(len(arr)))
	for _, elem := range arr {
		if err := e.encodeValue(elem); err != nil {
			return err
		}
	}
	return nil
}

func (e *cloneEncoder) encodeDict(m map[string]any) error {
	id := identity(m)
	if id != 0 {
		if refno, ok := e.sliceRef[id]; ok {
			e.emitRef(refno)
			return nil
		}
		e.refCount++
		e.sliceRef[id] = e.refCount
	}
	e.byte1(writeTag(wireDict, id != 0, 0))
	e.u32(uint32(len(m)))
	for k, v := range m {
		if err := e.encodeString(k); err != nil {
			return err
		}
		if err := e.encodeValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (e *cloneEncoder) encodeBuf(b []byte) error {
	id := identity(b)
	if id != 0 {
		if refno, ok := e.sliceRef[id]; ok {
			e.emitRef(refno)
			return nil
		}
		e.refCount++
		e.sliceRef[id] = e.refCount
	}
	e.byte1(writeTag(wireUval, id != 0, 0))
	e.byte1(uvalBuffer)
	e.u32(uint32(len(b)))
	e.bytes(b)
	return nil
}

// cloneDecoder replays the value stream, assigning refnos in the exact
// first-occurrence order the encoder used, so REFZ/REF entries resolve by
// simple index into refs.
type cloneDecoder struct {
	data []byte
	pos  int
	refs []any
}

// Decode reconstructs a value previously produced by Encode, preserving
// sharing: two occurrences of the same encoded slice, map, or long string
// decode to the identical Go value.
func Decode(data []byte) (any, error) {
	if len(data) < 4 {
		return nil, NewError("decode", CodeInvalid, fmt.Errorf("truncated header"))
	}
	d := &cloneDecoder{data: data, pos: 4}
	return d.decodeValue()
}

func (d *cloneDecoder) readByte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, NewError("decode", CodeInvalid, fmt.Errorf("unexpected end of stream"))
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *cloneDecoder) readBytes(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.data) {
		return nil, NewError("decode", CodeInvalid, fmt.Errorf("unexpected end of stream"))
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *cloneDecoder) readU32() (uint32, error) {
	b, err := d.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *cloneDecoder) readU24() (uint32, error) {
	b, err := d.readBytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

func (d *cloneDecoder) decodeValue() (any, error) {
	tag, err := d.readByte()
	if err != nil {
		return nil, err
	}
	typ := tag & wireTypeMask
	hasRef := tag&wireHasRef != 0
	embed := (tag & wireEmbedMask) >> wireEmbedShift

	switch typ {
	case wireNil:
		return nil, nil

	case wireBool:
		return embed&1 != 0, nil

	case wireIntz:
		return int64(embed), nil

	case wireInt:
		b, err := d.readBytes(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(b)), nil

	case wireFloat:
		b, err := d.readBytes(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil

	case wireStr1, wireStr4:
		var n uint32
		if typ == wireStr1 {
			lb, err := d.readByte()
			if err != nil {
				return nil, err
			}
			n = uint32(lb)
		} else {
			n, err = d.readU32()
			if err != nil {
				return nil, err
			}
		}
		b, err := d.readBytes(int(n))
		if err != nil {
			return nil, err
		}
		s := string(b)
		if hasRef {
			d.refs = append(d.refs, s)
		}
		return s, nil

	case wireArray:
		n, err := d.readU32()
		if err != nil {
			return nil, err
		}
		arr := make([]any, n)
		if hasRef {
			d.refs = append(d.refs, any(arr))
		}
		for i := range arr {
			v, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil

	case wireDict:
		n, err := d.readU32()
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, n)
		if hasRef {
			d.refs = append(d.refs, any(m))
		}
		for i := uint32(0); i < n; i++ {
			kv, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			key, ok := kv.(string)
			if !ok {
				return nil, NewError("decode", CodeInvalid, fmt.Errorf("dict key was not a string"))
			}
			v, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			m[key] = v
		}
		return m, nil

	case wireUval:
		utyp, err := d.readByte()
		if err != nil {
			return nil, err
		}
		if utyp != uvalBuffer {
			return nil, NewError("decode", CodeNotSupported, fmt.Errorf("unsupported userdata type %d", utyp))
		}
		n, err := d.readU32()
		if err != nil {
			return nil, err
		}
		b, err := d.readBytes(int(n))
		if err != nil {
			return nil, err
		}
		buf := NewBuf(append([]byte(nil), b...))
		if hasRef {
			d.refs = append(d.refs, any(buf))
		}
		return buf, nil

	case wireRefz:
		return d.resolveRef(int(embed))

	case wireRef:
		refno, err := d.readU24()
		if err != nil {
			return nil, err
		}
		return d.resolveRef(int(refno))

	case wireFun:
		return nil, NewError("decode", CodeNotSupported, fmt.Errorf("functions are not supported"))

	default:
		return nil, NewError("decode", CodeNotSupported, fmt.Errorf("unknown wire type %d", typ))
	}
}

func (d *cloneDecoder) resolveRef(refno int) (any, error) {
	if refno < 1 || refno > len(d.refs) {
		return nil, NewError("decode", CodeInvalid, fmt.Errorf("dangling reference %d", refno))
	}
	return d.refs[refno-1], nil
}
