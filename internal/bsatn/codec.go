// Package bsatn implements the canonical, schema-directed binary encoding
// used on the wire and in the commit log (spec.md §4.5): Binary Structured
// Algebraic Type Notation. Encoding is deterministic and carries no
// self-describing tags for products — the schema (catalog.AlgebraicType)
// drives both encode and decode.
//
// Grounded on original_source/crates/spacetimedb-lib/src/type_value.rs and
// mem_arch_datastore/ser.rs for field order and tag-byte placement; stdlib
// encoding/binary is used for the little-endian fixed-width primitives,
// which is the same idiom used throughout the pack (bbolt, erigon) for
// bespoke binary layouts with no matching third-party schema codec.
package bsatn

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cuemby/spacetime/internal/catalog"
)

// TypeError indicates a row failed to decode at its declared type: data
// corruption or a programming error. Per spec.md §7 the transaction aborts.
type TypeError struct {
	Detail string
}

func (e *TypeError) Error() string { return "bsatn: type error: " + e.Detail }

// Encode serializes v according to ty into BSATN bytes.
func Encode(ty catalog.AlgebraicType, v catalog.AlgebraicValue) ([]byte, error) {
	buf := make([]byte, 0, 32)
	buf, err := appendValue(buf, ty, v)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func appendValue(buf []byte, ty catalog.AlgebraicType, v catalog.AlgebraicValue) ([]byte, error) {
	switch ty.Kind {
	case catalog.KindBool:
		if v.Bool {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case catalog.KindI8:
		return append(buf, byte(int8(v.I64))), nil
	case catalog.KindU8:
		return append(buf, byte(v.U64)), nil
	case catalog.KindI16:
		return appendUint(buf, uint64(uint16(int16(v.I64))), 2), nil
	case catalog.KindU16:
		return appendUint(buf, v.U64, 2), nil
	case catalog.KindI32:
		return appendUint(buf, uint64(uint32(int32(v.I64))), 4), nil
	case catalog.KindU32:
		return appendUint(buf, v.U64, 4), nil
	case catalog.KindI64:
		return appendUint(buf, uint64(v.I64), 8), nil
	case catalog.KindU64:
		return appendUint(buf, v.U64, 8), nil
	case catalog.KindI128, catalog.KindU128, catalog.KindI256, catalog.KindU256:
		width := ty.FixedWidth()
		b := make([]byte, width)
		copy(b[width-len(v.Big):], v.Big)
		return append(buf, b...), nil
	case catalog.KindF32:
		return appendUint(buf, uint64(math.Float32bits(v.F32)), 4), nil
	case catalog.KindF64:
		return appendUint(buf, math.Float64bits(v.F64), 8), nil
	case catalog.KindString:
		return appendBytesWithLen(buf, []byte(v.Str)), nil
	case catalog.KindSum:
		if int(v.Tag) >= len(ty.Elements) {
			return nil, &TypeError{Detail: fmt.Sprintf("sum tag %d out of range (%d variants)", v.Tag, len(ty.Elements))}
		}
		buf = append(buf, v.Tag)
		payload := catalog.AlgebraicValue{}
		if v.Payload != nil {
			payload = *v.Payload
		}
		return appendValue(buf, ty.Elements[v.Tag].Type, payload)
	case catalog.KindProduct:
		if len(v.Elements) != len(ty.Elements) {
			return nil, &TypeError{Detail: fmt.Sprintf("product has %d fields, value has %d", len(ty.Elements), len(v.Elements))}
		}
		var err error
		for i, f := range ty.Elements {
			buf, err = appendValue(buf, f.Type, v.Elements[i])
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case catalog.KindArray:
		buf = appendUint(buf, uint64(len(v.Elements)), 4)
		var err error
		for _, elem := range v.Elements {
			buf, err = appendValue(buf, ty.Elem, elem)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case catalog.KindMap:
		buf = appendUint(buf, uint64(len(v.Entries)), 4)
		var err error
		for _, entry := range v.Entries {
			buf, err = appendValue(buf, ty.Key, entry.Key)
			if err != nil {
				return nil, err
			}
			buf, err = appendValue(buf, ty.Elem, entry.Value)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, &TypeError{Detail: fmt.Sprintf("unsupported type kind %s", ty.Kind)}
	}
}

func appendUint(buf []byte, v uint64, width int) []byte {
	tmp := make([]byte, 8)
	binary.LittleEndian.PutUint64(tmp, v)
	return append(buf, tmp[:width]...)
}

func appendBytesWithLen(buf, b []byte) []byte {
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, uint32(len(b)))
	buf = append(buf, tmp...)
	return append(buf, b...)
}

// Decode deserializes a BSATN value of type ty from b, returning the value
// and the number of bytes consumed.
func Decode(ty catalog.AlgebraicType, b []byte) (catalog.AlgebraicValue, int, error) {
	return decodeValue(ty, b)
}

func decodeValue(ty catalog.AlgebraicType, b []byte) (catalog.AlgebraicValue, int, error) {
	need := func(n int) error {
		if len(b) < n {
			return &TypeError{Detail: fmt.Sprintf("need %d bytes, have %d", n, len(b))}
		}
		return nil
	}
	switch ty.Kind {
	case catalog.KindBool:
		if err := need(1); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		return catalog.BoolValue(b[0] != 0), 1, nil
	case catalog.KindI8:
		if err := need(1); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		return catalog.I64Value(int64(int8(b[0]))), 1, nil
	case catalog.KindU8:
		if err := need(1); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		return catalog.U64Value(uint64(b[0])), 1, nil
	case catalog.KindI16, catalog.KindU16, catalog.KindI32, catalog.KindU32, catalog.KindI64, catalog.KindU64:
		width := ty.FixedWidth()
		if err := need(width); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		tmp := make([]byte, 8)
		copy(tmp, b[:width])
		u := binary.LittleEndian.Uint64(tmp)
		switch ty.Kind {
		case catalog.KindI16:
			return catalog.I64Value(int64(int16(uint16(u)))), width, nil
		case catalog.KindU16:
			return catalog.U64Value(uint64(uint16(u))), width, nil
		case catalog.KindI32:
			return catalog.I64Value(int64(int32(uint32(u)))), width, nil
		case catalog.KindU32:
			return catalog.U64Value(uint64(uint32(u))), width, nil
		case catalog.KindI64:
			return catalog.I64Value(int64(u)), width, nil
		default:
			return catalog.U64Value(u), width, nil
		}
	case catalog.KindI128, catalog.KindU128, catalog.KindI256, catalog.KindU256:
		width := ty.FixedWidth()
		if err := need(width); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		big := make([]byte, width)
		copy(big, b[:width])
		return catalog.AlgebraicValue{Kind: ty.Kind, Big: big}, width, nil
	case catalog.KindF32:
		if err := need(4); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		bits := binary.LittleEndian.Uint32(b[:4])
		return catalog.AlgebraicValue{Kind: catalog.KindF32, F32: math.Float32frombits(bits)}, 4, nil
	case catalog.KindF64:
		if err := need(8); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		bits := binary.LittleEndian.Uint64(b[:8])
		return catalog.AlgebraicValue{Kind: catalog.KindF64, F64: math.Float64frombits(bits)}, 8, nil
	case catalog.KindString:
		if err := need(4); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		n := int(binary.LittleEndian.Uint32(b[:4]))
		if err := need(4 + n); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		return catalog.StringValue(string(b[4 : 4+n])), 4 + n, nil
	case catalog.KindSum:
		if err := need(1); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		tag := b[0]
		if int(tag) >= len(ty.Elements) {
			return catalog.AlgebraicValue{}, 0, &TypeError{Detail: fmt.Sprintf("sum tag %d out of range", tag)}
		}
		payload, n, err := decodeValue(ty.Elements[tag].Type, b[1:])
		if err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		return catalog.AlgebraicValue{Kind: catalog.KindSum, Tag: tag, Payload: &payload}, 1 + n, nil
	case catalog.KindProduct:
		elems := make([]catalog.AlgebraicValue, len(ty.Elements))
		off := 0
		for i, f := range ty.Elements {
			v, n, err := decodeValue(f.Type, b[off:])
			if err != nil {
				return catalog.AlgebraicValue{}, 0, err
			}
			elems[i] = v
			off += n
		}
		return catalog.AlgebraicValue{Kind: catalog.KindProduct, Elements: elems}, off, nil
	case catalog.KindArray:
		if err := need(4); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		count := int(binary.LittleEndian.Uint32(b[:4]))
		off := 4
		elems := make([]catalog.AlgebraicValue, 0, count)
		for i := 0; i < count; i++ {
			v, n, err := decodeValue(ty.Elem, b[off:])
			if err != nil {
				return catalog.AlgebraicValue{}, 0, err
			}
			elems = append(elems, v)
			off += n
		}
		return catalog.AlgebraicValue{Kind: catalog.KindArray, Elements: elems}, off, nil
	case catalog.KindMap:
		if err := need(4); err != nil {
			return catalog.AlgebraicValue{}, 0, err
		}
		count := int(binary.LittleEndian.Uint32(b[:4]))
		off := 4
		entries := make([]catalog.MapEntry, 0, count)
		for i := 0; i < count; i++ {
			key, n, err := decodeValue(ty.Key, b[off:])
			if err != nil {
				return catalog.AlgebraicValue{}, 0, err
			}
			off += n
			val, n, err := decodeValue(ty.Elem, b[off:])
			if err != nil {
				return catalog.AlgebraicValue{}, 0, err
			}
			off += n
			entries = append(entries, catalog.MapEntry{Key: key, Value: val})
		}
		return catalog.AlgebraicValue{Kind: catalog.KindMap, Entries: entries}, off, nil
	default:
		return catalog.AlgebraicValue{}, 0, &TypeError{Detail: fmt.Sprintf("unsupported type kind %s", ty.Kind)}
	}
}
