package page

import (
	"encoding/binary"
	"math"

	"github.com/cuemby/spacetime/internal/bsatn"
	"github.com/cuemby/spacetime/internal/catalog"
)

// RowTypeLayout enriches a product AlgebraicType with computed byte size
// and per-field fixed-region offsets, plus the compiled VisitorProgram used
// to enumerate its VarLenRef fields. Only non-nested product/primitive rows
// are supported directly; fields that are themselves var-len (string,
// array, map) occupy a 4-byte slot in the fixed region: the encoded
// VarLenRef (2-byte length plus 2-byte granule offset).
type RowTypeLayout struct {
	Type    catalog.AlgebraicType
	Size    int
	Offsets []int // per top-level field, offset into the fixed region
	Visitor VisitorProgram
}

const varLenSlotSize = 4 // encoded VarLenRef: 2 bytes length + 2 bytes offset-low (page.Offset truncated)

// Compile computes offsets for a row's top-level fields in declaration
// order. Every field that is not fixed-width (sums included) gets one
// VisitOffset op; no SwitchOnTag branch is emitted. This does not recurse
// into nested products, which is sufficient for the flat table
// rows this engine supports (spec.md's TableSchema columns are never
// themselves table-valued).
func Compile(rowType catalog.AlgebraicType) *RowTypeLayout {
	layout := &RowTypeLayout{Type: rowType}
	offset := 0
	var ops []VisitorOp
	for _, f := range rowType.Elements {
		layout.Offsets = append(layout.Offsets, offset)
		if f.Type.IsFixedLen() {
			offset += f.Type.FixedWidth()
		} else {
			ops = append(ops, VisitorOp{Kind: VisitOffset, Offset: offset})
			offset += varLenSlotSize
		}
	}
	if offset < 4 {
		offset = 4 // fixed-region freelist threads a 4-byte next-pointer through freed slots
	}
	layout.Size = offset
	layout.Visitor = ops
	return layout
}

// WriteRow performs the BSATN-write-to-page procedure of spec.md §4.1:
// allocate a fixed slot, then for each field either write the fixed-width
// primitive directly or eagerly allocate a var-len granule chain (or a blob
// store entry above ObjectSizeBlobThreshold) and write the resulting
// VarLenRef into the slot. Any allocation failure unwinds every var-len
// granule chain allocated so far, in visitor order, before freeing the
// fixed slot.
func WriteRow(p *Page, blobs *BlobStore, layout *RowTypeLayout, row catalog.AlgebraicValue) (Offset, error) {
	off, err := p.AllocFixed(layout.Size)
	if err != nil {
		return NullOffset, err
	}
	var allocatedRefs []VarLenRef
	unwind := func() {
		for _, ref := range allocatedRefs {
			if !ref.IsLargeBlob() {
				p.FreeVarLenChain(ref)
			}
		}
		p.FreeFixed(off, layout.Size)
	}

	buf := p.Bytes(off, layout.Size)
	for i, f := range layout.Type.Elements {
		fieldOff := layout.Offsets[i]
		val := row.Elements[i]
		if f.Type.IsFixedLen() {
			writeFixedPrimitive(buf[fieldOff:], f.Type, val)
			continue
		}
		encoded, err := bsatn.Encode(f.Type, val)
		if err != nil {
			unwind()
			return NullOffset, err
		}
		var ref VarLenRef
		if _, toBlob := BytesToGranules(len(encoded)); toBlob {
			hash := blobs.Insert(encoded)
			granuleOff, gerr := p.allocGranule()
			if gerr != nil {
				unwind()
				return NullOffset, gerr
			}
			g := p.granules[granuleOff]
			g.len = uint8(len(hash))
			copy(g.data[:], hash[:])
			ref = LargeBlobRef(granuleOff)
		} else {
			ref, err = p.AllocVarLenSlice(encoded)
			if err != nil {
				unwind()
				return NullOffset, err
			}
		}
		allocatedRefs = append(allocatedRefs, ref)
		writeVarLenRef(buf[fieldOff:], ref)
	}
	return off, nil
}

// ReadRow decodes a previously written row back into an AlgebraicValue,
// resolving var-len fields (inline or blob-indirected) via blobs.
func ReadRow(p *Page, blobs *BlobStore, layout *RowTypeLayout, off Offset) (catalog.AlgebraicValue, error) {
	buf := p.Bytes(off, layout.Size)
	elems := make([]catalog.AlgebraicValue, len(layout.Type.Elements))
	for i, f := range layout.Type.Elements {
		fieldOff := layout.Offsets[i]
		if f.Type.IsFixedLen() {
			elems[i] = readFixedPrimitive(buf[fieldOff:], f.Type)
			continue
		}
		ref := readVarLenRef(buf[fieldOff:])
		var raw []byte
		if ref.IsLargeBlob() {
			g := p.granules[ref.FirstGranule]
			var hash BlobHash
			copy(hash[:], g.data[:g.len])
			data, ok := blobs.Get(hash)
			if !ok {
				return catalog.AlgebraicValue{}, &bsatn.TypeError{Detail: "blob not found"}
			}
			raw = data
		} else {
			raw = p.ReadVarLen(ref)
		}
		val, _, err := bsatn.Decode(f.Type, raw)
		if err != nil {
			return catalog.AlgebraicValue{}, err
		}
		elems[i] = val
	}
	return catalog.AlgebraicValue{Kind: catalog.KindProduct, Elements: elems}, nil
}

// FreeRow frees every var-len chain and blob reference a row holds, then
// the fixed slot itself, walking the layout's VisitorProgram the same way
// WriteRow populated it.
func FreeRow(p *Page, blobs *BlobStore, layout *RowTypeLayout, off Offset) {
	buf := p.Bytes(off, layout.Size)
	for i, f := range layout.Type.Elements {
		if f.Type.IsFixedLen() {
			continue
		}
		fieldOff := layout.Offsets[i]
		ref := readVarLenRef(buf[fieldOff:])
		if ref.IsLargeBlob() {
			g := p.granules[ref.FirstGranule]
			var hash BlobHash
			copy(hash[:], g.data[:g.len])
			blobs.Release(hash)
			p.freeGranule(ref.FirstGranule)
		} else {
			p.FreeVarLenChain(ref)
		}
	}
	p.FreeFixed(off, layout.Size)
}

func writeFixedPrimitive(buf []byte, ty catalog.AlgebraicType, v catalog.AlgebraicValue) {
	switch ty.Kind {
	case catalog.KindBool:
		if v.Bool {
			buf[0] = 1
		} else {
			buf[0] = 0
		}
	case catalog.KindI8:
		buf[0] = byte(int8(v.I64))
	case catalog.KindU8:
		buf[0] = byte(v.U64)
	case catalog.KindI16:
		binary.LittleEndian.PutUint16(buf, uint16(int16(v.I64)))
	case catalog.KindU16:
		binary.LittleEndian.PutUint16(buf, uint16(v.U64))
	case catalog.KindI32:
		binary.LittleEndian.PutUint32(buf, uint32(int32(v.I64)))
	case catalog.KindU32:
		binary.LittleEndian.PutUint32(buf, uint32(v.U64))
	case catalog.KindI64:
		binary.LittleEndian.PutUint64(buf, uint64(v.I64))
	case catalog.KindU64:
		binary.LittleEndian.PutUint64(buf, v.U64)
	case catalog.KindF32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v.F32))
	case catalog.KindF64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v.F64))
	case catalog.KindI128, catalog.KindU128, catalog.KindI256, catalog.KindU256:
		width := ty.FixedWidth()
		copy(buf[width-len(v.Big):width], v.Big)
	}
}

func readFixedPrimitive(buf []byte, ty catalog.AlgebraicType) catalog.AlgebraicValue {
	switch ty.Kind {
	case catalog.KindBool:
		return catalog.BoolValue(buf[0] != 0)
	case catalog.KindI8:
		return catalog.I64Value(int64(int8(buf[0])))
	case catalog.KindU8:
		return catalog.U64Value(uint64(buf[0]))
	case catalog.KindI16:
		return catalog.I64Value(int64(int16(binary.LittleEndian.Uint16(buf))))
	case catalog.KindU16:
		return catalog.U64Value(uint64(binary.LittleEndian.Uint16(buf)))
	case catalog.KindI32:
		return catalog.I64Value(int64(int32(binary.LittleEndian.Uint32(buf))))
	case catalog.KindU32:
		return catalog.U64Value(uint64(binary.LittleEndian.Uint32(buf)))
	case catalog.KindI64:
		return catalog.I64Value(int64(binary.LittleEndian.Uint64(buf)))
	case catalog.KindU64:
		return catalog.U64Value(binary.LittleEndian.Uint64(buf))
	case catalog.KindF32:
		return catalog.AlgebraicValue{Kind: catalog.KindF32, F32: math.Float32frombits(binary.LittleEndian.Uint32(buf))}
	case catalog.KindF64:
		return catalog.AlgebraicValue{Kind: catalog.KindF64, F64: math.Float64frombits(binary.LittleEndian.Uint64(buf))}
	case catalog.KindI128, catalog.KindU128, catalog.KindI256, catalog.KindU256:
		width := ty.FixedWidth()
		big := make([]byte, width)
		copy(big, buf[:width])
		return catalog.AlgebraicValue{Kind: ty.Kind, Big: big}
	default:
		return catalog.AlgebraicValue{}
	}
}

func writeVarLenRef(buf []byte, ref VarLenRef) {
	binary.LittleEndian.PutUint16(buf, ref.LengthInBytes)
	binary.LittleEndian.PutUint16(buf[2:], uint16(ref.FirstGranule))
}

func readVarLenRef(buf []byte) VarLenRef {
	length := binary.LittleEndian.Uint16(buf)
	off := binary.LittleEndian.Uint16(buf[2:])
	return VarLenRef{LengthInBytes: length, FirstGranule: Offset(off)}
}
