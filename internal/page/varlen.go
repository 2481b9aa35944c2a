package page

// VarLenRef is the 4-byte-equivalent descriptor embedded in a row's fixed
// region at the offsets its visitor program names. LargeBlobSentinel marks
// a reference into the blob store rather than an inline granule chain.
type VarLenRef struct {
	LengthInBytes uint16
	FirstGranule  Offset
}

const LargeBlobSentinel = 0xFFFF

func LargeBlobRef(granule Offset) VarLenRef {
	return VarLenRef{LengthInBytes: LargeBlobSentinel, FirstGranule: granule}
}

func (r VarLenRef) IsLargeBlob() bool { return r.LengthInBytes == LargeBlobSentinel }
func (r VarLenRef) IsNull() bool      { return r.FirstGranule.IsNull() }

func (r VarLenRef) GranulesUsed() int {
	n := (int(r.LengthInBytes) + GranuleDataSize - 1) / GranuleDataSize
	if n == 0 {
		return 0
	}
	return n
}

// BytesToGranules returns how many inline granules an object of lenInBytes
// would need, and whether it must go to the blob store instead.
func BytesToGranules(lenInBytes int) (granules int, toBlob bool) {
	if lenInBytes > ObjectSizeBlobThreshold {
		return 1, true
	}
	if lenInBytes == 0 {
		return 0, false
	}
	return (lenInBytes + GranuleDataSize - 1) / GranuleDataSize, false
}

// VisitorOp is one instruction of a row type's compiled var-len visitor
// program (spec.md §4.1).
type VisitorOp struct {
	Kind   VisitorOpKind
	Offset int // for VisitOffset: fixed-region byte offset of a VarLenRef
	Tag    int // for SwitchOnTag: fixed-region byte offset of the sum tag byte
	Cases  map[uint8][]VisitorOp // for SwitchOnTag: sub-program per tag value
	Target int                   // for Goto: index into the enclosing program (unused by the flat interpreter below)
}

type VisitorOpKind int

const (
	VisitOffset VisitorOpKind = iota
	SwitchOnTag
)

// VisitorProgram is the compiled sequence of VisitorOps for one row type,
// built once by a RowTypeLayout and reused for every row of that type.
type VisitorProgram []VisitorOp

// Visit enumerates the VarLenRef fixed-offsets live in a particular row
// instance (reading sum tags out of row to pick the right branch), calling
// fn for each in program order. Two VisitorPrograms compiled from the same
// row type must enumerate the same set of offsets in the same order; this
// holds here because both bsatn row-layout compilation and visitor
// compilation walk a TableSchema's columns in declaration order.
func (prog VisitorProgram) Visit(row []byte, fn func(offset int)) {
	visitOps(prog, row, fn)
}

func visitOps(ops []VisitorOp, row []byte, fn func(offset int)) {
	for _, op := range ops {
		switch op.Kind {
		case VisitOffset:
			fn(op.Offset)
		case SwitchOnTag:
			tag := row[op.Tag]
			if sub, ok := op.Cases[tag]; ok {
				visitOps(sub, row, fn)
			}
		}
	}
}
