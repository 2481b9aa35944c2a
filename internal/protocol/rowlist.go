package protocol

// SizeHintKind discriminates BsatnRowList's two encodings.
type SizeHintKind int

const (
	// SizeHintFixed means every row is exactly FixedSize bytes; per-row
	// offsets are implicit (index * FixedSize).
	SizeHintFixed SizeHintKind = iota
	// SizeHintOffsets means rows vary in length; Offsets gives each row's
	// start offset into RowsData explicitly.
	SizeHintOffsets
)

// BsatnRowList packs a sequence of already-BSATN-encoded rows for the
// wire, per spec.md §6: a fixed per-row size hint when every row
// serializes to the same length (the common case for fixed-width table
// schemas), or an explicit offset table otherwise.
type BsatnRowList struct {
	HintKind  SizeHintKind
	FixedSize uint16
	Offsets   []uint64
	RowsData  []byte
}

// EncodeRowList packs rows into a BsatnRowList, picking the fixed-size
// encoding when every row has the same length and that length fits in a
// uint16, falling back to an explicit offset table otherwise.
func EncodeRowList(rows [][]byte) BsatnRowList {
	if len(rows) == 0 {
		return BsatnRowList{HintKind: SizeHintFixed, FixedSize: 0}
	}
	fixed := true
	first := len(rows[0])
	for _, r := range rows[1:] {
		if len(r) != first {
			fixed = false
			break
		}
	}

	var data []byte
	for _, r := range rows {
		data = append(data, r...)
	}

	if fixed && first <= int(^uint16(0)) {
		return BsatnRowList{HintKind: SizeHintFixed, FixedSize: uint16(first), RowsData: data}
	}

	offsets := make([]uint64, len(rows))
	var off uint64
	for i, r := range rows {
		offsets[i] = off
		off += uint64(len(r))
	}
	return BsatnRowList{HintKind: SizeHintOffsets, Offsets: offsets, RowsData: data}
}

// Rows splits RowsData back into its individual row byte slices.
func (l BsatnRowList) Rows() [][]byte {
	switch l.HintKind {
	case SizeHintFixed:
		if l.FixedSize == 0 {
			return nil
		}
		n := len(l.RowsData) / int(l.FixedSize)
		out := make([][]byte, n)
		for i := 0; i < n; i++ {
			out[i] = l.RowsData[i*int(l.FixedSize) : (i+1)*int(l.FixedSize)]
		}
		return out
	case SizeHintOffsets:
		out := make([][]byte, len(l.Offsets))
		for i, off := range l.Offsets {
			end := uint64(len(l.RowsData))
			if i+1 < len(l.Offsets) {
				end = l.Offsets[i+1]
			}
			out[i] = l.RowsData[off:end]
		}
		return out
	default:
		return nil
	}
}

// NumRows reports how many rows a BsatnRowList holds.
func (l BsatnRowList) NumRows() int {
	switch l.HintKind {
	case SizeHintFixed:
		if l.FixedSize == 0 {
			return 0
		}
		return len(l.RowsData) / int(l.FixedSize)
	case SizeHintOffsets:
		return len(l.Offsets)
	default:
		return 0
	}
}
