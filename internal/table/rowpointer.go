// Package table implements typed row storage over pages: insert/delete/scan
// with row-pointer indirection and B-Tree secondary indexes keyed by
// AlgebraicValue projections (spec.md §4.2).
//
// Grounded on the teacher's pkg/storage.Store interface shape (explicit
// insert/delete/scan verbs returning typed errors) and on
// original_source/.../table.rs, row_type_visitor.rs for row-pointer and
// index-seek semantics.
package table

import "fmt"

// RowPointer is a stable 8-byte handle to a row: which page it lives in and
// its offset within that page. It remains valid until the row is deleted,
// even across index rebuilds.
type RowPointer struct {
	PageIndex  uint32
	PageOffset uint32
}

func (p RowPointer) String() string {
	return fmt.Sprintf("RowPointer{page:%d,offset:%d}", p.PageIndex, p.PageOffset)
}

var NullRowPointer = RowPointer{PageIndex: ^uint32(0), PageOffset: ^uint32(0)}

func (p RowPointer) IsNull() bool { return p == NullRowPointer }
