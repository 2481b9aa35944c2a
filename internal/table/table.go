package table

import (
	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/page"
)

// InsertError is the error type Table.Insert reports, matching spec.md
// §4.2's Result<RowPointer, InsertError{Duplicate|OutOfMemory}>.
type InsertError struct {
	Duplicate *RowPointer
	OutOfMem  bool
}

func (e *InsertError) Error() string {
	if e.Duplicate != nil {
		return "table: duplicate key, conflicts with " + e.Duplicate.String()
	}
	return "table: out of memory"
}

// Table is typed row storage over a sequence of Pages, with B-Tree
// secondary indexes keyed by column projections of each row.
type Table struct {
	Schema  *catalog.TableSchema
	Layout  *page.RowTypeLayout
	pages   []*page.Page
	indexes map[uint32]*Index
	rowCount int
}

func NewTable(schema *catalog.TableSchema) *Table {
	t := &Table{
		Schema:  schema,
		Layout:  page.Compile(schema.RowType()),
		pages:   []*page.Page{page.NewPage()},
		indexes: make(map[uint32]*Index),
	}
	for _, def := range schema.Indexes {
		t.indexes[def.IndexID] = NewIndex(def)
	}
	return t
}

func (t *Table) RowCount() int { return t.rowCount }

func (t *Table) projectColumns(row catalog.AlgebraicValue, cols catalog.ColList) []catalog.AlgebraicValue {
	out := make([]catalog.AlgebraicValue, len(cols))
	for i, c := range cols {
		out[i] = row.Elements[c]
	}
	return out
}

// Insert encodes row, checks unique indexes first (so no partial write is
// visible on a Duplicate rejection), then writes the row and updates every
// index.
func (t *Table) Insert(blobs *page.BlobStore, row catalog.AlgebraicValue) (RowPointer, error) {
	for _, def := range t.Schema.Indexes {
		if !def.IsUnique {
			continue
		}
		idx := t.indexes[def.IndexID]
		key := t.projectColumns(row, def.Columns)
		if dups := idx.SeekEqual(key); len(dups) > 0 {
			existing := dups[0]
			return RowPointer{}, &InsertError{Duplicate: &existing}
		}
	}

	pageIdx, off, err := t.allocInAnyPage(blobs, row)
	if err != nil {
		return RowPointer{}, &InsertError{OutOfMem: true}
	}
	ptr := RowPointer{PageIndex: pageIdx, PageOffset: uint32(off)}

	for _, def := range t.Schema.Indexes {
		idx := t.indexes[def.IndexID]
		key := t.projectColumns(row, def.Columns)
		_ = idx.Insert(key, ptr) // uniqueness already checked above
	}
	t.rowCount++
	return ptr, nil
}

func (t *Table) allocInAnyPage(blobs *page.BlobStore, row catalog.AlgebraicValue) (uint32, page.Offset, error) {
	for i, p := range t.pages {
		off, err := page.WriteRow(p, blobs, t.Layout, row)
		if err == nil {
			return uint32(i), off, nil
		}
	}
	np := page.NewPage()
	t.pages = append(t.pages, np)
	off, err := page.WriteRow(np, blobs, t.Layout, row)
	if err != nil {
		return 0, page.NullOffset, err
	}
	return uint32(len(t.pages) - 1), off, nil
}

// Get reads the row at ptr without removing it.
func (t *Table) Get(blobs *page.BlobStore, ptr RowPointer) (catalog.AlgebraicValue, error) {
	p := t.pages[ptr.PageIndex]
	return page.ReadRow(p, blobs, t.Layout, page.Offset(ptr.PageOffset))
}

// Delete removes the row at ptr from every index, frees its var-len chains
// and fixed slot, and returns the value that was stored there.
func (t *Table) Delete(blobs *page.BlobStore, ptr RowPointer) (catalog.AlgebraicValue, bool) {
	if int(ptr.PageIndex) >= len(t.pages) {
		return catalog.AlgebraicValue{}, false
	}
	p := t.pages[ptr.PageIndex]
	row, err := page.ReadRow(p, blobs, t.Layout, page.Offset(ptr.PageOffset))
	if err != nil {
		return catalog.AlgebraicValue{}, false
	}
	for _, def := range t.Schema.Indexes {
		idx := t.indexes[def.IndexID]
		key := t.projectColumns(row, def.Columns)
		idx.Delete(key, ptr)
	}
	page.FreeRow(p, blobs, t.Layout, page.Offset(ptr.PageOffset))
	t.rowCount--
	return row, true
}

// DeleteEqualRow finds a row structurally equal to row (scanning, since no
// index may cover every column) and deletes it. Used by commit-log replay
// where only the logical value, not its original pointer, is known.
func (t *Table) DeleteEqualRow(blobs *page.BlobStore, row catalog.AlgebraicValue) (RowPointer, bool) {
	var found RowPointer
	ok := false
	t.ScanRows(blobs, func(ptr RowPointer, candidate catalog.AlgebraicValue) bool {
		if candidate.Equal(row) {
			found, ok = ptr, true
			return false
		}
		return true
	})
	if !ok {
		return RowPointer{}, false
	}
	t.Delete(blobs, found)
	return found, true
}

// ScanRows visits every live row in the table in arbitrary (page,offset)
// order, stopping early if fn returns false.
func (t *Table) ScanRows(blobs *page.BlobStore, fn func(RowPointer, catalog.AlgebraicValue) bool) {
	for pi, p := range t.pages {
		offsets := p.LiveFixedOffsets(t.Layout.Size)
		for _, off := range offsets {
			row, err := page.ReadRow(p, blobs, t.Layout, off)
			if err != nil {
				continue
			}
			ptr := RowPointer{PageIndex: uint32(pi), PageOffset: uint32(off)}
			if !fn(ptr, row) {
				return
			}
		}
	}
}

// IndexSeek returns row pointers matching r on the named index, ordered by
// index key.
func (t *Table) IndexSeek(indexID uint32, r Range) []RowPointer {
	idx, ok := t.indexes[indexID]
	if !ok {
		return nil
	}
	return idx.SeekRange(r)
}

func (t *Table) IndexByID(indexID uint32) (*Index, bool) {
	idx, ok := t.indexes[indexID]
	return idx, ok
}
