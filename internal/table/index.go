package table

import (
	"fmt"
	"strings"

	"github.com/google/btree"

	"github.com/cuemby/spacetime/internal/catalog"
)

// indexKey is a composite key over one or more AlgebraicValues plus the
// RowPointer it resolves to, ordered first by key then by pointer so a
// non-unique index can hold many entries under the same key.
type indexKey struct {
	values []catalog.AlgebraicValue
	ptr    RowPointer
}

func compareValues(a, b []catalog.AlgebraicValue) int {
	for i := range a {
		if c := a[i].Compare(b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func (k indexKey) Less(than btree.Item) bool {
	o := than.(indexKey)
	if c := compareValues(k.values, o.values); c != 0 {
		return c < 0
	}
	if k.ptr.PageIndex != o.ptr.PageIndex {
		return k.ptr.PageIndex < o.ptr.PageIndex
	}
	return k.ptr.PageOffset < o.ptr.PageOffset
}

// Index is a B-Tree secondary index over a fixed list of column positions.
// Unique indexes reject a second insertion under an existing key (spec.md
// §4.2: "at-most-one of (table, unique-key) holds at any instant").
type Index struct {
	Def      catalog.IndexDef
	tree     *btree.BTree
	byKeyOnly map[string][]RowPointer // only populated when unique, for O(1) duplicate detection
}

const btreeDegree = 32

func NewIndex(def catalog.IndexDef) *Index {
	idx := &Index{Def: def, tree: btree.New(btreeDegree)}
	if def.IsUnique {
		idx.byKeyOnly = make(map[string][]RowPointer)
	}
	return idx
}

// ErrDuplicate is returned by Insert on a unique index when key already has
// an entry, naming the conflicting pointer.
type ErrDuplicate struct {
	Existing RowPointer
}

func (e *ErrDuplicate) Error() string { return "table: duplicate key, conflicts with " + e.Existing.String() }

// keyString renders a composite key to a comparable-for-equality string,
// used only for O(1) duplicate detection on unique indexes; ordering for
// range scans always goes through AlgebraicValue.Compare via the B-Tree.
func keyString(values []catalog.AlgebraicValue) string {
	var b strings.Builder
	for _, v := range values {
		fmt.Fprintf(&b, "%s:", v.Kind)
		switch v.Kind {
		case catalog.KindBool:
			fmt.Fprintf(&b, "%v", v.Bool)
		case catalog.KindI8, catalog.KindI16, catalog.KindI32, catalog.KindI64:
			fmt.Fprintf(&b, "%d", v.I64)
		case catalog.KindU8, catalog.KindU16, catalog.KindU32, catalog.KindU64:
			fmt.Fprintf(&b, "%d", v.U64)
		case catalog.KindI128, catalog.KindU128, catalog.KindI256, catalog.KindU256:
			b.Write(v.Big)
		case catalog.KindF32:
			fmt.Fprintf(&b, "%g", v.F32)
		case catalog.KindF64:
			fmt.Fprintf(&b, "%g", v.F64)
		case catalog.KindString:
			b.WriteString(v.Str)
		}
		b.WriteByte(0)
	}
	return b.String()
}

func (idx *Index) Insert(values []catalog.AlgebraicValue, ptr RowPointer) error {
	if idx.Def.IsUnique {
		ks := keyString(values)
		if existing, ok := idx.byKeyOnly[ks]; ok && len(existing) > 0 {
			return &ErrDuplicate{Existing: existing[0]}
		}
		idx.byKeyOnly[ks] = append(idx.byKeyOnly[ks], ptr)
	}
	idx.tree.ReplaceOrInsert(indexKey{values: values, ptr: ptr})
	return nil
}

func (idx *Index) Delete(values []catalog.AlgebraicValue, ptr RowPointer) {
	idx.tree.Delete(indexKey{values: values, ptr: ptr})
	if idx.Def.IsUnique {
		ks := keyString(values)
		delete(idx.byKeyOnly, ks)
	}
}

// SeekEqual returns every row pointer indexed under values (an equality
// lookup on a column prefix).
func (idx *Index) SeekEqual(values []catalog.AlgebraicValue) []RowPointer {
	var out []RowPointer
	lo := indexKey{values: values, ptr: RowPointer{}}
	idx.tree.AscendGreaterOrEqual(lo, func(item btree.Item) bool {
		k := item.(indexKey)
		if compareValues(k.values, values) != 0 {
			return false
		}
		out = append(out, k.ptr)
		return true
	})
	return out
}

// Range describes an index-seek bound: Lo/Hi may be nil for an unbounded
// side, and *Inclusive toggles whether the respective bound is closed.
type Range struct {
	Lo          []catalog.AlgebraicValue
	LoInclusive bool
	Hi          []catalog.AlgebraicValue
	HiInclusive bool
}

// SeekRange returns row pointers ordered by index key within the given
// bounds.
func (idx *Index) SeekRange(r Range) []RowPointer {
	var out []RowPointer
	visit := func(item btree.Item) bool {
		k := item.(indexKey)
		if r.Hi != nil {
			c := compareValues(k.values, r.Hi)
			if c > 0 || (c == 0 && !r.HiInclusive) {
				return false
			}
		}
		out = append(out, k.ptr)
		return true
	}
	if r.Lo != nil {
		lo := indexKey{values: r.Lo, ptr: RowPointer{}}
		if r.LoInclusive {
			idx.tree.AscendGreaterOrEqual(lo, visit)
		} else {
			idx.tree.AscendGreaterOrEqual(lo, func(item btree.Item) bool {
				k := item.(indexKey)
				if compareValues(k.values, r.Lo) == 0 {
					return true
				}
				return visit(item)
			})
		}
	} else {
		idx.tree.Ascend(visit)
	}
	return out
}

