// Package catalog defines the engine's type universe (AlgebraicType and
// AlgebraicValue) and the schema objects (TableSchema, ColumnDef, IndexDef,
// SequenceDef) that describe the tables a module declares.
//
// Struct and constant conventions follow the teacher's pkg/types/types.go:
// plain exported structs, string-backed enums with a block of named
// constants, no getters/setters.
package catalog

import "fmt"

// TypeKind discriminates the cases of AlgebraicType.
type TypeKind string

const (
	KindBool    TypeKind = "bool"
	KindI8      TypeKind = "i8"
	KindU8      TypeKind = "u8"
	KindI16     TypeKind = "i16"
	KindU16     TypeKind = "u16"
	KindI32     TypeKind = "i32"
	KindU32     TypeKind = "u32"
	KindI64     TypeKind = "i64"
	KindU64     TypeKind = "u64"
	KindI128    TypeKind = "i128"
	KindU128    TypeKind = "u128"
	KindI256    TypeKind = "i256"
	KindU256    TypeKind = "u256"
	KindF32     TypeKind = "f32"
	KindF64     TypeKind = "f64"
	KindString  TypeKind = "string"
	KindProduct TypeKind = "product"
	KindSum     TypeKind = "sum"
	KindArray   TypeKind = "array"
	KindMap     TypeKind = "map"
	KindRef     TypeKind = "ref"
)

// AlgebraicType is the engine's type universe: primitives, product (ordered
// named fields), sum (tagged union), array(T), map(K,V), and a reference
// form used for acyclic type interning.
type AlgebraicType struct {
	Kind TypeKind

	// Product / Sum
	Elements []NamedType

	// Array / Map
	Elem AlgebraicType
	Key  AlgebraicType // Map only

	// Ref: index into a TypeRegistry
	RefIndex int
}

// NamedType is one field of a product type, or one variant of a sum type.
type NamedType struct {
	Name string
	Type AlgebraicType
}

func Primitive(kind TypeKind) AlgebraicType { return AlgebraicType{Kind: kind} }

func Product(fields ...NamedType) AlgebraicType {
	return AlgebraicType{Kind: KindProduct, Elements: fields}
}

func Sum(variants ...NamedType) AlgebraicType {
	return AlgebraicType{Kind: KindSum, Elements: variants}
}

func Array(elem AlgebraicType) AlgebraicType {
	return AlgebraicType{Kind: KindArray, Elem: elem}
}

func Map(key, value AlgebraicType) AlgebraicType {
	return AlgebraicType{Kind: KindMap, Key: key, Elem: value}
}

func Ref(index int) AlgebraicType {
	return AlgebraicType{Kind: KindRef, RefIndex: index}
}

// IsFixedLen reports whether values of this type always occupy the same
// number of bytes in a RowTypeLayout's fixed region (no var-len members).
func (t AlgebraicType) IsFixedLen() bool {
	switch t.Kind {
	case KindString, KindArray, KindMap:
		return false
	case KindProduct:
		for _, f := range t.Elements {
			if !f.Type.IsFixedLen() {
				return false
			}
		}
		return true
	case KindSum:
		for _, v := range t.Elements {
			if !v.Type.IsFixedLen() {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// FixedWidth returns the encoded width in bytes of a fixed-len primitive.
// Callers must only invoke this when IsFixedLen() is true for a primitive
// kind; product/sum widths are computed by RowTypeLayout.
func (t AlgebraicType) FixedWidth() int {
	switch t.Kind {
	case KindBool, KindI8, KindU8:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32, KindF32:
		return 4
	case KindI64, KindU64, KindF64:
		return 8
	case KindI128, KindU128:
		return 16
	case KindI256, KindU256:
		return 32
	default:
		return 0
	}
}

// TypeRegistry interns AlgebraicTypes referenced via Ref, enforcing
// acyclicity: a Ref may only point at an index that was registered before
// the Ref itself is constructed by a caller walking the registry in order.
type TypeRegistry struct {
	types []AlgebraicType
}

func NewTypeRegistry() *TypeRegistry { return &TypeRegistry{} }

// Intern appends a type and returns the Ref index for it.
func (r *TypeRegistry) Intern(t AlgebraicType) int {
	r.types = append(r.types, t)
	return len(r.types) - 1
}

// Resolve returns the type a Ref refers to, recursively resolving nested
// Refs. Returns an error if idx is out of range or a cycle is detected.
func (r *TypeRegistry) Resolve(t AlgebraicType) (AlgebraicType, error) {
	seen := map[int]bool{}
	for t.Kind == KindRef {
		if seen[t.RefIndex] {
			return AlgebraicType{}, fmt.Errorf("catalog: cyclic type reference at index %d", t.RefIndex)
		}
		seen[t.RefIndex] = true
		if t.RefIndex < 0 || t.RefIndex >= len(r.types) {
			return AlgebraicType{}, fmt.Errorf("catalog: type ref %d out of range", t.RefIndex)
		}
		t = r.types[t.RefIndex]
	}
	return t, nil
}

// AccessLevel controls whether a table is visible to non-owner clients
// absent an RLS rule.
type AccessLevel string

const (
	AccessPublic  AccessLevel = "public"
	AccessPrivate AccessLevel = "private"
)

// TableType distinguishes system catalog tables from user-defined ones.
type TableType string

const (
	TableTypeSystem TableType = "system"
	TableTypeUser   TableType = "user"
)

// IndexType is the physical index structure.
type IndexType string

const (
	IndexTypeBTree IndexType = "btree"
	IndexTypeHash  IndexType = "hash"
)

// ColumnDef describes one column of a table.
type ColumnDef struct {
	ColPos  int
	ColName string
	ColType AlgebraicType
}

// ColList is an ordered list of column positions, e.g. the columns an index
// or sequence is keyed on.
type ColList []int

// IndexDef describes a B-Tree or hash index over one or more columns.
type IndexDef struct {
	IndexID   uint32
	Columns   ColList
	IndexType IndexType
	IsUnique  bool
	IndexName string
}

// SequenceDef describes an auto-incrementing counter bound to a column.
type SequenceDef struct {
	SequenceID uint32
	ColPos     int
	Start      int64
	Min        int64
	Max        int64
	Increment  int64
	Allocated  int64
}

// UniqueConstraint names a set of columns that must be unique, independent
// of whether a unique index backs it.
type UniqueConstraint struct {
	Columns        ColList
	ConstraintName string
}

// Schedule marks a table as reducer-scheduled: rows whose at_column elapses
// trigger a reducer call. The reducer sandbox that consumes this is out of
// scope; the catalog only records the declaration.
type Schedule struct {
	AtColumn     int
	ReducerName  string
}

// TableSchema is the full, validated definition of one table.
type TableSchema struct {
	TableID         uint32
	TableName       string
	Access          AccessLevel
	TableType       TableType
	Columns         []ColumnDef
	Indexes         []IndexDef
	Sequences       []SequenceDef
	UniqueConstraints []UniqueConstraint
	Schedule        *Schedule
	ProductTypeRef  int
}

// RowType returns the product AlgebraicType implied by Columns, in column
// order. A valid schema requires this to be structurally equal to whatever
// ProductTypeRef resolves to in the owning TypeRegistry.
func (s *TableSchema) RowType() AlgebraicType {
	fields := make([]NamedType, len(s.Columns))
	for i, c := range s.Columns {
		fields[i] = NamedType{Name: c.ColName, Type: c.ColType}
	}
	return Product(fields...)
}

// Validate checks the invariants spec.md §3 requires of a TableSchema:
// every col_pos is within range, every index/constraint/sequence column
// reference resolves, and (if registry is non-nil) ProductTypeRef resolves
// to a product structurally equal to the schema's columns.
func (s *TableSchema) Validate(registry *TypeRegistry) error {
	n := len(s.Columns)
	for i, c := range s.Columns {
		if c.ColPos < 0 || c.ColPos >= n {
			return fmt.Errorf("catalog: table %q column %q has out-of-range col_pos %d", s.TableName, c.ColName, c.ColPos)
		}
		if c.ColPos != i {
			return fmt.Errorf("catalog: table %q column %q col_pos %d does not match declaration order %d", s.TableName, c.ColName, c.ColPos, i)
		}
	}
	checkCols := func(cols ColList, what string) error {
		for _, pos := range cols {
			if pos < 0 || pos >= n {
				return fmt.Errorf("catalog: table %q %s references out-of-range column %d", s.TableName, what, pos)
			}
		}
		return nil
	}
	for _, idx := range s.Indexes {
		if err := checkCols(idx.Columns, fmt.Sprintf("index %q", idx.IndexName)); err != nil {
			return err
		}
	}
	for _, uc := range s.UniqueConstraints {
		if err := checkCols(uc.Columns, fmt.Sprintf("unique constraint %q", uc.ConstraintName)); err != nil {
			return err
		}
	}
	for _, sq := range s.Sequences {
		if sq.ColPos < 0 || sq.ColPos >= n {
			return fmt.Errorf("catalog: table %q sequence %d references out-of-range column %d", s.TableName, sq.SequenceID, sq.ColPos)
		}
	}
	if s.Schedule != nil {
		if s.Schedule.AtColumn < 0 || s.Schedule.AtColumn >= n {
			return fmt.Errorf("catalog: table %q schedule references out-of-range column %d", s.TableName, s.Schedule.AtColumn)
		}
	}
	if registry != nil {
		resolved, err := registry.Resolve(Ref(s.ProductTypeRef))
		if err != nil {
			return fmt.Errorf("catalog: table %q product_type_ref: %w", s.TableName, err)
		}
		if !structurallyEqual(resolved, s.RowType()) {
			return fmt.Errorf("catalog: table %q product_type_ref does not match its columns", s.TableName)
		}
	}
	return nil
}

func structurallyEqual(a, b AlgebraicType) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindProduct, KindSum:
		if len(a.Elements) != len(b.Elements) {
			return false
		}
		for i := range a.Elements {
			if a.Elements[i].Name != b.Elements[i].Name || !structurallyEqual(a.Elements[i].Type, b.Elements[i].Type) {
				return false
			}
		}
		return true
	case KindArray:
		return structurallyEqual(a.Elem, b.Elem)
	case KindMap:
		return structurallyEqual(a.Key, b.Key) && structurallyEqual(a.Elem, b.Elem)
	default:
		return true
	}
}

// ColumnByName looks up a column by name.
func (s *TableSchema) ColumnByName(name string) (ColumnDef, bool) {
	for _, c := range s.Columns {
		if c.ColName == name {
			return c, true
		}
	}
	return ColumnDef{}, false
}

// System catalog table ids, per spec.md §3.
const (
	StTablesID     uint32 = 0
	StColumnsID    uint32 = 1
	StIndexesID    uint32 = 2
	StConstraintsID uint32 = 3
	StSequencesID  uint32 = 4
	StModuleID     uint32 = 5

	FirstUserTableID uint32 = 6
)
