package query

import "github.com/cuemby/spacetime/internal/catalog"

// PhysicalPlan is the lowered, executable form of a LogicalPlan (spec.md
// §4.6): TableScan, IxScan, IxJoin, HashJoin, NLJoin, and Filter, composed
// by a trailing PipelinedProject that selects one element of a join tuple
// or passes rows through untouched.
type PhysicalPlan interface{ isPhysicalPlan() }

// TableScan iterates a table's committed rows, or (when Delta is not
// DeltaNone) the insert or delete set of the transaction currently being
// diffed for subscribers.
type TableScan struct {
	TableID   uint32
	TableName string
	Delta     Delta
}

func (*TableScan) isPhysicalPlan() {}

// IxScanArg selects an equality probe or a range probe on the scan's
// trailing (non-prefix) column.
type IxScanArg struct {
	IsRange bool

	// Eq
	EqValue catalog.AlgebraicValue

	// Range
	Lower, Upper           *catalog.AlgebraicValue
	LowerIncl, UpperIncl   bool
}

// IxPrefixEntry is one equality-bound column of an index-scan prefix.
type IxPrefixEntry struct {
	Col   int
	Value catalog.AlgebraicValue
}

// IxScan probes an index with an equality prefix followed by an optional
// equality or range argument on the next column (spec.md §4.2: "no
// skip-scan").
type IxScan struct {
	TableID   uint32
	TableName string
	IndexID   uint32
	Prefix    []IxPrefixEntry
	Arg       IxScanArg
}

func (*IxScan) isPhysicalPlan() {}

// IxJoin walks Lhs, projects LhsField from each tuple, and probes an index
// on RhsTable's RhsField. Unique short-circuits after the first match;
// Semi controls which side's rows are emitted.
type IxJoin struct {
	Lhs                    PhysicalPlan
	RhsTableID             uint32
	RhsTableName           string
	RhsIndexID             uint32
	RhsField, LhsField     int
	Unique                 bool
	Semi                   Semi
}

func (*IxJoin) isPhysicalPlan() {}

// HashJoin builds an in-memory multimap of Rhs keyed by RhsField (unless
// Unique, in which case a plain map) then probes with every Lhs tuple.
// Pipeline-breaking on Rhs (spec.md §4.6).
type HashJoin struct {
	Lhs, Rhs           PhysicalPlan
	LhsField, RhsField int
	Unique             bool
	Semi               Semi
}

func (*HashJoin) isPhysicalPlan() {}

// NLJoin is the fallback nested-loop join used when neither side has a
// usable index and no hash key is available; pipeline-breaking on Rhs.
type NLJoin struct {
	Lhs, Rhs PhysicalPlan
	Expr     *Expr
}

func (*NLJoin) isPhysicalPlan() {}

// Filter evaluates Expr over each tuple Input produces, passing through
// only those for which it is true.
type Filter struct {
	Input PhysicalPlan
	Expr  *Expr
}

func (*Filter) isPhysicalPlan() {}

// Project is the trailing PipelinedProject: HasIndex false passes the
// input tuple through unprojected (callers receive either a single Row or
// a join Tuple); true selects the Index-th row of a join tuple.
type Project struct {
	Input    PhysicalPlan
	Index    int
	HasIndex bool
}
