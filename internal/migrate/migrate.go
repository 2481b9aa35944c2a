package migrate

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/datastore"
)

// DatabaseDef is a full schema snapshot: every table a module declares,
// keyed by name. Plan diffs two of these — the schema currently running
// and the one a freshly published module wants.
type DatabaseDef struct {
	Tables map[string]*catalog.TableSchema
}

// PrecheckKind discriminates Precheck cases.
type PrecheckKind int

const (
	// CheckAddSequenceRangeValid verifies that adding Sequence to Table is
	// safe: no existing row's value in the sequenced column lies outside
	// the sequence's configured range or at or above its start.
	CheckAddSequenceRangeValid PrecheckKind = iota
)

// Precheck is a data-dependent condition that must hold before an
// AutoMigratePlan's steps may be applied; unlike the steps themselves,
// answering it requires reading the running database's row contents.
type Precheck struct {
	Kind     PrecheckKind
	Table    string
	Sequence catalog.SequenceDef
}

// StepKind discriminates Step cases.
type StepKind int

const (
	AddTable StepKind = iota
	AddIndex
	RemoveIndex
	RemoveUniqueConstraint
	AddSequence
	RemoveSequence
	ChangeAccess
	AddSchedule
	RemoveSchedule
)

func (k StepKind) String() string {
	switch k {
	case AddTable:
		return "add_table"
	case AddIndex:
		return "add_index"
	case RemoveIndex:
		return "remove_index"
	case RemoveUniqueConstraint:
		return "remove_unique_constraint"
	case AddSequence:
		return "add_sequence"
	case RemoveSequence:
		return "remove_sequence"
	case ChangeAccess:
		return "change_access"
	case AddSchedule:
		return "add_schedule"
	case RemoveSchedule:
		return "remove_schedule"
	default:
		return "unknown"
	}
}

// Step is one independent change an automatic migration applies. Order
// between steps never matters — each names the table and, where
// applicable, the index/sequence/constraint it concerns.
type Step struct {
	Kind      StepKind
	Table     string
	IndexName string
	Sequence  catalog.SequenceDef
	Access    catalog.AccessLevel
}

// Plan is the result of a successful diff: the prechecks that must pass
// before Steps are safe to apply, and the steps themselves.
type Plan struct {
	Old, New *DatabaseDef
	Prechecks []Precheck
	Steps     []Step
}

// ErrorKind discriminates why an automatic migration was rejected.
type ErrorKind int

const (
	AddColumnRequiresManual ErrorKind = iota
	RemoveColumnRequiresManual
	ChangeColumnTypeRequiresManual
	AddUniqueConstraintRequiresManual
	RemoveTableRequiresManual
	ChangeTableTypeRequiresManual
)

// Error reports one change an automatic migration cannot safely make.
type Error struct {
	Kind          ErrorKind
	Table, Column string
	Columns       []string
}

func (e *Error) Error() string {
	switch e.Kind {
	case AddColumnRequiresManual:
		return fmt.Sprintf("migrate: adding column %q to table %q requires a manual migration", e.Column, e.Table)
	case RemoveColumnRequiresManual:
		return fmt.Sprintf("migrate: removing column %q from table %q requires a manual migration", e.Column, e.Table)
	case ChangeColumnTypeRequiresManual:
		return fmt.Sprintf("migrate: changing the type of column %q in table %q requires a manual migration", e.Column, e.Table)
	case AddUniqueConstraintRequiresManual:
		return fmt.Sprintf("migrate: adding a unique constraint on %s to table %q requires a manual migration", strings.Join(e.Columns, ","), e.Table)
	case RemoveTableRequiresManual:
		return fmt.Sprintf("migrate: removing table %q requires a manual migration", e.Table)
	case ChangeTableTypeRequiresManual:
		return fmt.Sprintf("migrate: changing the table type of %q requires a manual migration", e.Table)
	default:
		return "migrate: requires a manual migration"
	}
}

// Errors collects every rejection found while diffing, so a caller can
// report them all at once rather than one at a time.
type Errors []*Error

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, err := range e {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// PlanMigration constructs an automatic migration plan from old to new, or rejects
// with every reason automatic migration is unavailable. Both DatabaseDefs
// are assumed already schema-valid (catalog.TableSchema.Validate), so the
// diff only needs to compare their shapes (spec.md §9).
func PlanMigration(old, new *DatabaseDef) (*Plan, error) {
	var errs Errors
	plan := &Plan{Old: old, New: new}

	for name, oldTable := range old.Tables {
		newTable, ok := new.Tables[name]
		if !ok {
			errs = append(errs, &Error{Kind: RemoveTableRequiresManual, Table: name})
			continue
		}

		if oldTable.TableType != newTable.TableType {
			errs = append(errs, &Error{Kind: ChangeTableTypeRequiresManual, Table: name})
		}
		if oldTable.Access != newTable.Access {
			plan.Steps = append(plan.Steps, Step{Kind: ChangeAccess, Table: name, Access: newTable.Access})
		}

		diffColumns(name, oldTable, newTable, &errs)
		diffIndexes(name, oldTable, newTable, plan)
		diffSequences(name, oldTable, newTable, plan)
		diffUniqueConstraints(name, oldTable, newTable, &errs)
		diffSchedule(name, oldTable, newTable, plan)
	}

	for name := range new.Tables {
		if _, ok := old.Tables[name]; !ok {
			plan.Steps = append(plan.Steps, Step{Kind: AddTable, Table: name})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return plan, nil
}

func diffColumns(table string, old, new *catalog.TableSchema, errs *Errors) bool {
	hadError := false
	for _, oldCol := range old.Columns {
		newCol, ok := new.ColumnByName(oldCol.ColName)
		if !ok {
			hadError = true
			*errs = append(*errs, &Error{Kind: RemoveColumnRequiresManual, Table: table, Column: oldCol.ColName})
			continue
		}
		if !reflect.DeepEqual(oldCol.ColType, newCol.ColType) {
			hadError = true
			*errs = append(*errs, &Error{Kind: ChangeColumnTypeRequiresManual, Table: table, Column: oldCol.ColName})
		}
	}
	for _, newCol := range new.Columns {
		if _, ok := old.ColumnByName(newCol.ColName); !ok {
			hadError = true
			*errs = append(*errs, &Error{Kind: AddColumnRequiresManual, Table: table, Column: newCol.ColName})
		}
	}
	return hadError
}

func diffIndexes(table string, old, new *catalog.TableSchema, plan *Plan) {
	for _, oldIdx := range old.Indexes {
		if findIndex(new.Indexes, oldIdx.IndexName) == nil {
			plan.Steps = append(plan.Steps, Step{Kind: RemoveIndex, Table: table, IndexName: oldIdx.IndexName})
		}
	}
	for _, newIdx := range new.Indexes {
		if findIndex(old.Indexes, newIdx.IndexName) == nil {
			plan.Steps = append(plan.Steps, Step{Kind: AddIndex, Table: table, IndexName: newIdx.IndexName})
		}
	}
}

func findIndex(indexes []catalog.IndexDef, name string) *catalog.IndexDef {
	for i := range indexes {
		if indexes[i].IndexName == name {
			return &indexes[i]
		}
	}
	return nil
}

func diffSequences(table string, old, new *catalog.TableSchema, plan *Plan) {
	for _, oldSeq := range old.Sequences {
		if findSequence(new.Sequences, oldSeq.SequenceID) == nil {
			plan.Steps = append(plan.Steps, Step{Kind: RemoveSequence, Table: table, Sequence: oldSeq})
		}
	}
	for _, newSeq := range new.Sequences {
		if findSequence(old.Sequences, newSeq.SequenceID) == nil {
			plan.Prechecks = append(plan.Prechecks, Precheck{Kind: CheckAddSequenceRangeValid, Table: table, Sequence: newSeq})
			plan.Steps = append(plan.Steps, Step{Kind: AddSequence, Table: table, Sequence: newSeq})
		}
	}
}

func findSequence(seqs []catalog.SequenceDef, id uint32) *catalog.SequenceDef {
	for i := range seqs {
		if seqs[i].SequenceID == id {
			return &seqs[i]
		}
	}
	return nil
}

func diffUniqueConstraints(table string, old, new *catalog.TableSchema, errs *Errors) {
	for _, newUC := range new.UniqueConstraints {
		if findUniqueConstraint(old.UniqueConstraints, newUC.ConstraintName) == nil {
			cols := make([]string, 0, len(newUC.Columns))
			for _, pos := range newUC.Columns {
				if pos >= 0 && pos < len(new.Columns) {
					cols = append(cols, new.Columns[pos].ColName)
				}
			}
			*errs = append(*errs, &Error{Kind: AddUniqueConstraintRequiresManual, Table: table, Columns: cols})
		}
	}
	// Removing a unique constraint is safe to automate: it only loosens
	// what future inserts are allowed to do, it never reinterprets data
	// already committed.
}

func findUniqueConstraint(ucs []catalog.UniqueConstraint, name string) *catalog.UniqueConstraint {
	for i := range ucs {
		if ucs[i].ConstraintName == name {
			return &ucs[i]
		}
	}
	return nil
}

func diffSchedule(table string, old, new *catalog.TableSchema, plan *Plan) {
	oldHas, newHas := old.Schedule != nil, new.Schedule != nil
	if oldHas == newHas && (!oldHas || *old.Schedule == *new.Schedule) {
		return
	}
	if oldHas {
		plan.Steps = append(plan.Steps, Step{Kind: RemoveSchedule, Table: table})
	}
	if newHas {
		plan.Steps = append(plan.Steps, Step{Kind: AddSchedule, Table: table})
	}
}

// CheckAddSequenceRangeValid reads every row of table (by name) under tx and
// confirms none of its values in seq's column already fall outside
// [seq.Min, seq.Max] or lie at or above seq.Start, where they could collide
// with values the sequence would hand out — the data-dependent half of
// Precheck{CheckAddSequenceRangeValid}, answered against a running
// database rather than the schema diff alone.
func CheckAddSequenceRangeValid(tx *datastore.ReadTx, tableName string, seq catalog.SequenceDef) error {
	schema, err := tx.SchemaByName(tableName)
	if err != nil {
		return err
	}
	var violation error
	tx.ScanAll(schema.TableID, func(row catalog.AlgebraicValue) bool {
		v := row.Elements[seq.ColPos]
		n, ok := asInt64(v)
		if !ok {
			return true
		}
		if n < seq.Min || n > seq.Max {
			violation = fmt.Errorf("migrate: table %q column %d has a value %d outside sequence range [%d, %d]",
				tableName, seq.ColPos, n, seq.Min, seq.Max)
			return false
		}
		if n >= seq.Start {
			violation = fmt.Errorf("migrate: table %q column %d has a value %d at or above sequence start %d",
				tableName, seq.ColPos, n, seq.Start)
			return false
		}
		return true
	})
	return violation
}

func asInt64(v catalog.AlgebraicValue) (int64, bool) {
	switch v.Kind {
	case catalog.KindI8, catalog.KindI16, catalog.KindI32, catalog.KindI64:
		return v.I64, true
	case catalog.KindU8, catalog.KindU16, catalog.KindU32, catalog.KindU64:
		return int64(v.U64), true
	default:
		return 0, false
	}
}
