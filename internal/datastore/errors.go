package datastore

import "fmt"

// TableError reports an operation against a table_id or table_name that
// does not exist in the current transaction's view of the catalog.
type TableError struct {
	Op      string
	TableID uint32
	Name    string
}

func (e *TableError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("datastore: %s: table %q not found", e.Op, e.Name)
	}
	return fmt.Sprintf("datastore: %s: table id %d not found", e.Op, e.TableID)
}

// ConstraintError reports a unique-index violation surfaced from
// table.InsertError.
type ConstraintError struct {
	TableID  uint32
	Conflict string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("datastore: unique constraint violated on table %d: %s", e.TableID, e.Conflict)
}
