package datastore

import "github.com/cuemby/spacetime/internal/catalog"

// TxOp distinguishes an insert from a delete within a TxRecord.
type TxOp int

const (
	TxOpInsert TxOp = iota
	TxOpDelete
)

// TxRecord is one row-level effect of a committed transaction, in the order
// the commit log requires: deletes of a table before inserts into it.
type TxRecord struct {
	Op        TxOp
	TableID   uint32
	TableName string
	Row       catalog.AlgebraicValue
}

// TruncateRecord is a whole-table clear, logged as a single entry rather
// than one TxRecord per row it removed.
type TruncateRecord struct {
	TableID   uint32
	TableName string
}

// TxData is everything a committed transaction changed, handed to the
// commit log for durability and to the subscription engine for incremental
// diffing.
type TxData struct {
	Records   []TxRecord
	Truncates []TruncateRecord
}
