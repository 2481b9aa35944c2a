package datastore

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/spacetime/internal/bsatn"
	"github.com/cuemby/spacetime/internal/catalog"
)

// Txdata record flags, per original_source/.../payload/txdata.rs: a single
// flags byte gates which of the three optional sections follow.
const (
	flagHaveInputs    byte = 1 << 0
	flagHaveOutputs   byte = 1 << 1
	flagHaveMutations byte = 1 << 2
)

// maxReducerNameLen/maxReducerOutputLen bound the two length-prefixed
// strings the format carries to what a single byte can frame.
const (
	maxReducerNameLen   = 255
	maxReducerOutputLen = 255
)

// ReducerInputs names the reducer call a commit's row mutations resulted
// from, alongside its BSATN-encoded argument tuple.
type ReducerInputs struct {
	ReducerName      string
	ReducerArgsBSATN []byte
}

// ReducerOutputs carries a reducer's return value, truncated to
// maxReducerOutputLen bytes, same as the original's diagnostic string.
type ReducerOutputs struct {
	Value string
}

// RowTypeLookup resolves a table's row type so CommitRecord.Encode can
// BSATN-encode its mutated rows.
type RowTypeLookup func(tableID uint32) (catalog.AlgebraicType, bool)

// CommitRecord is one entry appended to the commit log: a transaction's
// row-level effects (TxData) plus the reducer call that produced them,
// framed per the Txdata wire format (flags byte, then optional
// Inputs/Outputs/Mutations sections). It implements commitlog.Encoder.
//
// The Mutations section groups row changes by table, matching the wire
// format's table_id/row_count framing, but additionally writes an explicit
// byte length for each group's row blob. The original format relies on the
// row type being already known to find each group's boundary; this port's
// replay instead defers per-row BSATN decode until a table's schema is
// resolved (system-catalog rows before user rows within the same commit),
// so group boundaries must be self-describing independent of row type.
type CommitRecord struct {
	Inputs   *ReducerInputs
	Outputs  *ReducerOutputs
	TxData   *TxData
	RowTypes RowTypeLookup
}

func (r *CommitRecord) Encode() []byte {
	haveMutations := r.TxData != nil && (len(r.TxData.Records) > 0 || len(r.TxData.Truncates) > 0)

	var flags byte
	if r.Inputs != nil {
		flags |= flagHaveInputs
	}
	if r.Outputs != nil {
		flags |= flagHaveOutputs
	}
	if haveMutations {
		flags |= flagHaveMutations
	}

	buf := []byte{flags}
	if r.Inputs != nil {
		buf = appendInputs(buf, r.Inputs)
	}
	if r.Outputs != nil {
		buf = appendOutputs(buf, r.Outputs)
	}
	if haveMutations {
		buf = appendMutations(buf, r.TxData, r.RowTypes)
	}
	return buf
}

func appendInputs(buf []byte, in *ReducerInputs) []byte {
	name := in.ReducerName
	if len(name) > maxReducerNameLen {
		name = name[:maxReducerNameLen]
	}
	body := make([]byte, 0, 1+len(name)+len(in.ReducerArgsBSATN))
	body = append(body, byte(len(name)))
	body = append(body, name...)
	body = append(body, in.ReducerArgsBSATN...)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, body...)
}

func appendOutputs(buf []byte, out *ReducerOutputs) []byte {
	s := out.Value
	if len(s) > maxReducerOutputLen {
		s = s[:maxReducerOutputLen]
	}
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}

func appendMutations(buf []byte, data *TxData, rowTypes RowTypeLookup) []byte {
	buf = appendOpGroup(buf, data.Records, TxOpInsert, rowTypes)
	buf = appendOpGroup(buf, data.Records, TxOpDelete, rowTypes)

	buf = binary.AppendUvarint(buf, uint64(len(data.Truncates)))
	for _, t := range data.Truncates {
		var idBuf [4]byte
		binary.LittleEndian.PutUint32(idBuf[:], t.TableID)
		buf = append(buf, idBuf[:]...)
	}
	return buf
}

// appendOpGroup writes every TxRecord of the given op, grouped by TableID in
// first-seen order: table_id (u32 LE), row_count (varint), rows_len (u32 LE,
// the byte length of what follows), then row_count rows' concatenated
// schema-directed BSATN encodings.
func appendOpGroup(buf []byte, recs []TxRecord, op TxOp, rowTypes RowTypeLookup) []byte {
	order := make([]uint32, 0)
	byTable := make(map[uint32][]catalog.AlgebraicValue)
	for _, r := range recs {
		if r.Op != op {
			continue
		}
		if _, seen := byTable[r.TableID]; !seen {
			order = append(order, r.TableID)
		}
		byTable[r.TableID] = append(byTable[r.TableID], r.Row)
	}

	buf = binary.AppendUvarint(buf, uint64(len(order)))
	for _, tableID := range order {
		rows := byTable[tableID]
		ty, ok := rowTypes(tableID)

		var rowsBuf []byte
		if ok {
			for _, row := range rows {
				encoded, err := bsatn.Encode(ty, row)
				if err != nil {
					continue
				}
				rowsBuf = append(rowsBuf, encoded...)
			}
		}

		var idBuf [4]byte
		binary.LittleEndian.PutUint32(idBuf[:], tableID)
		buf = append(buf, idBuf[:]...)
		buf = binary.AppendUvarint(buf, uint64(len(rows)))

		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(rowsBuf)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, rowsBuf...)
	}
	return buf
}

// errShortRecord reports a CommitRecord byte slice too short to contain the
// section its flags byte promised.
func errShortRecord(what string) error {
	return fmt.Errorf("datastore: commit record truncated: %s", what)
}
