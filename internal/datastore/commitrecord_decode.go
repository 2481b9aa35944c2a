package datastore

import (
	"encoding/binary"
)

// MutationGroup is one table's share of a decoded Mutations section: the
// table it targets, how many rows it carries, and the concatenated
// schema-directed BSATN encoding of those rows. Splitting individual rows
// out of RowsBlob requires knowing the table's row type, which is why
// CommitRecord decoding stops here rather than producing AlgebraicValues
// directly — see ApplyReplayRecord.
type MutationGroup struct {
	TableID  uint32
	RowCount int
	RowsBlob []byte
}

// DecodedCommitRecord is a CommitRecord read back off the commit log, one
// step short of being applied: row bytes are still grouped by table, not
// yet decoded into AlgebraicValues.
type DecodedCommitRecord struct {
	Inputs    *ReducerInputs
	Outputs   *ReducerOutputs
	Inserts   []MutationGroup
	Deletes   []MutationGroup
	Truncates []uint32
}

// DecodeCommitRecord parses the byte layout CommitRecord.Encode produces.
// version is accepted to satisfy commitlog.Decoder's signature; this port
// has a single record version.
func DecodeCommitRecord(_ uint8, data []byte) (*DecodedCommitRecord, error) {
	if len(data) < 1 {
		return nil, errShortRecord("flags byte")
	}
	flags := data[0]
	pos := 1
	rec := &DecodedCommitRecord{}

	if flags&flagHaveInputs != 0 {
		if pos+4 > len(data) {
			return nil, errShortRecord("inputs length")
		}
		bodyLen := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		if bodyLen < 0 || pos+bodyLen > len(data) {
			return nil, errShortRecord("inputs body")
		}
		body := data[pos : pos+bodyLen]
		pos += bodyLen

		if len(body) < 1 {
			return nil, errShortRecord("inputs name length")
		}
		nameLen := int(body[0])
		if 1+nameLen > len(body) {
			return nil, errShortRecord("inputs name")
		}
		name := string(body[1 : 1+nameLen])
		args := append([]byte(nil), body[1+nameLen:]...)
		rec.Inputs = &ReducerInputs{ReducerName: name, ReducerArgsBSATN: args}
	}

	if flags&flagHaveOutputs != 0 {
		if pos >= len(data) {
			return nil, errShortRecord("outputs length")
		}
		sLen := int(data[pos])
		pos++
		if pos+sLen > len(data) {
			return nil, errShortRecord("outputs body")
		}
		rec.Outputs = &ReducerOutputs{Value: string(data[pos : pos+sLen])}
		pos += sLen
	}

	if flags&flagHaveMutations != 0 {
		var err error
		rec.Inserts, pos, err = decodeOpGroup(data, pos)
		if err != nil {
			return nil, err
		}
		rec.Deletes, pos, err = decodeOpGroup(data, pos)
		if err != nil {
			return nil, err
		}

		truncCount, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, errShortRecord("truncates count")
		}
		pos += n
		for i := uint64(0); i < truncCount; i++ {
			if pos+4 > len(data) {
				return nil, errShortRecord("truncates table_id")
			}
			rec.Truncates = append(rec.Truncates, binary.LittleEndian.Uint32(data[pos:]))
			pos += 4
		}
	}

	return rec, nil
}

func decodeOpGroup(data []byte, pos int) ([]MutationGroup, int, error) {
	count, n := binary.Uvarint(data[pos:])
	if n <= 0 {
		return nil, pos, errShortRecord("mutation group count")
	}
	pos += n

	groups := make([]MutationGroup, 0, count)
	for i := uint64(0); i < count; i++ {
		if pos+4 > len(data) {
			return nil, pos, errShortRecord("table_id")
		}
		tableID := binary.LittleEndian.Uint32(data[pos:])
		pos += 4

		rowCount, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, pos, errShortRecord("row count")
		}
		pos += n

		if pos+4 > len(data) {
			return nil, pos, errShortRecord("rows length")
		}
		rowsLen := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		if rowsLen < 0 || pos+rowsLen > len(data) {
			return nil, pos, errShortRecord("rows blob")
		}
		groups = append(groups, MutationGroup{
			TableID:  tableID,
			RowCount: int(rowCount),
			RowsBlob: data[pos : pos+rowsLen],
		})
		pos += rowsLen
	}
	return groups, pos, nil
}
