package commitlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Commit is one durable write unit: zero or more records sharing a
// contiguous range of transaction offsets [MinTxOffset, MinTxOffset+N).
type Commit struct {
	Epoch       uint64
	MinTxOffset uint64
	Records     [][]byte
}

// N is the number of transaction records this commit spans.
func (c *Commit) N() uint16 { return uint16(len(c.Records)) }

// encode serializes the commit's header and payload, then appends a
// CRC-32C checksum over everything written so far.
func (c *Commit) encode() []byte {
	payload := make([]byte, 0, 64*len(c.Records))
	var lenBuf [4]byte
	for _, r := range c.Records {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(r)))
		payload = append(payload, lenBuf[:]...)
		payload = append(payload, r...)
	}

	buf := make([]byte, 0, 8+8+2+4+len(payload)+4)
	buf = binary.LittleEndian.AppendUint64(buf, c.MinTxOffset)
	buf = binary.LittleEndian.AppendUint64(buf, c.Epoch)
	buf = binary.LittleEndian.AppendUint16(buf, c.N())
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)

	checksum := crc32.Checksum(buf, castagnoli)
	buf = binary.LittleEndian.AppendUint32(buf, checksum)
	return buf
}

// decodeCommit reads one commit frame from the front of b, returning the
// commit, the number of bytes consumed, and any error. A *TraversalError
// with kind TraversalChecksum is returned on a checksum mismatch; a short
// buffer (fewer bytes available than the header declares) is reported
// distinctly so callers can treat it as "nothing more to read yet" at a
// segment's live tail versus genuine corruption mid-segment.
func decodeCommit(b []byte) (Commit, int, error) {
	const headerLen = 8 + 8 + 2 + 4
	if len(b) < headerLen {
		return Commit{}, 0, errShortRead
	}
	minTxOffset := binary.LittleEndian.Uint64(b[0:8])
	epoch := binary.LittleEndian.Uint64(b[8:16])
	n := binary.LittleEndian.Uint16(b[16:18])
	payloadLen := binary.LittleEndian.Uint32(b[18:22])
	total := headerLen + int(payloadLen) + 4
	if len(b) < total {
		return Commit{}, 0, errShortRead
	}

	got := crc32.Checksum(b[:headerLen+int(payloadLen)], castagnoli)
	want := binary.LittleEndian.Uint32(b[headerLen+int(payloadLen) : total])
	if got != want {
		return Commit{}, total, &TraversalError{Kind: TraversalChecksum, Err: fmt.Errorf("have %x want %x", got, want)}
	}

	payload := b[headerLen : headerLen+int(payloadLen)]
	records := make([][]byte, 0, n)
	off := 0
	for i := uint16(0); i < n; i++ {
		if off+4 > len(payload) {
			return Commit{}, total, &TraversalError{Kind: TraversalChecksum, Err: fmt.Errorf("truncated record %d", i)}
		}
		recLen := int(binary.LittleEndian.Uint32(payload[off : off+4]))
		off += 4
		if off+recLen > len(payload) {
			return Commit{}, total, &TraversalError{Kind: TraversalChecksum, Err: fmt.Errorf("truncated record %d", i)}
		}
		rec := make([]byte, recLen)
		copy(rec, payload[off:off+recLen])
		records = append(records, rec)
		off += recLen
	}

	return Commit{Epoch: epoch, MinTxOffset: minTxOffset, Records: records}, total, nil
}

// errShortRead signals that fewer bytes are available than a full commit
// frame requires; the caller should stop and wait for more data (live
// tail) rather than treat this as corruption.
var errShortRead = fmt.Errorf("commitlog: short read")

// StoredCommit pairs a decoded Commit with the transaction offset range and
// byte range it occupies in its segment, as handed back by the iterator.
type StoredCommit struct {
	Commit
	SegmentOffset uint64 // the segment's min_tx_offset
	ByteOffset    int64  // byte offset of this commit within the segment file
	ByteLen       int
}

// MaxTxOffset returns the offset just past the last transaction this commit
// covers.
func (c *Commit) MaxTxOffset() uint64 { return c.MinTxOffset + uint64(len(c.Records)) }
