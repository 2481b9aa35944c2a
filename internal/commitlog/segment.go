package commitlog

import (
	"fmt"
	"os"
)

var segmentMagic = [4]byte{'S', 'T', 'B', 'L'}

// segmentHeaderLen is padded to a 16-byte boundary: 4-byte magic, 1-byte
// format version, 11 bytes reserved.
const segmentHeaderLen = 16

func encodeSegmentHeader(version uint8) []byte {
	buf := make([]byte, segmentHeaderLen)
	copy(buf[0:4], segmentMagic[:])
	buf[4] = version
	return buf
}

func decodeSegmentHeader(buf []byte) (version uint8, err error) {
	if len(buf) < segmentHeaderLen {
		return 0, fmt.Errorf("commitlog: segment header truncated")
	}
	if [4]byte(buf[0:4]) != segmentMagic {
		return 0, fmt.Errorf("commitlog: bad segment magic %q", buf[0:4])
	}
	return buf[4], nil
}

// Metadata summarizes a segment's content without holding it open.
type Metadata struct {
	MinTxOffset uint64
	MaxTxOffset uint64 // exclusive
	SizeInBytes int64
	NumCommits  int
}

// segment is one open segment file, positioned for appending at the end of
// its last valid commit.
type segment struct {
	f           *os.File
	minTxOffset uint64
	size        int64 // bytes written including header
	maxTxOffset uint64
}

func segmentFileName(minTxOffset uint64) string {
	return fmt.Sprintf("%020d.stbl", minTxOffset)
}

// createSegment creates a brand new segment file starting at minTxOffset
// and writes its header.
func createSegment(path string, minTxOffset uint64, version uint8) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	header := encodeSegmentHeader(version)
	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &segment{f: f, minTxOffset: minTxOffset, size: int64(len(header)), maxTxOffset: minTxOffset}, nil
}

// openSegmentForAppend opens an existing segment, validates its header, and
// scans its commits to find the byte offset to resume appending at. A
// trailing corrupt commit is truncated away (spec.md §4.4's rotation
// recovery: "the next commit opens a new segment and retries" relies on a
// clean tail).
func openSegmentForAppend(path string) (*segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	header := make([]byte, segmentHeaderLen)
	if _, err := f.ReadAt(header, 0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := decodeSegmentHeader(header); err != nil {
		f.Close()
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	body := make([]byte, stat.Size()-segmentHeaderLen)
	if _, err := f.ReadAt(body, segmentHeaderLen); err != nil && len(body) > 0 {
		f.Close()
		return nil, err
	}

	var minTxOffset, maxTxOffset uint64
	validLen := int64(segmentHeaderLen)
	off := 0
	first := true
	for off < len(body) {
		c, n, err := decodeCommit(body[off:])
		if err != nil {
			break // short read or checksum failure: stop at last valid commit
		}
		if first {
			minTxOffset = c.MinTxOffset
			first = false
		}
		maxTxOffset = c.MaxTxOffset()
		off += n
		validLen += int64(n)
	}

	if err := f.Truncate(validLen); err != nil {
		f.Close()
		return nil, err
	}

	return &segment{f: f, minTxOffset: minTxOffset, size: validLen, maxTxOffset: maxTxOffset}, nil
}

func (s *segment) append(c *Commit) error {
	buf := c.encode()
	if _, err := s.f.WriteAt(buf, s.size); err != nil {
		return err
	}
	s.size += int64(len(buf))
	s.maxTxOffset = c.MaxTxOffset()
	return nil
}

func (s *segment) sync() error { return s.f.Sync() }

func (s *segment) close() error { return s.f.Close() }

func (s *segment) metadata() Metadata {
	return Metadata{MinTxOffset: s.minTxOffset, MaxTxOffset: s.maxTxOffset, SizeInBytes: s.size}
}

// readSegmentBody reads the full commit body of a segment file at path (skipping
// the header), for use by read-only iteration that doesn't hold the
// segment open for writing.
func readSegmentBody(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	header := make([]byte, segmentHeaderLen)
	if _, err := f.ReadAt(header, 0); err != nil {
		return nil, err
	}
	if _, err := decodeSegmentHeader(header); err != nil {
		return nil, err
	}
	body := make([]byte, stat.Size()-segmentHeaderLen)
	if len(body) == 0 {
		return body, nil
	}
	if _, err := f.ReadAt(body, segmentHeaderLen); err != nil {
		return nil, err
	}
	return body, nil
}
