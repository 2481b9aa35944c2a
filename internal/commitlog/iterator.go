package commitlog

import "fmt"

// CommitIterator walks a commitlog directory's segments in ascending
// transaction-offset order, yielding StoredCommits. It does not hold any
// write lock and is safe to use concurrently with an open Commitlog for
// the same directory (it only reads files from disk).
type CommitIterator struct {
	repo        *repo
	idx         *offsetIndex
	offsets     []uint64
	segPos      int
	body        []byte
	bodyPos     int
	segMin      uint64
	haveLastMax bool
	lastMax     uint64
	startOffset uint64
	started     bool

	tailChecksum bool // the last checksum error returned by Next was in the log's final commit
}

// CommitsFrom opens an iterator starting at tx offset, over the commitlog
// rooted at dir. The first StoredCommit yielded is the one whose range
// contains offset (its MinTxOffset may be smaller than offset).
func CommitsFrom(dir string, offset uint64) (*CommitIterator, error) {
	r, err := newRepo(dir)
	if err != nil {
		return nil, err
	}
	idx, err := openOffsetIndexReadOnly(dir)
	if err != nil {
		return nil, err
	}
	offsets, err := r.existingOffsets()
	if err != nil {
		idx.close()
		return nil, err
	}

	segPos := 0
	for i, off := range offsets {
		if off <= offset {
			segPos = i
		} else {
			break
		}
	}

	return &CommitIterator{repo: r, idx: idx, offsets: offsets, segPos: segPos, startOffset: offset}, nil
}

// Close releases the iterator's offset-index handle.
func (it *CommitIterator) Close() error {
	if it.idx != nil {
		return it.idx.close()
	}
	return nil
}

func (it *CommitIterator) loadSegment() error {
	if it.segPos >= len(it.offsets) {
		return nil
	}
	segMin := it.offsets[it.segPos]
	body, err := readSegmentBody(it.repo.pathFor(segMin))
	if err != nil {
		return err
	}
	it.body = body
	it.bodyPos = 0
	it.segMin = segMin

	if !it.started {
		it.started = true
		if byteOff, ok := it.idx.nearest(segMin, it.startOffset); ok && byteOff >= segmentHeaderLen && int(byteOff-segmentHeaderLen) <= len(body) {
			// The index stores file offsets (header included); body excludes the header.
			it.bodyPos = int(byteOff - segmentHeaderLen)
		}
	}
	return nil
}

// Next returns the next StoredCommit. ok is false with a nil error once the
// log is exhausted. A non-nil error may be a *TraversalError; on
// TraversalChecksum the caller may call Next again to resume from the next
// segment, matching spec.md §4.4.
func (it *CommitIterator) Next() (StoredCommit, bool, error) {
	for {
		if it.body == nil {
			if it.segPos >= len(it.offsets) {
				return StoredCommit{}, false, nil
			}
			if err := it.loadSegment(); err != nil {
				return StoredCommit{}, false, &TraversalError{Kind: TraversalIO, Err: err}
			}
		}

		if it.bodyPos >= len(it.body) {
			it.segPos++
			it.body = nil
			continue
		}

		c, n, err := decodeCommit(it.body[it.bodyPos:])
		if err == errShortRead {
			// Live tail of the current (writable) segment; nothing more here.
			it.segPos++
			it.body = nil
			continue
		}
		byteOffset := it.bodyPos
		if err != nil {
			// Checksum failure: advance to the next segment so a retry can
			// resume past the corrupt commit, per spec.md §4.4.
			it.tailChecksum = it.bodyPos+n >= len(it.body) && it.segPos+1 >= len(it.offsets)
			it.segPos++
			it.body = nil
			return StoredCommit{}, false, err
		}
		it.bodyPos += n

		if it.haveLastMax && c.MinTxOffset != it.lastMax {
			return StoredCommit{}, false, &TraversalError{Kind: TraversalOutOfOrder, Err: fmt.Errorf("expected %d, got %d", it.lastMax, c.MinTxOffset)}
		}
		it.lastMax = c.MaxTxOffset()
		it.haveLastMax = true

		if c.MaxTxOffset() <= it.startOffset {
			continue // entirely before the requested offset; skip
		}

		return StoredCommit{Commit: c, SegmentOffset: it.segMin, ByteOffset: int64(byteOffset) + segmentHeaderLen, ByteLen: n}, true, nil
	}
}

// FoldTransactions replays every record from offset onward through decoder,
// calling fn for each. Unlike Next, a trailing short/corrupt commit at the
// very end of the log is swallowed rather than surfaced, matching spec.md
// §4.4's replay semantics (see doc.go's Open Question note); a checksum
// error in any earlier commit is returned.
func FoldTransactions[T any](dir string, offset uint64, decoder Decoder[T], fn func(txOffset uint64, version uint8, rec T) error) error {
	it, err := CommitsFrom(dir, offset)
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		sc, ok, err := it.Next()
		if err != nil {
			if te, is := err.(*TraversalError); is && te.Kind == TraversalChecksum && it.tailChecksum {
				return nil // trailing corruption: stop silently
			}
			return err
		}
		if !ok {
			return nil
		}
		txOffset := sc.MinTxOffset
		for _, raw := range sc.Records {
			rec, err := decoder.DecodeRecord(DefaultLogFormatVersion, raw)
			if err != nil {
				return err
			}
			if err := fn(txOffset, DefaultLogFormatVersion, rec); err != nil {
				return err
			}
			txOffset++
		}
	}
}
