package commitlog

import "os"

// Reset removes every segment from the log, leaving it empty, and reopens
// it for appending at offset 0. The Commitlog must not be used again after
// this call if it returns an error; segments may have been partially
// removed.
func (cl *Commitlog[T]) Reset() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if err := cl.head.close(); err != nil {
		return err
	}
	offsets, err := cl.repo.existingOffsets()
	if err != nil {
		return err
	}
	for i := len(offsets) - 1; i >= 0; i-- {
		if err := cl.repo.removeSegment(offsets[i]); err != nil {
			return err
		}
		_ = cl.idx.removeSegment(offsets[i])
	}

	head, err := cl.repo.createSegment(0, cl.opts.LogFormatVersion)
	if err != nil {
		return err
	}
	cl.head = head
	cl.anyCommits = false
	cl.pending = nil
	cl.pendingStart = 0
	cl.bytesSinceIdx = 0
	return nil
}

// ResetTo removes every segment whose start offset is past offset, then
// truncates the segment containing offset at the byte position just past
// the last commit with MinTxOffset <= offset, and reopens for appending.
func (cl *Commitlog[T]) ResetTo(offset uint64) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if err := cl.head.close(); err != nil {
		return err
	}
	offsets, err := cl.repo.existingOffsets()
	if err != nil {
		return err
	}

	keepIdx := 0
	for i, off := range offsets {
		if off <= offset {
			keepIdx = i
		} else {
			if err := cl.repo.removeSegment(off); err != nil {
				return err
			}
			_ = cl.idx.removeSegment(off)
		}
	}

	keepOffset := offsets[keepIdx]
	path := cl.repo.pathFor(keepOffset)
	body, err := readSegmentBody(path)
	if err != nil {
		return err
	}
	validLen := int64(segmentHeaderLen)
	pos := 0
	for pos < len(body) {
		c, n, err := decodeCommit(body[pos:])
		if err != nil {
			break
		}
		if c.MinTxOffset > offset {
			break
		}
		pos += n
		validLen += int64(n)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(validLen); err != nil {
		f.Close()
		return err
	}
	f.Close()

	head, err := cl.repo.openSegmentForAppend(keepOffset)
	if err != nil {
		return err
	}
	cl.head = head
	cl.anyCommits = head.maxTxOffset > head.minTxOffset
	cl.pending = nil
	cl.pendingStart = head.maxTxOffset
	cl.bytesSinceIdx = 0
	return nil
}
