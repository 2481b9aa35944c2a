package commitlog

import (
	"fmt"
	"sync"
)

// ErrCommitFull is returned by Append when Options.MaxRecordsInCommit would
// be exceeded; the caller should Flush and retry.
var ErrCommitFull = fmt.Errorf("commitlog: commit buffer full, flush required")

// Commitlog is the canonical, disk-backed log of committed transaction
// records of type T. One Commitlog is opened per database and lives for
// the process's lifetime; see Datastore for how MutTx.Commit's TxData
// becomes the record type actually stored.
type Commitlog[T Encoder] struct {
	mu   sync.RWMutex
	opts Options
	repo *repo
	idx  *offsetIndex

	head          *segment
	epoch         uint64
	anyCommits    bool
	pending       []T
	pendingStart  uint64 // tx offset of the first pending record
	bytesSinceIdx uint64
}

// Open opens or creates a commitlog rooted at dir.
func Open[T Encoder](dir string, opts Options) (*Commitlog[T], error) {
	r, err := newRepo(dir)
	if err != nil {
		return nil, err
	}
	idx, err := openOffsetIndex(dir)
	if err != nil {
		return nil, err
	}

	offsets, err := r.existingOffsets()
	if err != nil {
		idx.close()
		return nil, err
	}

	var head *segment
	anyCommits := false
	if len(offsets) == 0 {
		head, err = r.createSegment(0, opts.LogFormatVersion)
	} else {
		last := offsets[len(offsets)-1]
		head, err = r.openSegmentForAppend(last)
		anyCommits = len(offsets) > 1 || (head != nil && head.maxTxOffset > head.minTxOffset)
	}
	if err != nil {
		idx.close()
		return nil, err
	}

	return &Commitlog[T]{
		opts:         opts,
		repo:         r,
		idx:          idx,
		head:         head,
		anyCommits:   anyCommits,
		pendingStart: head.maxTxOffset,
	}, nil
}

// Append buffers record in memory. Returns ErrCommitFull if
// Options.MaxRecordsInCommit would be exceeded; the caller should Flush
// and append again.
func (cl *Commitlog[T]) Append(record T) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if uint16(len(cl.pending)) >= cl.opts.MaxRecordsInCommit {
		return ErrCommitFull
	}
	cl.pending = append(cl.pending, record)
	return nil
}

// AppendMaybeFlush appends record, flushing first if the buffer is full.
func (cl *Commitlog[T]) AppendMaybeFlush(record T) error {
	if err := cl.Append(record); err == ErrCommitFull {
		if _, err := cl.Flush(); err != nil {
			return err
		}
		return cl.Append(record)
	} else {
		return err
	}
}

// Flush writes any buffered records to the current segment (rotating
// segments first if needed), returning the new max committed offset.
func (cl *Commitlog[T]) Flush() (*uint64, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.flushLocked()
}

func (cl *Commitlog[T]) flushLocked() (*uint64, error) {
	if len(cl.pending) == 0 {
		return cl.maxCommittedOffsetLocked(), nil
	}

	records := make([][]byte, len(cl.pending))
	for i, r := range cl.pending {
		records[i] = r.Encode()
	}
	commit := &Commit{Epoch: cl.epoch, MinTxOffset: cl.pendingStart, Records: records}
	encoded := commit.encode()

	// Rotate if this write would overflow the segment, unless the segment
	// is still empty (a very large single commit is allowed to exceed
	// max_segment_size rather than be unwritable).
	if cl.head.size > segmentHeaderLen && cl.head.size+int64(len(encoded)) > int64(cl.opts.MaxSegmentSize) {
		if err := cl.rotateLocked(); err != nil {
			return nil, err
		}
	}

	startByte := cl.head.size
	if err := cl.head.append(commit); err != nil {
		return nil, err
	}
	cl.anyCommits = true
	cl.bytesSinceIdx += uint64(len(encoded))
	if cl.bytesSinceIdx >= cl.opts.OffsetIndexIntervalBytes && !cl.opts.OffsetIndexRequireSegmentFsync {
		_ = cl.idx.put(cl.head.minTxOffset, commit.MinTxOffset, uint64(startByte))
		cl.bytesSinceIdx = 0
	}

	cl.pendingStart = commit.MaxTxOffset()
	cl.pending = cl.pending[:0]

	max := cl.head.maxTxOffset
	return &max, nil
}

func (cl *Commitlog[T]) rotateLocked() error {
	if err := cl.head.sync(); err != nil {
		return err
	}
	if err := cl.head.close(); err != nil {
		return err
	}
	newHead, err := cl.repo.createSegment(cl.pendingStart, cl.opts.LogFormatVersion)
	if err != nil {
		return err
	}
	cl.head = newHead
	cl.bytesSinceIdx = 0
	return nil
}

// Sync fsyncs the current segment to disk, flushing any buffered records
// first. If OffsetIndexRequireSegmentFsync is set, a pending index entry
// for the just-synced bytes is written now.
func (cl *Commitlog[T]) Sync() (*uint64, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	max, err := cl.flushLocked()
	if err != nil {
		return nil, err
	}
	if err := cl.head.sync(); err != nil {
		return nil, err
	}
	if cl.opts.OffsetIndexRequireSegmentFsync && cl.bytesSinceIdx > 0 {
		_ = cl.idx.put(cl.head.minTxOffset, cl.head.maxTxOffset, uint64(cl.head.size))
		cl.bytesSinceIdx = 0
	}
	return max, nil
}

func (cl *Commitlog[T]) maxCommittedOffsetLocked() *uint64 {
	if !cl.anyCommits {
		return nil
	}
	max := cl.head.maxTxOffset
	return &max
}

// MaxCommittedOffset returns the offset just past the last durably
// flushed transaction, or nil if nothing has been flushed yet.
func (cl *Commitlog[T]) MaxCommittedOffset() *uint64 {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.maxCommittedOffsetLocked()
}

// MinCommittedOffset returns the first transaction offset retained by the
// log, or nil if it is empty.
func (cl *Commitlog[T]) MinCommittedOffset() (*uint64, error) {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	offsets, err := cl.repo.existingOffsets()
	if err != nil {
		return nil, err
	}
	if len(offsets) == 0 {
		return nil, nil
	}
	min := offsets[0]
	return &min, nil
}

// SizeOnDisk sums every segment file's size.
func (cl *Commitlog[T]) SizeOnDisk() (int64, error) {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.repo.sizeOnDisk()
}

// Epoch returns the current epoch tag written into new commits.
func (cl *Commitlog[T]) Epoch() uint64 {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return cl.epoch
}

// SetEpoch flushes outstanding records, then updates the epoch tag for
// subsequent commits.
func (cl *Commitlog[T]) SetEpoch(epoch uint64) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if epoch < cl.epoch {
		return fmt.Errorf("commitlog: epoch %d is older than current epoch %d", epoch, cl.epoch)
	}
	if _, err := cl.flushLocked(); err != nil {
		return err
	}
	cl.epoch = epoch
	return nil
}

// Close flushes, syncs, and releases underlying file handles.
func (cl *Commitlog[T]) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if _, err := cl.flushLocked(); err != nil {
		return err
	}
	if err := cl.head.sync(); err != nil {
		return err
	}
	if err := cl.head.close(); err != nil {
		return err
	}
	return cl.idx.close()
}
