package commitlog

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

// offsetIndex is a sparse, per-segment (tx_offset -> byte_offset) index
// persisted in a single bbolt database, one bucket per segment. It exists
// purely to let CommitsFrom seek near a requested offset instead of
// scanning a segment from its first byte; a missing or stale entry only
// costs a slightly longer scan, never correctness, so it is safe to trail
// durable writes (see Options.OffsetIndexRequireSegmentFsync).
type offsetIndex struct {
	db *bbolt.DB
}

// openOffsetIndex opens the index for writing (an exclusive file lock,
// matching the single-writer model). Use openOffsetIndexReadOnly for
// concurrent read-only iteration.
func openOffsetIndex(root string) (*offsetIndex, error) {
	db, err := bbolt.Open(filepath.Join(root, "offsets.db"), 0o644, nil)
	if err != nil {
		return nil, err
	}
	return &offsetIndex{db: db}, nil
}

// openOffsetIndexReadOnly opens the index with a shared file lock so any
// number of CommitIterators can read it concurrently with each other and
// with an open writer.
func openOffsetIndexReadOnly(root string) (*offsetIndex, error) {
	db, err := bbolt.Open(filepath.Join(root, "offsets.db"), 0o444, &bbolt.Options{ReadOnly: true})
	if err != nil {
		// No index yet (nothing has been flushed): fall back to an
		// in-memory empty index rather than failing iteration entirely.
		if os.IsNotExist(err) {
			return &offsetIndex{db: nil}, nil
		}
		return nil, err
	}
	return &offsetIndex{db: db}, nil
}

func (oi *offsetIndex) close() error {
	if oi.db == nil {
		return nil
	}
	return oi.db.Close()
}

func bucketName(segmentMinOffset uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, segmentMinOffset)
	return b
}

func (oi *offsetIndex) put(segmentMinOffset, txOffset, byteOffset uint64) error {
	return oi.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName(segmentMinOffset))
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, txOffset)
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, byteOffset)
		return bucket.Put(key, val)
	})
}

// nearest returns the largest indexed byte_offset whose tx_offset is <=
// txOffset within the given segment, or (0, false) if the segment has no
// index entries at or before txOffset (the caller should then scan from
// the segment's start).
func (oi *offsetIndex) nearest(segmentMinOffset, txOffset uint64) (uint64, bool) {
	if oi.db == nil {
		return 0, false
	}
	var byteOffset uint64
	found := false
	_ = oi.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketName(segmentMinOffset))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, txOffset)
		k, v := c.Seek(key)
		if k == nil || binary.BigEndian.Uint64(k) > txOffset {
			k, v = c.Prev()
		}
		if k == nil {
			return nil
		}
		byteOffset = binary.BigEndian.Uint64(v)
		found = true
		return nil
	})
	return byteOffset, found
}

func (oi *offsetIndex) removeSegment(segmentMinOffset uint64) error {
	return oi.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket(bucketName(segmentMinOffset))
		if err == bbolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}
