package commitlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// repo enumerates and creates segment files under a root directory.
type repo struct {
	root string
}

func newRepo(root string) (*repo, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &repo{root: root}, nil
}

// existingOffsets lists every segment's min_tx_offset, ascending.
func (r *repo) existingOffsets() ([]uint64, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, err
	}
	var offsets []uint64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".stbl") {
			continue
		}
		n := strings.TrimSuffix(e.Name(), ".stbl")
		off, err := strconv.ParseUint(n, 10, 64)
		if err != nil {
			continue
		}
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets, nil
}

func (r *repo) pathFor(minTxOffset uint64) string {
	return filepath.Join(r.root, segmentFileName(minTxOffset))
}

func (r *repo) createSegment(minTxOffset uint64, version uint8) (*segment, error) {
	path := r.pathFor(minTxOffset)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("commitlog: segment at offset %d already exists", minTxOffset)
	}
	return createSegment(path, minTxOffset, version)
}

func (r *repo) openSegmentForAppend(minTxOffset uint64) (*segment, error) {
	return openSegmentForAppend(r.pathFor(minTxOffset))
}

func (r *repo) removeSegment(minTxOffset uint64) error {
	return os.Remove(r.pathFor(minTxOffset))
}

// sizeOnDisk sums every segment file's size.
func (r *repo) sizeOnDisk() (int64, error) {
	offsets, err := r.existingOffsets()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, off := range offsets {
		stat, err := os.Stat(r.pathFor(off))
		if err != nil {
			return 0, err
		}
		total += stat.Size()
	}
	return total, nil
}
