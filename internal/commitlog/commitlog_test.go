package commitlog

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	S string
}

func (r testRecord) Encode() []byte { return []byte(r.S) }

var testDecoder = DecoderFunc[testRecord](func(version uint8, data []byte) (testRecord, error) {
	return testRecord{S: string(data)}, nil
})

func smallOpts() Options {
	o := DefaultOptions()
	o.OffsetIndexIntervalBytes = 1 // index every commit, to exercise the seek path
	return o
}

func TestAppendFlushAndReplay(t *testing.T) {
	dir := t.TempDir()
	cl, err := Open[testRecord](dir, smallOpts())
	require.NoError(t, err)

	for _, s := range []string{"alice", "bob", "carol"} {
		require.NoError(t, cl.Append(testRecord{S: s}))
	}
	max, err := cl.Sync()
	require.NoError(t, err)
	require.NotNil(t, max)
	assert.Equal(t, uint64(3), *max)
	require.NoError(t, cl.Close())

	var got []string
	err = FoldTransactions(dir, 0, testDecoder, func(txOffset uint64, version uint8, rec testRecord) error {
		got = append(got, rec.S)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, got)
}

func TestCommitsFrom_SkipsBeforeOffset(t *testing.T) {
	dir := t.TempDir()
	cl, err := Open[testRecord](dir, smallOpts())
	require.NoError(t, err)
	for _, s := range []string{"a", "b", "c", "d"} {
		require.NoError(t, cl.Append(testRecord{S: s}))
	}
	_, err = cl.Sync()
	require.NoError(t, err)
	require.NoError(t, cl.Close())

	it, err := CommitsFrom(dir, 2)
	require.NoError(t, err)
	defer it.Close()

	sc, ok, err := it.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.LessOrEqual(t, sc.MinTxOffset, uint64(2))
	assert.Greater(t, sc.MaxTxOffset(), uint64(2))
}

func TestSegmentRotation_CreatesNewSegmentFile(t *testing.T) {
	dir := t.TempDir()
	opts := smallOpts()
	opts.MaxSegmentSize = 40 // force rotation after a couple of tiny commits
	cl, err := Open[testRecord](dir, opts)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, cl.Append(testRecord{S: "xxxxxxxxxx"}))
		_, err := cl.Sync()
		require.NoError(t, err)
	}
	require.NoError(t, cl.Close())

	sum, err := Summarize(dir)
	require.NoError(t, err)
	assert.Greater(t, sum.SegmentCount, 1)
	assert.Equal(t, 10, sum.CommitCount)
	assert.Equal(t, 10, sum.RecordCount)
	assert.False(t, sum.TailCorrupted)
}

func TestChecksumCorruption_SurfacedByIteratorSwallowedByFold(t *testing.T) {
	dir := t.TempDir()
	cl, err := Open[testRecord](dir, smallOpts())
	require.NoError(t, err)
	require.NoError(t, cl.Append(testRecord{S: "good"}))
	_, err = cl.Sync()
	require.NoError(t, err)
	require.NoError(t, cl.Close())

	path := dir + "/" + segmentFileName(0)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-1] ^= 0xFF // flip a byte in the trailing checksum
	require.NoError(t, os.WriteFile(path, corrupted, 0o644))

	it, err := CommitsFrom(dir, 0)
	require.NoError(t, err)
	defer it.Close()
	_, ok, err := it.Next()
	assert.False(t, ok)
	require.Error(t, err)
	var te *TraversalError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, TraversalChecksum, te.Kind)

	var got []string
	err = FoldTransactions(dir, 0, testDecoder, func(txOffset uint64, version uint8, rec testRecord) error {
		got = append(got, rec.S)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}
