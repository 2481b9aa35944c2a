package page

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/catalog"
)

func personRowType() catalog.AlgebraicType {
	return catalog.Product(
		catalog.NamedType{Name: "id", Type: catalog.Primitive(catalog.KindU64)},
		catalog.NamedType{Name: "name", Type: catalog.Primitive(catalog.KindString)},
	)
}

func TestWriteReadRow_RoundTrip(t *testing.T) {
	p := NewPage()
	blobs := NewBlobStore()
	layout := Compile(personRowType())

	row := catalog.ProductValue(catalog.U64Value(1), catalog.StringValue("ada lovelace"))
	off, err := WriteRow(p, blobs, layout, row)
	require.NoError(t, err)

	back, err := ReadRow(p, blobs, layout, off)
	require.NoError(t, err)
	assert.True(t, row.Equal(back))
}

func TestWriteReadRow_EmptyString(t *testing.T) {
	p := NewPage()
	blobs := NewBlobStore()
	layout := Compile(personRowType())

	row := catalog.ProductValue(catalog.U64Value(2), catalog.StringValue(""))
	off, err := WriteRow(p, blobs, layout, row)
	require.NoError(t, err)

	back, err := ReadRow(p, blobs, layout, off)
	require.NoError(t, err)
	assert.True(t, row.Equal(back))
}

func TestWriteReadRow_LargeBlobThreshold(t *testing.T) {
	p := NewPage()
	blobs := NewBlobStore()
	layout := Compile(personRowType())

	// Exactly at threshold: stays inline.
	inline := catalog.ProductValue(catalog.U64Value(3), catalog.StringValue(strings.Repeat("a", ObjectSizeBlobThreshold-4)))
	off, err := WriteRow(p, blobs, layout, inline)
	require.NoError(t, err)
	back, err := ReadRow(p, blobs, layout, off)
	require.NoError(t, err)
	assert.True(t, inline.Equal(back))
	assert.Equal(t, 0, blobs.Len())

	// One byte over: goes to the blob store.
	big := catalog.ProductValue(catalog.U64Value(4), catalog.StringValue(strings.Repeat("b", ObjectSizeBlobThreshold+1)))
	off2, err := WriteRow(p, blobs, layout, big)
	require.NoError(t, err)
	back2, err := ReadRow(p, blobs, layout, off2)
	require.NoError(t, err)
	assert.True(t, big.Equal(back2))
	assert.Equal(t, 1, blobs.Len())
}

func TestFreeRow_ReleasesGranulesAndBlobs(t *testing.T) {
	p := NewPage()
	blobs := NewBlobStore()
	layout := Compile(personRowType())

	row := catalog.ProductValue(catalog.U64Value(5), catalog.StringValue(strings.Repeat("c", ObjectSizeBlobThreshold+10)))
	off, err := WriteRow(p, blobs, layout, row)
	require.NoError(t, err)
	require.Equal(t, 1, blobs.Len())

	FreeRow(p, blobs, layout, off)
	assert.Equal(t, 0, blobs.Len())
}

func TestAllocFixed_FreelistReuse(t *testing.T) {
	p := NewPage()
	off1, err := p.AllocFixed(16)
	require.NoError(t, err)
	p.FreeFixed(off1, 16)

	off2, err := p.AllocFixed(16)
	require.NoError(t, err)
	assert.Equal(t, off1, off2, "freed slot should be reused before extending the high-water mark")
}

func TestBlobStore_RefCounting(t *testing.T) {
	bs := NewBlobStore()
	data := []byte("hello large object")
	h1 := bs.Insert(data)
	h2 := bs.Insert(data)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, bs.Len())

	bs.Release(h1)
	_, ok := bs.Get(h2)
	assert.True(t, ok, "still referenced once")

	bs.Release(h2)
	_, ok = bs.Get(h1)
	assert.False(t, ok, "ref count reached zero, blob GC'd")
}

func TestVisitorProgram_VisitsVarLenOffsets(t *testing.T) {
	layout := Compile(personRowType())
	var visited []int
	row := make([]byte, layout.Size)
	layout.Visitor.Visit(row, func(off int) { visited = append(visited, off) })
	assert.Equal(t, []int{8}, visited, "string field follows the 8-byte u64 id")
}
