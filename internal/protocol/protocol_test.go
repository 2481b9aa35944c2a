package protocol_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/protocol"
)

func TestRegistry_AuthenticateMintsFreshIdentityForEmptyToken(t *testing.T) {
	reg := protocol.NewRegistry()
	id, token, addr, err := reg.Authenticate("")
	require.NoError(t, err)
	assert.NotEqual(t, protocol.Identity{}, id)
	assert.NotEmpty(t, token)
	assert.False(t, addr.IsZero())
}

func TestRegistry_AuthenticateReusesIdentityForKnownToken(t *testing.T) {
	reg := protocol.NewRegistry()
	id1, token1, _, err := reg.Authenticate("")
	require.NoError(t, err)

	id2, token2, addr2, err := reg.Authenticate(token1)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, token1, token2)
	assert.False(t, addr2.IsZero())
}

func TestRegistry_AuthenticateMintsNewIdentityForUnknownToken(t *testing.T) {
	reg := protocol.NewRegistry()
	id, _, _, err := reg.Authenticate("not-a-real-token")
	require.NoError(t, err)
	assert.NotEqual(t, protocol.Identity{}, id)
}

func TestAddress_ZeroSentinel(t *testing.T) {
	var zero protocol.Address
	assert.True(t, zero.IsZero())
	nonZero := protocol.NewAddress()
	assert.False(t, nonZero.IsZero())
}

func TestEncodeRowList_FixedSizeWhenRowsAreSameLength(t *testing.T) {
	rows := [][]byte{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	list := protocol.EncodeRowList(rows)
	assert.Equal(t, protocol.SizeHintFixed, list.HintKind)
	assert.Equal(t, uint16(3), list.FixedSize)
	assert.Equal(t, 3, list.NumRows())
	assert.Equal(t, rows, list.Rows())
}

func TestEncodeRowList_OffsetsWhenRowsVaryInLength(t *testing.T) {
	rows := [][]byte{{1}, {2, 3}, {4, 5, 6}}
	list := protocol.EncodeRowList(rows)
	assert.Equal(t, protocol.SizeHintOffsets, list.HintKind)
	assert.Equal(t, 3, list.NumRows())
	assert.Equal(t, rows, list.Rows())
}

func TestEncodeRowList_Empty(t *testing.T) {
	list := protocol.EncodeRowList(nil)
	assert.Equal(t, 0, list.NumRows())
	assert.Nil(t, list.Rows())
}

func TestCompressQueryUpdate_SmallPayloadStaysUncompressed(t *testing.T) {
	qu := protocol.QueryUpdate{Inserts: protocol.EncodeRowList([][]byte{{1, 2, 3}})}
	small := []byte("small payload")
	cq := protocol.CompressQueryUpdate(qu, small)
	assert.Equal(t, protocol.CompressionNone, cq.Tag)
	require.NotNil(t, cq.Uncompressed)
	assert.Nil(t, cq.Brotli)
}

func TestCompressQueryUpdate_LargePayloadIsBrotliCompressedAndReversible(t *testing.T) {
	qu := protocol.QueryUpdate{}
	large := bytes.Repeat([]byte("x"), 4096)
	cq := protocol.CompressQueryUpdate(qu, large)
	assert.Equal(t, protocol.CompressionBrotli, cq.Tag)
	assert.Nil(t, cq.Uncompressed)
	require.NotEmpty(t, cq.Brotli)

	decoded, err := protocol.DecompressQueryUpdate(cq)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(large, decoded))
}

func TestIdentity_StringIsHex(t *testing.T) {
	id, err := protocol.NewIdentity()
	require.NoError(t, err)
	assert.Len(t, id.String(), 64)
	assert.False(t, strings.ContainsAny(id.String(), "XYZ"))
}
