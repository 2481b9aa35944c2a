package bsatn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/catalog"
)

func personType() catalog.AlgebraicType {
	return catalog.Product(
		catalog.NamedType{Name: "id", Type: catalog.Primitive(catalog.KindU64)},
		catalog.NamedType{Name: "name", Type: catalog.Primitive(catalog.KindString)},
		catalog.NamedType{Name: "active", Type: catalog.Primitive(catalog.KindBool)},
	)
}

func TestEncodeDecodeRoundTrip_Product(t *testing.T) {
	ty := personType()
	v := catalog.ProductValue(catalog.U64Value(42), catalog.StringValue("ada"), catalog.BoolValue(true))

	enc, err := Encode(ty, v)
	require.NoError(t, err)

	dec, n, err := Decode(ty, enc)
	require.NoError(t, err)
	assert.Equal(t, len(enc), n)
	assert.True(t, v.Equal(dec))
}

func TestEncodeDecodeRoundTrip_Sum(t *testing.T) {
	ty := catalog.Sum(
		catalog.NamedType{Name: "ok", Type: catalog.Primitive(catalog.KindU64)},
		catalog.NamedType{Name: "err", Type: catalog.Primitive(catalog.KindString)},
	)
	payload := catalog.StringValue("boom")
	v := catalog.AlgebraicValue{Kind: catalog.KindSum, Tag: 1, Payload: &payload}

	enc, err := Encode(ty, v)
	require.NoError(t, err)
	dec, _, err := Decode(ty, enc)
	require.NoError(t, err)
	assert.True(t, v.Equal(dec))
}

func TestEncodeDecodeRoundTrip_Array(t *testing.T) {
	ty := catalog.Array(catalog.Primitive(catalog.KindI32))
	v := catalog.AlgebraicValue{Kind: catalog.KindArray, Elements: []catalog.AlgebraicValue{
		catalog.I64Value(1), catalog.I64Value(-2), catalog.I64Value(3),
	}}
	enc, err := Encode(ty, v)
	require.NoError(t, err)
	dec, n, err := Decode(ty, enc)
	require.NoError(t, err)
	assert.Equal(t, len(enc), n)
	assert.True(t, v.Equal(dec))
}

func TestEncodeDecodeRoundTrip_Map(t *testing.T) {
	ty := catalog.Map(catalog.Primitive(catalog.KindString), catalog.Primitive(catalog.KindI32))
	v := catalog.MapValue(
		catalog.MapEntry{Key: catalog.StringValue("a"), Value: catalog.I64Value(1)},
		catalog.MapEntry{Key: catalog.StringValue("b"), Value: catalog.I64Value(-2)},
	)

	enc, err := Encode(ty, v)
	require.NoError(t, err)
	dec, n, err := Decode(ty, enc)
	require.NoError(t, err)
	assert.Equal(t, len(enc), n)
	assert.True(t, v.Equal(dec))
}

func TestEncodeDecodeRoundTrip_MapEmpty(t *testing.T) {
	ty := catalog.Map(catalog.Primitive(catalog.KindString), catalog.Primitive(catalog.KindI32))
	v := catalog.MapValue()

	enc, err := Encode(ty, v)
	require.NoError(t, err)
	assert.Len(t, enc, 4)
	dec, n, err := Decode(ty, enc)
	require.NoError(t, err)
	assert.Equal(t, len(enc), n)
	assert.True(t, v.Equal(dec))
}

func TestEncode_BigIntWidth(t *testing.T) {
	ty := catalog.Primitive(catalog.KindU128)
	v := catalog.AlgebraicValue{Kind: catalog.KindU128, Big: []byte{0x01}}
	enc, err := Encode(ty, v)
	require.NoError(t, err)
	assert.Len(t, enc, 16)
}

func TestDecode_TruncatedBuffer(t *testing.T) {
	ty := personType()
	_, _, err := Decode(ty, []byte{0, 0, 0})
	require.Error(t, err)
	var typeErr *TypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestJSONRoundTrip_Product(t *testing.T) {
	ty := personType()
	v := catalog.ProductValue(catalog.U64Value(7), catalog.StringValue("grace"), catalog.BoolValue(false))

	raw, err := ToJSON(ty, v)
	require.NoError(t, err)

	back, err := FromJSON(ty, raw)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestJSONRoundTrip_Map(t *testing.T) {
	ty := catalog.Map(catalog.Primitive(catalog.KindString), catalog.Primitive(catalog.KindU64))
	v := catalog.MapValue(
		catalog.MapEntry{Key: catalog.StringValue("x"), Value: catalog.U64Value(9)},
	)

	raw, err := ToJSON(ty, v)
	require.NoError(t, err)
	assert.JSONEq(t, `[["x",9]]`, string(raw))

	back, err := FromJSON(ty, raw)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}

func TestJSONRoundTrip_Sum(t *testing.T) {
	ty := catalog.Sum(
		catalog.NamedType{Name: "ok", Type: catalog.Primitive(catalog.KindU64)},
		catalog.NamedType{Name: "err", Type: catalog.Primitive(catalog.KindString)},
	)
	payload := catalog.U64Value(100)
	v := catalog.AlgebraicValue{Kind: catalog.KindSum, Tag: 0, Payload: &payload}

	raw, err := ToJSON(ty, v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":100}`, string(raw))

	back, err := FromJSON(ty, raw)
	require.NoError(t, err)
	assert.True(t, v.Equal(back))
}
