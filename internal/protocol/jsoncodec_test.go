package protocol_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/protocol"
)

func TestJSONCodec_DecodeClientMessage_CallReducer(t *testing.T) {
	raw := []byte(`{"type":"CallReducer","data":{"reducer":"send_message","args":"AQID","request_id":7}}`)
	msg, err := protocol.JSONCodec{}.DecodeClientMessage(raw)
	require.NoError(t, err)
	call, ok := msg.(*protocol.CallReducer)
	require.True(t, ok)
	assert.Equal(t, "send_message", call.Reducer)
	assert.Equal(t, []byte{1, 2, 3}, call.Args)
	assert.Equal(t, uint32(7), call.RequestID)
}

func TestJSONCodec_DecodeClientMessage_Subscribe(t *testing.T) {
	raw := []byte(`{"type":"Subscribe","data":{"query_strings":["SELECT * FROM t"],"request_id":1}}`)
	msg, err := protocol.JSONCodec{}.DecodeClientMessage(raw)
	require.NoError(t, err)
	sub, ok := msg.(*protocol.Subscribe)
	require.True(t, ok)
	assert.Equal(t, []string{"SELECT * FROM t"}, sub.QueryStrings)
}

func TestJSONCodec_DecodeClientMessage_UnknownTypeErrors(t *testing.T) {
	raw := []byte(`{"type":"NotAThing","data":{}}`)
	_, err := protocol.JSONCodec{}.DecodeClientMessage(raw)
	assert.Error(t, err)
}

func TestJSONCodec_EncodeServerMessage_IdentityToken(t *testing.T) {
	id, err := protocol.NewIdentity()
	require.NoError(t, err)
	addr := protocol.NewAddress()
	msg := &protocol.IdentityToken{Identity: id, Token: "tok", Address: addr}

	encoded, err := protocol.JSONCodec{}.EncodeServerMessage(msg)
	require.NoError(t, err)

	var env struct {
		Type string
		Data struct {
			Identity string
			Token    string
			Address  string
		}
	}
	require.NoError(t, json.Unmarshal(encoded, &env))
	assert.Equal(t, "IdentityToken", env.Type)
	assert.Equal(t, id.String(), env.Data.Identity)
	assert.Equal(t, "tok", env.Data.Token)
}

func TestJSONCodec_EncodeServerMessage_UncompressedTableUpdateRoundTrips(t *testing.T) {
	rows := [][]byte{{1, 2}, {3, 4}}
	qu := protocol.QueryUpdate{Inserts: protocol.EncodeRowList(rows)}
	cq := protocol.CompressQueryUpdate(qu, []byte("small"))

	msg := &protocol.InitialSubscription{
		DatabaseUpdate: protocol.DatabaseUpdate{Tables: []protocol.TableUpdate{
			{TableID: 1, TableName: "messages", NumRows: 2, Updates: []protocol.CompressableQueryUpdate{cq}},
		}},
		RequestID: 5,
	}

	encoded, err := protocol.JSONCodec{}.EncodeServerMessage(msg)
	require.NoError(t, err)

	var env struct {
		Type string
		Data struct {
			DatabaseUpdate struct {
				Tables []struct {
					TableName string
					Updates   []struct {
						Inserts struct {
							RowsData string `json:"rows_data"`
						}
					}
				}
			} `json:"database_update"`
		}
	}
	require.NoError(t, json.Unmarshal(encoded, &env))
	assert.Equal(t, "InitialSubscription", env.Type)
	require.Len(t, env.Data.DatabaseUpdate.Tables, 1)
	assert.Equal(t, "messages", env.Data.DatabaseUpdate.Tables[0].TableName)
	require.Len(t, env.Data.DatabaseUpdate.Tables[0].Updates, 1)
	assert.NotEmpty(t, env.Data.DatabaseUpdate.Tables[0].Updates[0].Inserts.RowsData)
}

func TestJSONCodec_EncodeServerMessage_BrotliCompressedUpdateStillEncodes(t *testing.T) {
	qu := protocol.QueryUpdate{}
	large := bytes.Repeat([]byte("row-payload-"), 200)
	cq := protocol.CompressQueryUpdate(qu, large)
	require.Equal(t, protocol.CompressionBrotli, cq.Tag)

	msg := &protocol.InitialSubscription{
		DatabaseUpdate: protocol.DatabaseUpdate{Tables: []protocol.TableUpdate{
			{TableID: 1, TableName: "big", Updates: []protocol.CompressableQueryUpdate{cq}},
		}},
	}

	encoded, err := protocol.JSONCodec{}.EncodeServerMessage(msg)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), "InitialSubscription")
}

func TestJSONCodec_EncodeServerMessage_UnknownTypeErrors(t *testing.T) {
	_, err := protocol.JSONCodec{}.EncodeServerMessage(nil)
	assert.Error(t, err)
}
