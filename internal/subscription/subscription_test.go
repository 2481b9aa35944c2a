package subscription_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/datastore"
	"github.com/cuemby/spacetime/internal/protocol"
	"github.com/cuemby/spacetime/internal/query"
	"github.com/cuemby/spacetime/internal/subscription"
)

func playerSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		TableName: "player",
		Access:    catalog.AccessPublic,
		TableType: catalog.TableTypeUser,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "id", ColType: catalog.Primitive(catalog.KindU64)},
			{ColPos: 1, ColName: "name", ColType: catalog.Primitive(catalog.KindString)},
		},
		Indexes: []catalog.IndexDef{
			{IndexID: 1, Columns: catalog.ColList{0}, IndexType: catalog.IndexTypeBTree, IsUnique: true, IndexName: "player_id_idx"},
		},
	}
}

func setupDatastore(t *testing.T) (*datastore.Datastore, *catalog.TableSchema) {
	t.Helper()
	ds := datastore.New()
	require.NoError(t, ds.Bootstrap())
	tx := ds.BeginMutTx()
	_, err := tx.CreateTable(playerSchema())
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)
	schema, err := func() (*catalog.TableSchema, error) {
		tx := ds.BeginMutTx()
		defer ds.EndTx(tx)
		return tx.Schema("player")
	}()
	require.NoError(t, err)
	return ds, schema
}

func lowerPlayerScan(t *testing.T, rtx *datastore.ReadTx, schema *catalog.TableSchema) []subscription.PhysicalQuery {
	t.Helper()
	logical := &query.TableRef{TableName: "player", Alias: "player"}
	phys, err := query.Lower(logical, query.DeltaNone, rtx)
	require.NoError(t, err)
	return []subscription.PhysicalQuery{{Plan: phys, RowType: schema.RowType()}}
}

func TestManager_SubscribeReturnsInitialSnapshot(t *testing.T) {
	ds, schema := setupDatastore(t)

	tx := ds.BeginMutTx()
	_, err := tx.Insert(schema.TableID, catalog.ProductValue(catalog.U64Value(1), catalog.StringValue("a")))
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	rtx := ds.BeginReadTx()
	defer ds.EndReadTx(rtx)

	mgr := subscription.NewManager()
	conn := subscription.NewConnection(protocol.Identity{1}, protocol.Address{1})
	mgr.Add(conn)

	plans := lowerPlayerScan(t, rtx, schema)
	initial, err := mgr.Subscribe(conn, 1, schema.TableID, "player", plans, rtx, 42, 100)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), initial.RequestID)
	require.Len(t, initial.DatabaseUpdate.Tables, 1)
	assert.Equal(t, uint64(1), initial.DatabaseUpdate.Tables[0].NumRows)
}

func TestManager_BroadcastDeliversTransactionUpdateForMatchingInsert(t *testing.T) {
	ds, schema := setupDatastore(t)

	rtx0 := ds.BeginReadTx()
	mgr := subscription.NewManager()
	conn := subscription.NewConnection(protocol.Identity{2}, protocol.Address{2})
	mgr.Add(conn)
	plans := lowerPlayerScan(t, rtx0, schema)
	_, err := mgr.Subscribe(conn, 7, schema.TableID, "player", plans, rtx0, 1, 0)
	require.NoError(t, err)
	ds.EndReadTx(rtx0)
	mgr.MarkApplied(conn, 7)

	tx := ds.BeginMutTx()
	_, err = tx.Insert(schema.TableID, catalog.ProductValue(catalog.U64Value(9), catalog.StringValue("zzz")))
	require.NoError(t, err)
	txData, err := tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	rtx1 := ds.BeginReadTx()
	defer ds.EndReadTx(rtx1)
	overloaded := mgr.Broadcast(rtx1, txData, subscription.TxMeta{
		Status: protocol.UpdateStatus{Kind: protocol.StatusCommitted},
	})
	assert.Empty(t, overloaded)

	select {
	case msg := <-conn.Outbox():
		tu, ok := msg.(*protocol.TransactionUpdate)
		require.True(t, ok)
		require.Len(t, tu.Status.Update.Tables, 1)
		assert.Equal(t, uint64(1), tu.Status.Update.Tables[0].NumRows)
	default:
		t.Fatal("expected a TransactionUpdate to have been enqueued")
	}
}

func TestManager_UnsubscribeSentQueryReportsWasSentOnce(t *testing.T) {
	ds, schema := setupDatastore(t)
	rtx := ds.BeginReadTx()
	defer ds.EndReadTx(rtx)

	mgr := subscription.NewManager()
	conn := subscription.NewConnection(protocol.Identity{3}, protocol.Address{3})
	mgr.Add(conn)
	plans := lowerPlayerScan(t, rtx, schema)
	_, err := mgr.Subscribe(conn, 3, schema.TableID, "player", plans, rtx, 1, 0)
	require.NoError(t, err)

	wasSent := mgr.Unsubscribe(conn, 3)
	assert.True(t, wasSent, "a query already in Sent state requires a server ack on unsubscribe")

	wasSentAgain := mgr.Unsubscribe(conn, 3)
	assert.False(t, wasSentAgain, "unsubscribing an already-removed query is a no-op")
}
