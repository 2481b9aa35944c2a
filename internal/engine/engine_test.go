package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/commitlog"
	"github.com/cuemby/spacetime/internal/datastore"
	"github.com/cuemby/spacetime/internal/engine"
	"github.com/cuemby/spacetime/internal/protocol"
	"github.com/cuemby/spacetime/internal/rls"
	"github.com/cuemby/spacetime/internal/subscription"
)

func personSchema() *catalog.TableSchema {
	return &catalog.TableSchema{
		TableName: "person",
		Access:    catalog.AccessPublic,
		TableType: catalog.TableTypeUser,
		Columns: []catalog.ColumnDef{
			{ColPos: 0, ColName: "id", ColType: catalog.Primitive(catalog.KindU64)},
			{ColPos: 1, ColName: "name", ColType: catalog.Primitive(catalog.KindString)},
		},
		Indexes: []catalog.IndexDef{
			{IndexID: 100, Columns: catalog.ColList{0}, IndexType: catalog.IndexTypeBTree, IsUnique: true, IndexName: "person_id_idx"},
		},
		Sequences: []catalog.SequenceDef{
			{SequenceID: 200, ColPos: 0, Start: 1, Min: 1, Max: 1 << 40, Increment: 1},
		},
	}
}

// newTestEngine bootstraps a Datastore with a "person" table already
// created, opens a commit log under t.TempDir, and wires an Engine with no
// reducers registered yet — the caller registers whatever it needs.
func newTestEngine(t *testing.T) (*engine.Engine, protocol.Identity) {
	t.Helper()

	ds := datastore.New()
	require.NoError(t, ds.Bootstrap())

	tx := ds.BeginMutTx()
	_, err := tx.CreateTable(personSchema())
	require.NoError(t, err)
	_, err = tx.Commit()
	require.NoError(t, err)
	ds.EndTx(tx)

	cl, err := commitlog.Open[*datastore.CommitRecord](t.TempDir(), commitlog.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	subs := subscription.NewManager()
	registry := protocol.NewRegistry()
	rules := rls.NewRuleSet()
	reducers := engine.NewReducerRegistry()

	owner, err := protocol.NewIdentity()
	require.NoError(t, err)

	eng := engine.New(ds, cl, subs, registry, rules, reducers, owner)
	return eng, owner
}

func TestEngine_Ready_SucceedsOnFreshDatastore(t *testing.T) {
	eng, _ := newTestEngine(t)
	assert.NoError(t, eng.Ready())
}

func TestCallReducer_CommitsInsertAndReturnsOutput(t *testing.T) {
	eng, owner := newTestEngine(t)
	eng.Reducers().Register("add_person", func(tx *datastore.MutTx, args []byte, caller protocol.Identity, addr protocol.Address) (string, error) {
		_, err := tx.Insert(catalog.FirstUserTableID, catalog.ProductValue(catalog.U64Value(0), catalog.StringValue("alice")))
		if err != nil {
			return "", err
		}
		return "inserted alice", nil
	})
	result := eng.CallReducer(owner, protocol.NewAddress(), &protocol.CallReducer{Reducer: "add_person", RequestID: 1})
	assert.Equal(t, protocol.StatusCommitted, result.Status)
	assert.Equal(t, "inserted alice", result.Output)
	assert.Empty(t, result.FailureMessage)
}

func TestCallReducer_UnknownReducerFails(t *testing.T) {
	eng, owner := newTestEngine(t)
	result := eng.CallReducer(owner, protocol.NewAddress(), &protocol.CallReducer{Reducer: "does_not_exist", RequestID: 2})
	assert.Equal(t, protocol.StatusFailed, result.Status)
	assert.NotEmpty(t, result.FailureMessage)
}

func TestCallReducer_ReducerErrorRollsBackAndFails(t *testing.T) {
	eng, owner := newTestEngine(t)
	eng.Reducers().Register("always_fails", func(tx *datastore.MutTx, args []byte, caller protocol.Identity, addr protocol.Address) (string, error) {
		return "", assert.AnError
	})
	result := eng.CallReducer(owner, protocol.NewAddress(), &protocol.CallReducer{Reducer: "always_fails", RequestID: 3})
	assert.Equal(t, protocol.StatusFailed, result.Status)
	assert.Equal(t, assert.AnError.Error(), result.FailureMessage)
}

func TestRunOneOffQuery_ReturnsInsertedRow(t *testing.T) {
	eng, owner := newTestEngine(t)
	eng.Reducers().Register("add_person", func(tx *datastore.MutTx, args []byte, caller protocol.Identity, addr protocol.Address) (string, error) {
		_, err := tx.Insert(catalog.FirstUserTableID, catalog.ProductValue(catalog.U64Value(0), catalog.StringValue("bob")))
		return "", err
	})
	eng.CallReducer(owner, protocol.NewAddress(), &protocol.CallReducer{Reducer: "add_person", RequestID: 1})

	resp := eng.RunOneOffQuery(owner, &protocol.OneOffQuery{MessageID: []byte("msg-1"), QueryString: "SELECT * FROM person"})
	assert.Empty(t, resp.Error)
	require.Len(t, resp.Tables, 1)
	assert.Equal(t, "person", resp.Tables[0].TableName)
	assert.Equal(t, 1, resp.Tables[0].Rows.NumRows())
}

func TestRunOneOffQuery_InvalidQueryReturnsError(t *testing.T) {
	eng, owner := newTestEngine(t)
	resp := eng.RunOneOffQuery(owner, &protocol.OneOffQuery{MessageID: []byte("msg-2"), QueryString: "not a query"})
	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.Tables)
}
