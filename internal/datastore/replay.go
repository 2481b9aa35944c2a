package datastore

import (
	"fmt"

	"github.com/cuemby/spacetime/internal/bsatn"
	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/table"
)

// ApplyReplayRecord applies one commit log entry's decoded effects to the
// datastore's committed state, in the order the original transaction's own
// Commit produced them: truncates, then deletes, then inserts. It is how
// startup replay and any catch-up streaming rebuild CommittedState from the
// commit log, bypassing MutTx entirely (replayed rows already carry their
// final, already-sequence-assigned values, so there is nothing for MutTx's
// auto-increment logic to do).
func (ds *Datastore) ApplyReplayRecord(rec *DecodedCommitRecord) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	cs := ds.committed

	for _, tableID := range rec.Truncates {
		t, ok := cs.Tables[tableID]
		if !ok {
			continue
		}
		var ptrs []table.RowPointer
		t.ScanRows(cs.Blobs, func(ptr table.RowPointer, _ catalog.AlgebraicValue) bool {
			ptrs = append(ptrs, ptr)
			return true
		})
		for _, ptr := range ptrs {
			t.Delete(cs.Blobs, ptr)
		}
	}

	if err := ds.applyMutationGroups(rec.Deletes, true); err != nil {
		return err
	}
	if err := ds.applyMutationGroups(rec.Inserts, false); err != nil {
		return err
	}
	return nil
}

// applyMutationGroups splits groups into system-catalog and user-table
// tranches, applying the system tranche (and rebuilding any tables it just
// declared) before the user tranche — a CREATE TABLE and its first INSERT
// can land in the same commit, and the insert's row type is only knowable
// once BuildMissingTables has materialized the table from the now-current
// st_tables/st_columns rows.
func (ds *Datastore) applyMutationGroups(groups []MutationGroup, isDelete bool) error {
	cs := ds.committed
	var system, user []MutationGroup
	for _, g := range groups {
		if g.TableID < catalog.FirstUserTableID {
			system = append(system, g)
		} else {
			user = append(user, g)
		}
	}
	if err := ds.applyGroupSet(system, isDelete); err != nil {
		return err
	}
	if err := cs.BuildMissingTables(cs.SchemaFor); err != nil {
		return err
	}
	for id := range cs.Tables {
		if id >= catalog.FirstUserTableID && id >= cs.NextID {
			cs.NextID = id + 1
		}
	}
	return ds.applyGroupSet(user, isDelete)
}

func (ds *Datastore) applyGroupSet(groups []MutationGroup, isDelete bool) error {
	cs := ds.committed
	for _, g := range groups {
		t, ok := cs.Tables[g.TableID]
		if !ok {
			return fmt.Errorf("datastore: replay: table %d not found for mutation group", g.TableID)
		}
		ty := t.Schema.RowType()
		blob := g.RowsBlob
		for i := 0; i < g.RowCount; i++ {
			row, n, err := bsatn.Decode(ty, blob)
			if err != nil {
				return fmt.Errorf("datastore: replay: decode row for table %d: %w", g.TableID, err)
			}
			blob = blob[n:]
			if isDelete {
				t.DeleteEqualRow(cs.Blobs, row)
			} else if _, err := t.Insert(cs.Blobs, row); err != nil {
				return fmt.Errorf("datastore: replay: insert row for table %d: %w", g.TableID, err)
			}
		}
	}
	return nil
}
