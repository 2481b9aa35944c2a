package engine

import (
	"time"

	"github.com/cuemby/spacetime/internal/bsatn"
	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/protocol"
	"github.com/cuemby/spacetime/internal/query"
	"github.com/cuemby/spacetime/internal/rls"
)

// RunOneOffQuery compiles and evaluates a single query against a fresh
// read-only snapshot, outside of any subscription (spec.md §6's
// OneOffQuery). RLS still applies unless identity is the database owner.
func (e *Engine) RunOneOffQuery(identity protocol.Identity, msg *protocol.OneOffQuery) protocol.OneOffQueryResponse {
	start := time.Now()

	rtx := e.ds.BeginReadTx()
	defer e.ds.EndReadTx(rtx)

	logical, err := query.Parse(msg.QueryString)
	if err != nil {
		return protocol.OneOffQueryResponse{MessageID: msg.MessageID, Error: err.Error()}
	}
	alternatives, err := rls.Resolve(logical, e.isOwner(identity), e.rules)
	if err != nil {
		return protocol.OneOffQueryResponse{MessageID: msg.MessageID, Error: err.Error()}
	}
	tableName := query.TableNameOf(logical)
	schema, err := rtx.SchemaByName(tableName)
	if err != nil {
		return protocol.OneOffQueryResponse{MessageID: msg.MessageID, Error: err.Error()}
	}
	rowType := schema.RowType()

	src := query.CommittedSource{Tx: rtx}
	seen := map[string]bool{}
	var rows [][]byte
	var encodeErr error
	for _, alt := range alternatives {
		phys, err := query.Lower(alt, query.DeltaNone, rtx)
		if err != nil {
			return protocol.OneOffQueryResponse{MessageID: msg.MessageID, Error: err.Error()}
		}
		query.Execute(phys, src, query.Metrics{}, func(tuple []catalog.AlgebraicValue) bool {
			b, err := bsatn.Encode(rowType, tuple[0])
			if err != nil {
				encodeErr = err
				return false
			}
			key := string(b)
			if seen[key] {
				return true
			}
			seen[key] = true
			rows = append(rows, b)
			return true
		})
		if encodeErr != nil {
			return protocol.OneOffQueryResponse{MessageID: msg.MessageID, Error: encodeErr.Error()}
		}
	}

	table := protocol.OneOffTable{TableName: tableName, Rows: protocol.EncodeRowList(rows)}
	return protocol.OneOffQueryResponse{
		MessageID:                        msg.MessageID,
		Tables:                            []protocol.OneOffTable{table},
		TotalHostExecutionDurationMicros: uint64(time.Since(start).Microseconds()),
	}
}
