package query

import (
	"github.com/cuemby/spacetime/internal/catalog"
	"github.com/cuemby/spacetime/internal/table"
	"github.com/cuemby/spacetime/pkg/metrics"
)

// Source is the read surface a PhysicalPlan executes against: a committed
// snapshot, or a snapshot paired with one transaction's delta (see
// DeltaSource in source.go). Index reads always see committed state only;
// TableScan is the only operator that can be pointed at a delta.
type Source interface {
	Scan(tableID uint32, delta Delta, fn func(catalog.AlgebraicValue) bool)
	IndexSeek(tableID, indexID uint32, r table.Range) []catalog.AlgebraicValue
}

// Metrics records the operator counters spec.md §4.6 requires
// (rows_scanned, index_seeks), flowing into the prometheus collectors
// pkg/metrics registers.
type Metrics struct{}

func (Metrics) incRowsScanned(tableName, op string, n int) {
	if n == 0 {
		return
	}
	metrics.RowsScannedTotal.WithLabelValues(tableName, op).Add(float64(n))
}

func (Metrics) incIndexSeeks(tableName, indexName string) {
	metrics.IndexSeeksTotal.WithLabelValues(tableName, indexName).Inc()
}

// Execute runs plan against src, invoking fn once per output tuple. A
// tuple is a slice of rows in left-deep table order: length 1 for a bare
// TableScan/IxScan/Filter, length >1 beneath a join. fn returning false
// stops execution early, mirroring the rest of this codebase's scan
// callback convention (table.Table.ScanRows, datastore.MutTx.IterByColEq).
func Execute(plan PhysicalPlan, src Source, m Metrics, fn func([]catalog.AlgebraicValue) bool) {
	execNode(plan, src, m, fn)
}

func execNode(plan PhysicalPlan, src Source, m Metrics, fn func([]catalog.AlgebraicValue) bool) bool {
	switch p := plan.(type) {
	case *TableScan:
		cont := true
		n := 0
		src.Scan(p.TableID, p.Delta, func(row catalog.AlgebraicValue) bool {
			n++
			cont = fn([]catalog.AlgebraicValue{row})
			return cont
		})
		m.incRowsScanned(p.TableName, "table_scan", n)
		return cont

	case *IxScan:
		rng := ixScanRange(p)
		rows := src.IndexSeek(p.TableID, p.IndexID, rng)
		m.incIndexSeeks(p.TableName, "")
		m.incRowsScanned(p.TableName, "ix_scan", len(rows))
		for _, row := range rows {
			if !fn([]catalog.AlgebraicValue{row}) {
				return false
			}
		}
		return true

	case *IxJoin:
		cont := true
		execNode(p.Lhs, src, m, func(lhsRows []catalog.AlgebraicValue) bool {
			lhsVal := lhsRows[len(lhsRows)-1].Elements[p.LhsField]
			rng := table.Range{Lo: []catalog.AlgebraicValue{lhsVal}, LoInclusive: true, Hi: []catalog.AlgebraicValue{lhsVal}, HiInclusive: true}
			matches := src.IndexSeek(p.RhsTableID, p.RhsIndexID, rng)
			m.incIndexSeeks(p.RhsTableName, "")
			if p.Unique && len(matches) > 1 {
				matches = matches[:1]
			}
			switch p.Semi {
			case SemiLhs:
				if len(matches) > 0 {
					cont = fn(lhsRows)
				}
			case SemiRhs:
				for _, r := range matches {
					if !fn([]catalog.AlgebraicValue{r}) {
						cont = false
						break
					}
				}
			default: // SemiAll
				for _, r := range matches {
					combined := append(append([]catalog.AlgebraicValue{}, lhsRows...), r)
					if !fn(combined) {
						cont = false
						break
					}
				}
			}
			return cont
		})
		return cont

	case *HashJoin:
		type bucket struct {
			rows [][]catalog.AlgebraicValue
		}
		buckets := map[string]*bucket{}
		rhsTable := ""
		if ts, ok := p.Rhs.(*TableScan); ok {
			rhsTable = ts.TableName
		}
		nrhs := 0
		execNode(p.Rhs, src, m, func(rhsRows []catalog.AlgebraicValue) bool {
			nrhs++
			key := keyString(rhsRows[len(rhsRows)-1].Elements[p.RhsField])
			b, ok := buckets[key]
			if !ok {
				b = &bucket{}
				buckets[key] = b
			}
			if !p.Unique || len(b.rows) == 0 {
				b.rows = append(b.rows, rhsRows)
			}
			return true
		})
		m.incRowsScanned(rhsTable, "hash_build", nrhs)

		cont := true
		execNode(p.Lhs, src, m, func(lhsRows []catalog.AlgebraicValue) bool {
			lhsVal := lhsRows[len(lhsRows)-1].Elements[p.LhsField]
			b, ok := buckets[keyString(lhsVal)]
			switch p.Semi {
			case SemiLhs:
				if ok && len(b.rows) > 0 {
					cont = fn(lhsRows)
				}
			case SemiRhs:
				if ok {
					for _, r := range b.rows {
						if !fn(r) {
							cont = false
							break
						}
					}
				}
			default:
				if ok {
					for _, r := range b.rows {
						combined := append(append([]catalog.AlgebraicValue{}, lhsRows...), r...)
						if !fn(combined) {
							cont = false
							break
						}
					}
				}
			}
			return cont
		})
		return cont

	case *NLJoin:
		var rhsAll [][]catalog.AlgebraicValue
		execNode(p.Rhs, src, m, func(r []catalog.AlgebraicValue) bool {
			rhsAll = append(rhsAll, r)
			return true
		})
		cont := true
		execNode(p.Lhs, src, m, func(lhsRows []catalog.AlgebraicValue) bool {
			for _, rhsRows := range rhsAll {
				combined := append(append([]catalog.AlgebraicValue{}, lhsRows...), rhsRows...)
				if p.Expr != nil && !p.Expr.Eval(catalog.AlgebraicValue{}, combined).Bool {
					continue
				}
				if !fn(combined) {
					cont = false
					break
				}
			}
			return cont
		})
		return cont

	case *Filter:
		return execNode(p.Input, src, m, func(rows []catalog.AlgebraicValue) bool {
			row := rows[0]
			if !p.Expr.Eval(row, rows).Bool {
				return true
			}
			return fn(rows)
		})

	case *Project:
		return execNode(p.Input, src, m, func(rows []catalog.AlgebraicValue) bool {
			if !p.HasIndex {
				return fn(rows)
			}
			return fn([]catalog.AlgebraicValue{rows[p.Index]})
		})

	default:
		return true
	}
}

func ixScanRange(p *IxScan) table.Range {
	prefix := make([]catalog.AlgebraicValue, len(p.Prefix))
	for i, e := range p.Prefix {
		prefix[i] = e.Value
	}
	if !p.Arg.IsRange {
		key := append(append([]catalog.AlgebraicValue{}, prefix...), p.Arg.EqValue)
		return table.Range{Lo: key, LoInclusive: true, Hi: key, HiInclusive: true}
	}
	var lo, hi []catalog.AlgebraicValue
	loIncl, hiIncl := true, true
	if p.Arg.Lower != nil {
		lo = append(append([]catalog.AlgebraicValue{}, prefix...), *p.Arg.Lower)
		loIncl = p.Arg.LowerIncl
	}
	if p.Arg.Upper != nil {
		hi = append(append([]catalog.AlgebraicValue{}, prefix...), *p.Arg.Upper)
		hiIncl = p.Arg.UpperIncl
	}
	return table.Range{Lo: lo, LoInclusive: loIncl, Hi: hi, HiInclusive: hiIncl}
}

func keyString(v catalog.AlgebraicValue) string {
	b, _ := encodeKeyForHash(v)
	return string(b)
}

// encodeKeyForHash renders a value to a byte string usable as a Go map key
// for the hash-join build side; errors never occur for the value kinds
// AlgebraicValue supports as join keys.
func encodeKeyForHash(v catalog.AlgebraicValue) ([]byte, error) {
	switch v.Kind {
	case catalog.KindString:
		return []byte(v.Str), nil
	case catalog.KindBool:
		if v.Bool {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case catalog.KindI8, catalog.KindI16, catalog.KindI32, catalog.KindI64:
		return int64Bytes(v.I64), nil
	case catalog.KindU8, catalog.KindU16, catalog.KindU32, catalog.KindU64:
		return uint64Bytes(v.U64), nil
	default:
		return v.Big, nil
	}
}

func int64Bytes(v int64) []byte {
	return uint64Bytes(uint64(v))
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
