// Package query implements the engine's logical-to-physical query pipeline
// (spec.md §4.6): a small logical plan (table references, left-deep joins,
// filters) that the RLS resolver rewrites, a lowering pass that chooses
// index scans and index/hash joins over the catalog's declared indexes,
// and a pipelined push-based executor evaluated against either a committed
// snapshot or a transaction's insert/delete delta.
//
// Grounded on original_source/crates/execution/src/{iter.rs,pipelined.rs}
// for the physical operator set and push-execution model, and on
// original_source/crates/expr/src/rls.rs's ProjectName/RelExpr shape for
// the logical plan RLS rewrites. Unlike the original, there is no general
// SQL parser in this port (general SQL completeness is an explicit Non-goal
// per spec.md §1); parse.go's Parse is a small hand-rolled parser for the
// SELECT subset spec.md §6's subscriptions use, and internal/rls builds
// LogicalPlans directly.
package query
