// Package rls implements Row-Level Security view resolution (spec.md §4.7):
// expanding a non-owner subscriber's query against a table's declared RLS
// rules into one alternative LogicalPlan per rule, rejecting cyclic
// resolution chains, and alpha-renaming bound names so an expanded rule's
// aliases never collide with the outer query's.
//
// Grounded on original_source/crates/expr/src/rls.rs: the ResolveList
// cons-list cycle detector, the "owner bypasses RLS entirely" short
// circuit, and the left-deep restructuring that pushes an outer join's
// left sibling beneath the expanded rule's leftmost leaf (step 4 of
// spec.md §4.7) are all a direct port of that file's resolve_views /
// resolve_views_for_expr algorithm, adapted from a full SQL AST
// (ProjectName/RelExpr) onto this port's smaller query.LogicalPlan.
package rls
