// Package migrate plans the changes needed to evolve a running database's
// schema (an old DatabaseDef) into a module's newly published one (spec.md
// §9): which changes can be applied automatically, and which require a
// hand-authored manual migration because they are not safely reversible or
// would silently reinterpret already-committed data.
//
// Grounded on original_source/crates/schema/src/migrate.rs's
// ponder_automigrate: the same table-by-table column/index/sequence/unique
// constraint/schedule diff, the same three-way split of "plan a step",
// "reject with a manual-migration error", and "no change needed", adapted
// from spacetimedb_sats' DefLookup-keyed TableDef/IndexDef/etc. onto this
// port's catalog.TableSchema.
package migrate
