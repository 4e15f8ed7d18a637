// Package repository caches the rows of SQLite tables in memory and
// persists their changes transactionally.
//
// # Controller
//
// A Controller owns the single connection. Tables are registered with
// RegisterTable, which creates the table from its DDL when it is missing,
// seeds it when it is empty and loads its rows. CompleteRegistration then
// runs three phases over the tables of a schema: relations, computed
// columns (retried while a pass makes progress) and finalizers. Secondary
// database files are mounted with Attach and removed with Detach.
//
// # Rows
//
// Every Row tracks its state (unchanged, added, modified, deleted) and,
// while modified or deleted, the values it had when it was loaded. UPDATE
// statements address rows by the current rowid, DELETE statements by the
// original one, so primary key changes are safe. Columns carry flags that
// keep them out of INSERT or UPDATE statements; a column flagged
// ReceivesGeneratedID is filled from the generated id right after its
// INSERT runs.
//
// # Computed columns
//
// Relation-bound columns read a parent value through a Relation on every
// access. Callback-bound columns are recomputed once per row edit batch
// when a watched column of the dependent table changes.
//
// # Transactions
//
// Table.Save runs inserts, updates and deletes in one transaction and
// restores every row to its pre-save state if anything fails. Coordinator
// runs raw statement lists or multi-table units of work and keeps the cache
// consistent with the store when they are rolled back.
//
// # Concurrency
//
// Nothing in this package is safe for concurrent use; callers serialize
// access to a controller and its tables.
package repository
