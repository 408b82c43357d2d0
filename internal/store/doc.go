// Package store persists per-user rules and the append-only processing log.
//
// Two implementations of Store are provided: MemoryStore for single-process
// use and tests, and PostgresStore backed by a pgx connection pool. Every rule
// operation is scoped to an owner, and a rule owned by someone else behaves
// exactly like a missing one (ErrNotFound).
package store
