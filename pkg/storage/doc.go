// Package storage implements the content-addressed data manager: a
// BoltDB-backed store that tokenizes every input value into a stable
// 32-bit identifier, differences a requested Cartesian product of
// tokens against what has already been computed to produce a residual
// work list, and records phase results transactionally.
//
// Tokenize is two-phase: a read-only lookup pass (db.View) scans the
// candidate bucket for a within-tolerance match; only on a miss does a
// second, write pass (db.Update) insert a new row and assign it the
// next sequence number. This keeps an unrelated table's tokenize/find
// calls from blocking behind a lookup that never needed to write.
//
// At most one write transaction may be open at a time; txGuard
// enforces this with a mutex-guarded flag rather than relying on
// BoltDB's own single-writer serialization, so that a caller which
// opens a second transaction before the first commits gets a fatal
// TransactionMisuse error instead of silently blocking.
package storage
