// Package store provides SQLite-backed storage for one partition.
//
// A partition is a content-addressed, append-only key space holding:
//   - Entries: canonical JSON payloads keyed by their entry hash
//   - Headers: the revision chain (create, update, delete) of every record
//   - Links: typed, tagged edges between identities, removed by tombstone
//   - Capability grants issued by this partition and claims held on others
//
// # Invariants
//
// Chains never fork. headers.prev_header is UNIQUE, so at most one header can
// supersede a given revision; a second writer racing on the same predecessor
// fails with ErrConflict. Nothing is updated in place except the revoked flag
// of a capability grant.
//
// All ordering uses the seq column, a partition-local logical clock, never
// wall time. Reads return rows ORDER BY seq ASC, id ASC.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
