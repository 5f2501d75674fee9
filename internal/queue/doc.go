// Package queue persists pipeline jobs in SQLite and exposes the claim and
// transition primitives the scheduler is built on.
//
// The Store manages database connections, schema initialization, versioned
// writes, lease claims, and retry scheduling. Jobs capture the accumulated
// stage payloads (PR context, dialogue script, audio reference, episode
// metadata) as append-only JSON columns so stages can coordinate without
// additional state.
//
// Every cross-worker coordination mechanism lives here: optimistic versioning
// rejects stale writers, and lease-with-expiry claims give crashed workers'
// jobs back to the pool. No other locks exist in the system.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema.
package queue
