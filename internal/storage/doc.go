// Package storage provides queue store backends.
//
// Every backend persists one serialized JSON array of queued actions under a
// key namespaced by the owning identity, and assumes a single writer per key.
//
// Backends:
//   - FileStore: one JSON file per key, rewritten atomically
//   - PGStore: one jsonb row per key in Postgres
//   - MemoryStore: process-local, for tests and ephemeral sessions
package storage
