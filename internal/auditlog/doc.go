// Package auditlog keeps a hash-chained, append-only record of every batch
// lifecycle event.
//
// The chain starts with a genesis entry whose Hash is GenesisHash (64 hex
// zeros). Every later entry stores the hash of its predecessor, so Verify
// detects any rewritten or dropped entry.
//
// MemoryLog serves tests and single-process deployments; PostgresLog is the
// durable implementation.
package auditlog
