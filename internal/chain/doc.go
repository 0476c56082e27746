// Package chain implements the hash-linked block ledger.
//
// A Chain is an append-only sequence of blocks anchored at a genesis block
// whose previous hash is the literal "0". Every later block records the
// SHA-256 of its predecessor, making any tampering detectable via Verify.
//
// Three implementations of the Store interface back the chain:
//   - MemoryStore: in-process, for testing and development.
//   - BoltStore: embedded bbolt file, for single-node deployments.
//   - PostgresStore: PostgreSQL, for server deployments.
package chain
