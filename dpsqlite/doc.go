// Package dpsqlite contains a SQLite-backed implementation of [dpstore.RoundStore].
//
// Rounds and chain state are stored as codec-encoded blobs,
// alongside the few columns needed to enforce the store's invariants in SQL.
// The driver is the pure Go modernc.org/sqlite, so no cgo toolchain is required.
package dpsqlite
