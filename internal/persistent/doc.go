// Package persistent is the offline-first persistence facade the
// application talks to.
//
// # Overview
//
// A Store arbitrates between the remote document store and the local cache
// based on a connectivity flag owned by the store instance:
//
//   - online: writes go through the remote adapter first and are mirrored
//     into the cache with confirmed provenance; reads refresh the cache
//     opportunistically.
//   - offline: operations run against the cache alone, and every mutation
//     is stamped with a pending provenance mark (or a tombstone for
//     deletes) so it can be replayed later.
//
// UpdateOnlineState(true) replays all queued mutations per collection in
// create, update, delete order, best-effort with per-row isolation, and
// clears the pending markers of the rows that succeed. Replay is
// idempotent: re-running after a partial failure retries only what is
// still pending, and remote creates/deletes tolerate repeats.
//
// # Error Handling
//
// Storage-layer failures are absorbed here: they are logged and surfaced as
// false/nil results, and a failed online write degrades to pending-offline
// semantics so the mutation is never lost. Only programmer errors (an
// unregistered collection name, a malformed query or path) are returned as
// errors.
//
// # Known limitation
//
// Concurrent offline edits to the same record from multiple devices are
// resolved by replay order alone (last writer wins); no merge strategy is
// attempted.
package persistent
