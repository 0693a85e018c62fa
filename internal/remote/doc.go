// Package remote adapts a remote document store behind the Store interface.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see Store) exposing the seven verbs the
//     sync engine consumes: Create, Get, Update, Delete, Find, Stream and
//     Count, each addressed by (collection, key/record, path, condition).
//  2. A Cloud Firestore implementation (see FirestoreStore) that resolves
//     sub-collection scoping paths, translates the shared condition grammar
//     into native property/and/or filters, streams query snapshots, and
//     counts via the server-side aggregation query.
//  3. An embedded in-memory implementation (see MemoryStore) for tests and
//     offline development, with its own independent filter evaluation.
//
// # Error Handling
//
// Get returns (nil, nil) for absent documents; Delete of an absent document
// succeeds. Malformed queries and scoping paths are programmer errors
// reported via common.ErrInvalidQuery and common.ErrInvalidPath. Transport
// failures are logged here and returned wrapped; the sync engine decides
// whether to absorb them.
package remote
