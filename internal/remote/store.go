package remote

import (
	"context"

	"github.com/MSU-Students/q-attendance/internal/query"
	"github.com/MSU-Students/q-attendance/internal/record"
)

// UnsubscribeFunc cancels a live subscription. No further snapshots are
// delivered after it returns, though a delivery already in flight may
// still complete.
type UnsubscribeFunc func()

// StreamOptions parameterizes a live subscription.
type StreamOptions struct {
	// Path optionally scopes the subscription to a parent record's
	// sub-collection.
	Path string
	// Condition filters the subscribed set; nil subscribes to the whole
	// collection.
	Condition query.Query
	// OnSnapshot receives the full current matching set every time the
	// underlying data changes.
	OnSnapshot func(records []record.Record)
}

// Store is the remote document store contract: collection/document
// addressing with optional sub-collection path scoping, filtered queries
// translated from the shared condition grammar, live snapshots, and
// server-side count aggregation.
type Store interface {
	// Create stores the record. When the record carries no key, the store
	// assigns one and writes it back onto the returned record; otherwise
	// the write is an upsert at the given key.
	Create(ctx context.Context, collection string, rec record.Record, path string) (record.Record, error)

	// Get returns the record at key, or (nil, nil) when absent.
	Get(ctx context.Context, collection, key, path string) (record.Record, error)

	// Update merges the given fields into the existing document. Fields
	// not present in the partial record remain untouched.
	Update(ctx context.Context, collection, key string, fields record.Record, path string) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, collection, key, path string) error

	// Find returns all records matching the query, or an empty slice when
	// nothing matches.
	Find(ctx context.Context, collection, path string, q query.Query) ([]record.Record, error)

	// Stream establishes a live subscription and returns its unsubscribe
	// handle.
	Stream(ctx context.Context, collection string, opts StreamOptions) (UnsubscribeFunc, error)

	// Count returns the number of matching records without materializing
	// them.
	Count(ctx context.Context, collection, path string, q query.Query) (int64, error)
}
